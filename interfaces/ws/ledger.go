package ws

import (
	"mindmesh/domain/core/aggregates"
)

// maxLedgerDepth bounds per-room snapshot history; the oldest entries fall
// off once exceeded.
const maxLedgerDepth = 100

// Ledger is the authority-owned undo history for one room: a snapshot stack
// with a cursor. Recording past the cursor truncates the redo tail, the same
// way an editor's undo buffer forgets alternate futures. Not safe for
// concurrent use; the owning room serializes access.
type Ledger struct {
	snapshots []aggregates.Snapshot
	cursor    int
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{cursor: -1}
}

// Record pushes a snapshot as the new present. Recording the current
// snapshot again is a no-op so echoed or rapid identical captures don't
// burn undo steps. Returns whether the ledger changed.
func (l *Ledger) Record(snapshot aggregates.Snapshot) bool {
	if l.cursor >= 0 && l.snapshots[l.cursor].Equal(snapshot) {
		return false
	}

	l.snapshots = append(l.snapshots[:l.cursor+1], snapshot)
	l.cursor = len(l.snapshots) - 1

	if len(l.snapshots) > maxLedgerDepth {
		overflow := len(l.snapshots) - maxLedgerDepth
		l.snapshots = append([]aggregates.Snapshot(nil), l.snapshots[overflow:]...)
		l.cursor -= overflow
	}
	return true
}

// Undo steps the cursor back and returns the snapshot to restore. Declines
// when there is nothing before the present.
func (l *Ledger) Undo() (*aggregates.Snapshot, bool) {
	if !l.CanUndo() {
		return nil, false
	}
	l.cursor--
	snapshot := l.snapshots[l.cursor]
	return &snapshot, true
}

// Redo steps the cursor forward and returns the snapshot to restore
func (l *Ledger) Redo() (*aggregates.Snapshot, bool) {
	if !l.CanRedo() {
		return nil, false
	}
	l.cursor++
	snapshot := l.snapshots[l.cursor]
	return &snapshot, true
}

// CanUndo reports whether a past state exists
func (l *Ledger) CanUndo() bool {
	return l.cursor > 0
}

// CanRedo reports whether an undone state exists
func (l *Ledger) CanRedo() bool {
	return l.cursor >= 0 && l.cursor < len(l.snapshots)-1
}

// Depth returns the number of retained snapshots
func (l *Ledger) Depth() int {
	return len(l.snapshots)
}
