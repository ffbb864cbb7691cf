// Package history coordinates snapshots and undo/redo with the
// collaboration authority. The authority owns the canonical history ledger;
// the client only captures snapshots, asks for undo/redo, and applies
// whatever snapshot comes back, verbatim.
package history

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mindmesh/domain/core/aggregates"
	"mindmesh/pkg/clock"
	pkgerrors "mindmesh/pkg/errors"
	"mindmesh/protocol"
)

// Mode is the coordinator's state machine. While ApplyingHistory, no new
// snapshot may be recorded and no outbound echo may be produced; applying
// history must never itself become an undoable action.
type Mode int

const (
	ModeIdle Mode = iota
	ModeApplyingHistory
)

// Operation names an undo or redo request
type Operation string

const (
	OperationUndo Operation = "undo"
	OperationRedo Operation = "redo"
)

// Result is the definite outcome of an undo/redo request. Applied false
// with a nil Err means the authority declined, which is benign.
type Result struct {
	Applied bool
	Err     error
}

// Deps wires the coordinator into its session
type Deps struct {
	// Capture produces a point-in-time snapshot of the document
	Capture func() aggregates.Snapshot

	// Apply replaces document content with an authority-provided snapshot
	Apply func(aggregates.Snapshot)

	// Send transmits a history message to the authority
	Send func(*protocol.Message) error

	Clock  clock.Clock
	Logger *zap.Logger
}

type pendingRequest struct {
	operation Operation
	done      chan Result
}

// Coordinator drives snapshot capture and undo/redo for one session. Not
// safe for concurrent use; all methods run on the session loop.
type Coordinator struct {
	logger      *zap.Logger
	clock       clock.Clock
	minInterval time.Duration

	capture func() aggregates.Snapshot
	apply   func(aggregates.Snapshot)
	send    func(*protocol.Message) error

	mode        Mode
	lastCapture time.Time
	hasCaptured bool
	pending     map[string]pendingRequest
	closed      bool
}

// NewCoordinator creates a history coordinator with the given minimum
// capture interval
func NewCoordinator(minInterval time.Duration, deps Deps) *Coordinator {
	return &Coordinator{
		logger:      deps.Logger,
		clock:       deps.Clock,
		minInterval: minInterval,
		capture:     deps.Capture,
		apply:       deps.Apply,
		send:        deps.Send,
		pending:     make(map[string]pendingRequest),
	}
}

// Applying reports whether an authority snapshot is being applied right now
func (c *Coordinator) Applying() bool {
	return c.mode == ModeApplyingHistory
}

// RecordInitial captures and submits a snapshot unconditionally. It runs
// immediately after joining a room so the very first edit is undoable.
func (c *Coordinator) RecordInitial() {
	if c.closed {
		return
	}
	c.submit(c.capture())
}

// Record captures and submits a snapshot, rate-limited by the minimum
// capture interval. Recording is suppressed while applying history.
func (c *Coordinator) Record() {
	if c.closed || c.mode == ModeApplyingHistory {
		return
	}
	now := c.clock.Now()
	if c.hasCaptured && now.Sub(c.lastCapture) < c.minInterval {
		return
	}
	c.submit(c.capture())
}

func (c *Coordinator) submit(snapshot aggregates.Snapshot) {
	msg := &protocol.Message{
		Type:    protocol.TypeHistoryRecord,
		Payload: &protocol.SnapshotPayload{Snapshot: snapshot},
	}
	if err := c.send(msg); err != nil {
		c.logger.Warn("Failed to submit snapshot", zap.Error(err))
		return
	}
	c.lastCapture = c.clock.Now()
	c.hasCaptured = true
}

// BeginUndo sends an undo request and returns a channel that resolves with
// the authority's definite answer
func (c *Coordinator) BeginUndo() (string, <-chan Result, error) {
	return c.beginRequest(OperationUndo, protocol.TypeUndoRequest)
}

// BeginRedo sends a redo request and returns a channel that resolves with
// the authority's definite answer
func (c *Coordinator) BeginRedo() (string, <-chan Result, error) {
	return c.beginRequest(OperationRedo, protocol.TypeRedoRequest)
}

func (c *Coordinator) beginRequest(op Operation, msgType protocol.MessageType) (string, <-chan Result, error) {
	if c.closed {
		return "", nil, pkgerrors.NewTransportUnavailableError(string(op))
	}

	requestID := uuid.New().String()
	msg := &protocol.Message{
		Type:    msgType,
		Payload: &protocol.HistoryRequestPayload{RequestID: requestID},
	}
	if err := c.send(msg); err != nil {
		return "", nil, err
	}

	done := make(chan Result, 1)
	c.pending[requestID] = pendingRequest{operation: op, done: done}
	return requestID, done, nil
}

// HandleResult resolves an undo/redo request with the authority's answer.
// A declined request (a race with another participant) is benign: it is
// logged and produces no state change.
func (c *Coordinator) HandleResult(p *protocol.HistoryResultPayload) {
	request, ok := c.pending[p.RequestID]
	if !ok {
		c.logger.Debug("History result for unknown request",
			zap.String("requestID", p.RequestID),
		)
		return
	}
	delete(c.pending, p.RequestID)

	if !p.OK || p.Snapshot == nil {
		c.logger.Debug("Authority declined history request",
			zap.String("operation", string(request.operation)),
		)
		request.done <- Result{Applied: false}
		return
	}

	c.applySnapshot(*p.Snapshot)
	request.done <- Result{Applied: true}
}

// HandleRestore applies an authority-initiated restore (e.g. restore from a
// named history entry)
func (c *Coordinator) HandleRestore(snapshot aggregates.Snapshot) {
	c.applySnapshot(snapshot)
}

// Cancel abandons a pending request, e.g. when the caller's context expires
func (c *Coordinator) Cancel(requestID string) {
	delete(c.pending, requestID)
}

// Close abandons all pending requests, resolving their futures so callers
// do not hang
func (c *Coordinator) Close() {
	c.closed = true
	for id, request := range c.pending {
		request.done <- Result{Err: pkgerrors.NewTransportUnavailableError(string(request.operation))}
		delete(c.pending, id)
	}
}

// applySnapshot applies an authority snapshot under the ApplyingHistory
// mode so the application cannot be recorded or echoed
func (c *Coordinator) applySnapshot(snapshot aggregates.Snapshot) {
	c.mode = ModeApplyingHistory
	defer func() { c.mode = ModeIdle }()
	c.apply(snapshot)
}
