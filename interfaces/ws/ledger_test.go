package ws

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindmesh/domain/core/aggregates"
	"mindmesh/domain/core/entities"
	"mindmesh/domain/core/valueobjects"
)

// ledgerSnapshot builds a distinct snapshot keyed by label
func ledgerSnapshot(label string) aggregates.Snapshot {
	doc := aggregates.NewDocument("doc-1", "Test Map")
	node := entities.NewNode(valueobjects.Position{}, "rectangle")
	node.MergeData(map[string]interface{}{"label": label})
	doc.AddNode(node)
	return doc.Snapshot()
}

func TestLedgerUndoRedo(t *testing.T) {
	ledger := NewLedger()
	assert.False(t, ledger.CanUndo())
	assert.False(t, ledger.CanRedo())

	initial := ledgerSnapshot("initial")
	edited := ledgerSnapshot("edited")

	require.True(t, ledger.Record(initial))
	assert.False(t, ledger.CanUndo(), "a single snapshot is the present, not a past")

	require.True(t, ledger.Record(edited))
	assert.True(t, ledger.CanUndo())
	assert.False(t, ledger.CanRedo())

	restored, ok := ledger.Undo()
	require.True(t, ok)
	assert.True(t, restored.Equal(initial))
	assert.False(t, ledger.CanUndo())
	assert.True(t, ledger.CanRedo())

	restored, ok = ledger.Redo()
	require.True(t, ok)
	assert.True(t, restored.Equal(edited))
	assert.False(t, ledger.CanRedo())
}

func TestLedgerDeclinesAtBounds(t *testing.T) {
	ledger := NewLedger()

	_, ok := ledger.Undo()
	assert.False(t, ok)
	_, ok = ledger.Redo()
	assert.False(t, ok)

	ledger.Record(ledgerSnapshot("only"))
	_, ok = ledger.Undo()
	assert.False(t, ok)
}

func TestLedgerDedupsIdenticalRecord(t *testing.T) {
	ledger := NewLedger()
	snapshot := ledgerSnapshot("same")

	require.True(t, ledger.Record(snapshot))
	assert.False(t, ledger.Record(snapshot))
	assert.Equal(t, 1, ledger.Depth())
}

func TestLedgerRecordTruncatesRedoTail(t *testing.T) {
	ledger := NewLedger()
	second := ledgerSnapshot("b")
	ledger.Record(ledgerSnapshot("a"))
	ledger.Record(second)
	ledger.Record(ledgerSnapshot("c"))

	_, ok := ledger.Undo()
	require.True(t, ok)
	require.True(t, ledger.CanRedo())

	// A new present forgets the undone future
	require.True(t, ledger.Record(ledgerSnapshot("d")))
	assert.False(t, ledger.CanRedo())
	assert.Equal(t, 3, ledger.Depth())

	restored, ok := ledger.Undo()
	require.True(t, ok)
	assert.True(t, restored.Equal(second))
}

func TestLedgerDepthCap(t *testing.T) {
	ledger := NewLedger()
	for i := 0; i < maxLedgerDepth+20; i++ {
		ledger.Record(ledgerSnapshot(fmt.Sprintf("edit-%d", i)))
	}

	assert.Equal(t, maxLedgerDepth, ledger.Depth())
	assert.True(t, ledger.CanUndo())

	// The oldest retained entry is the trim boundary, not the first edit
	for ledger.CanUndo() {
		_, ok := ledger.Undo()
		require.True(t, ok)
	}
	assert.Equal(t, maxLedgerDepth, ledger.Depth())
}
