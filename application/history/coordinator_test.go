package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindmesh/domain/core/aggregates"
	"mindmesh/pkg/clock"
	pkgerrors "mindmesh/pkg/errors"
	"mindmesh/protocol"
)

type coordinatorHarness struct {
	clk     *clock.Fake
	sent    []*protocol.Message
	sendErr error
	applied []aggregates.Snapshot
}

func newCoordinator(t *testing.T) (*Coordinator, *coordinatorHarness) {
	t.Helper()
	h := &coordinatorHarness{clk: clock.NewFake()}
	c := NewCoordinator(500*time.Millisecond, Deps{
		Capture: func() aggregates.Snapshot { return aggregates.Snapshot{} },
		Apply:   func(s aggregates.Snapshot) { h.applied = append(h.applied, s) },
		Send: func(msg *protocol.Message) error {
			if h.sendErr != nil {
				return h.sendErr
			}
			h.sent = append(h.sent, msg)
			return nil
		},
		Clock:  h.clk,
		Logger: zap.NewNop(),
	})
	return c, h
}

func (h *coordinatorHarness) lastRequestID(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, h.sent)
	payload, ok := h.sent[len(h.sent)-1].Payload.(*protocol.HistoryRequestPayload)
	require.True(t, ok)
	return payload.RequestID
}

func TestCoordinatorRecordRateLimit(t *testing.T) {
	c, h := newCoordinator(t)

	c.Record()
	assert.Len(t, h.sent, 1)

	// Inside the minimum interval, captures are suppressed
	h.clk.Advance(100 * time.Millisecond)
	c.Record()
	assert.Len(t, h.sent, 1)

	h.clk.Advance(500 * time.Millisecond)
	c.Record()
	assert.Len(t, h.sent, 2)
}

func TestCoordinatorRecordInitialBypassesRateLimit(t *testing.T) {
	c, h := newCoordinator(t)

	c.Record()
	c.RecordInitial()
	assert.Len(t, h.sent, 2, "the join-time capture is unconditional")
}

func TestCoordinatorUndoRoundTrip(t *testing.T) {
	c, h := newCoordinator(t)

	_, done, err := c.BeginUndo()
	require.NoError(t, err)
	require.Len(t, h.sent, 1)
	assert.Equal(t, protocol.TypeUndoRequest, h.sent[0].Type)

	requestID := h.lastRequestID(t)
	snapshot := aggregates.Snapshot{}
	c.HandleResult(&protocol.HistoryResultPayload{RequestID: requestID, OK: true, Snapshot: &snapshot})

	result := <-done
	assert.True(t, result.Applied)
	assert.NoError(t, result.Err)
	assert.Len(t, h.applied, 1)
}

func TestCoordinatorDeclinedIsBenign(t *testing.T) {
	c, h := newCoordinator(t)

	_, done, err := c.BeginRedo()
	require.NoError(t, err)

	c.HandleResult(&protocol.HistoryResultPayload{RequestID: h.lastRequestID(t), OK: false})

	result := <-done
	assert.False(t, result.Applied)
	assert.NoError(t, result.Err)
	assert.Empty(t, h.applied)
}

func TestCoordinatorResultForUnknownRequest(t *testing.T) {
	c, h := newCoordinator(t)
	c.HandleResult(&protocol.HistoryResultPayload{RequestID: "never-sent", OK: true, Snapshot: &aggregates.Snapshot{}})
	assert.Empty(t, h.applied, "stale results are dropped, not applied")
}

func TestCoordinatorApplySuppressesRecording(t *testing.T) {
	c, h := newCoordinator(t)

	c.apply = func(aggregates.Snapshot) {
		// Reducer callbacks run while the snapshot lands; none may capture
		assert.True(t, c.Applying())
		c.Record()
	}
	c.HandleRestore(aggregates.Snapshot{})

	assert.Empty(t, h.sent, "applying history must not record a new snapshot")
	assert.False(t, c.Applying())
}

func TestCoordinatorCancel(t *testing.T) {
	c, h := newCoordinator(t)

	requestID, done, err := c.BeginUndo()
	require.NoError(t, err)
	c.Cancel(requestID)

	c.HandleResult(&protocol.HistoryResultPayload{RequestID: requestID, OK: true, Snapshot: &aggregates.Snapshot{}})
	assert.Empty(t, h.applied)
	select {
	case <-done:
		t.Fatal("cancelled request must not resolve")
	default:
	}
}

func TestCoordinatorCloseResolvesPending(t *testing.T) {
	c, _ := newCoordinator(t)

	_, undoDone, err := c.BeginUndo()
	require.NoError(t, err)
	_, redoDone, err := c.BeginRedo()
	require.NoError(t, err)

	c.Close()

	for _, done := range []<-chan Result{undoDone, redoDone} {
		result := <-done
		assert.False(t, result.Applied)
		assert.True(t, pkgerrors.IsType(result.Err, pkgerrors.ErrorTypeTransportUnavailable))
	}

	_, _, err = c.BeginUndo()
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeTransportUnavailable))
}

func TestCoordinatorSendFailure(t *testing.T) {
	c, h := newCoordinator(t)
	h.sendErr = assert.AnError

	_, _, err := c.BeginUndo()
	assert.Error(t, err)

	// A failed capture submit doesn't update the rate-limit window
	c.Record()
	h.sendErr = nil
	c.Record()
	assert.Len(t, h.sent, 1)
}
