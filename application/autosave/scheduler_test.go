package autosave

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"mindmesh/application/ports"
	"mindmesh/pkg/clock"
	pkgerrors "mindmesh/pkg/errors"
)

// testHarness runs the scheduler fully synchronously: dispatch and spawn both
// execute inline, so a fake-clock advance drives the whole save round trip.
type testHarness struct {
	clk      *clock.Fake
	saves    int
	saveErr  error
	statuses []Status
	toggles  []bool
}

func newHarness(t *testing.T, enabled bool) (*Scheduler, *testHarness) {
	t.Helper()
	h := &testHarness{clk: clock.NewFake()}
	s := NewScheduler(
		Config{
			Debounce:    1500 * time.Millisecond,
			StatusReset: 2 * time.Second,
			Enabled:     enabled,
		},
		Deps{
			Prepare: func() *ports.DocumentRecord {
				return &ports.DocumentRecord{ID: "doc-1"}
			},
			Save: func(ctx context.Context, record *ports.DocumentRecord) error {
				h.saves++
				return h.saveErr
			},
			Dispatch: func(fn func()) { fn() },
			Spawn:    func(fn func()) { fn() },
			Clock:    h.clk,
			Logger:   zap.NewNop(),
		},
	)
	s.OnStatus(func(status Status) { h.statuses = append(h.statuses, status) })
	s.OnToggle(func(enabled bool) { h.toggles = append(h.toggles, enabled) })
	return s, h
}

func TestSchedulerDebounceCoalesces(t *testing.T) {
	s, h := newHarness(t, true)

	s.Schedule()
	h.clk.Advance(500 * time.Millisecond)
	s.Schedule()
	h.clk.Advance(500 * time.Millisecond)
	s.Schedule()

	assert.Equal(t, 0, h.saves, "nothing fires while edits keep arriving")

	h.clk.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1, h.saves)
	assert.Equal(t, []Status{StatusSaving, StatusSaved}, h.statuses)

	h.clk.Advance(2 * time.Second)
	assert.Equal(t, StatusIdle, s.Status())
}

func TestSchedulerDisableCancelsPending(t *testing.T) {
	s, h := newHarness(t, true)

	s.Schedule()
	s.SetEnabled(false)
	h.clk.Advance(5 * time.Second)

	assert.Equal(t, 0, h.saves)
	assert.Equal(t, []bool{false}, h.toggles, "local toggles broadcast")
	assert.False(t, s.Enabled())

	s.Schedule()
	h.clk.Advance(5 * time.Second)
	assert.Equal(t, 0, h.saves, "scheduling while disabled is a no-op")
}

func TestSchedulerApplyRemoteNeverRebroadcasts(t *testing.T) {
	s, h := newHarness(t, true)

	s.ApplyRemote(false)
	assert.False(t, s.Enabled())
	assert.Empty(t, h.toggles)

	s.ApplyRemote(true)
	assert.True(t, s.Enabled())
	assert.Empty(t, h.toggles)
}

func TestSchedulerErrorRequiresManualRetry(t *testing.T) {
	s, h := newHarness(t, true)
	h.saveErr = errors.New("table unavailable")

	s.Schedule()
	h.clk.Advance(1500 * time.Millisecond)

	assert.Equal(t, 1, h.saves)
	assert.Equal(t, StatusError, s.Status())

	// No automatic requeue after a failure
	h.clk.Advance(time.Minute)
	assert.Equal(t, 1, h.saves)
	assert.Equal(t, StatusError, s.Status())

	h.saveErr = nil
	var result error = errors.New("sentinel")
	s.SaveNow(context.Background(), func(err error) { result = err })
	assert.NoError(t, result)
	assert.Equal(t, 2, h.saves)
	assert.Equal(t, StatusSaved, s.Status())
}

func TestSchedulerSaveNowAbsorbsPending(t *testing.T) {
	s, h := newHarness(t, true)

	s.Schedule()
	s.SaveNow(context.Background(), func(error) {})
	assert.Equal(t, 1, h.saves)

	// The debounced save was absorbed, not left to fire again
	h.clk.Advance(5 * time.Second)
	assert.Equal(t, 1, h.saves)
}

func TestSchedulerReadOnly(t *testing.T) {
	s, h := newHarness(t, true)
	s.SetReadOnly(true)

	assert.False(t, s.Enabled())

	s.Schedule()
	h.clk.Advance(5 * time.Second)
	assert.Equal(t, 0, h.saves)

	var result error
	s.SaveNow(context.Background(), func(err error) { result = err })
	assert.True(t, pkgerrors.IsType(result, pkgerrors.ErrorTypeForbidden))

	s.SetEnabled(true)
	assert.Empty(t, h.toggles, "read-only participants cannot toggle the room flag")
}

func TestSchedulerCloseDiscardsPending(t *testing.T) {
	s, h := newHarness(t, true)

	s.Schedule()
	s.Close()
	h.clk.Advance(5 * time.Second)
	assert.Equal(t, 0, h.saves, "teardown discards pending work, it does not flush")

	var result error
	s.SaveNow(context.Background(), func(err error) { result = err })
	assert.True(t, pkgerrors.IsType(result, pkgerrors.ErrorTypeTransportUnavailable))
}
