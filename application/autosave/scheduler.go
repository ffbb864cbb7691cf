// Package autosave debounces document persistence. A burst of edits
// coalesces into one save; an explicit save-now path bypasses the debounce.
// The enabled flag is room-synchronized, and read-only participants have it
// forced off.
package autosave

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mindmesh/application/ports"
	"mindmesh/pkg/clock"
	pkgerrors "mindmesh/pkg/errors"
)

// Status is the save-status state machine:
// idle -> saving -> saved -> idle (after the reset delay), or
// saving -> error (manual retry required, no automatic requeue).
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// Config carries the scheduler's tunables
type Config struct {
	Debounce    time.Duration
	StatusReset time.Duration
	Enabled     bool
}

// Deps wires the scheduler into its session
type Deps struct {
	// Prepare captures the record to persist. It runs on the session loop,
	// so it sees a consistent document.
	Prepare func() *ports.DocumentRecord

	// Save performs the persistence I/O, off the session loop. Failures
	// surface as StatusError.
	Save func(ctx context.Context, record *ports.DocumentRecord) error

	// Dispatch posts a function onto the session's single-writer loop.
	// Every timer firing and save completion re-enters through it.
	Dispatch func(func())

	// Spawn runs the save I/O off the session loop. Defaults to a goroutine.
	Spawn func(func())

	Clock  clock.Clock
	Logger *zap.Logger
}

// Scheduler owns the debounce and status-reset timers for one session. Not
// safe for concurrent use; all methods run on the session loop.
type Scheduler struct {
	logger      *zap.Logger
	clock       clock.Clock
	dispatch    func(func())
	spawn       func(func())
	prepare     func() *ports.DocumentRecord
	save        func(ctx context.Context, record *ports.DocumentRecord) error
	debounce    time.Duration
	statusReset time.Duration

	roomEnabled bool
	readOnly    bool
	status      Status
	closed      bool

	debounceTimer clock.Timer
	resetTimer    clock.Timer

	onStatus func(Status)
	onToggle func(bool)
}

// NewScheduler creates an autosave scheduler
func NewScheduler(cfg Config, deps Deps) *Scheduler {
	spawn := deps.Spawn
	if spawn == nil {
		spawn = func(fn func()) { go fn() }
	}
	return &Scheduler{
		logger:      deps.Logger,
		clock:       deps.Clock,
		dispatch:    deps.Dispatch,
		spawn:       spawn,
		prepare:     deps.Prepare,
		save:        deps.Save,
		debounce:    cfg.Debounce,
		statusReset: cfg.StatusReset,
		roomEnabled: cfg.Enabled,
		status:      StatusIdle,
	}
}

// OnStatus registers the status-transition callback
func (s *Scheduler) OnStatus(fn func(Status)) {
	s.onStatus = fn
}

// OnToggle registers the callback that broadcasts a local toggle to the room
func (s *Scheduler) OnToggle(fn func(bool)) {
	s.onToggle = fn
}

// SetReadOnly forces the effective flag off for viewer participants,
// regardless of the shared room setting
func (s *Scheduler) SetReadOnly(readOnly bool) {
	s.readOnly = readOnly
	if readOnly {
		s.cancelPending()
	}
}

// Enabled reports the effective autosave flag
func (s *Scheduler) Enabled() bool {
	return s.roomEnabled && !s.readOnly && !s.closed
}

// Status returns the current save status
func (s *Scheduler) Status() Status {
	return s.status
}

// Schedule requests a debounced save. Repeated calls within the debounce
// window coalesce into one save.
func (s *Scheduler) Schedule() {
	if !s.Enabled() {
		return
	}
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = s.clock.AfterFunc(s.debounce, func() {
		s.dispatch(s.fire)
	})
}

// SaveNow bypasses the debounce and saves immediately. The done callback
// receives the definite outcome. Pending debounced work is absorbed into
// this save.
func (s *Scheduler) SaveNow(ctx context.Context, done func(error)) {
	if s.closed {
		done(pkgerrors.NewTransportUnavailableError("save"))
		return
	}
	if s.readOnly {
		done(pkgerrors.NewForbiddenError("read-only participants cannot save"))
		return
	}
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	s.beginSave(ctx, done)
}

// SetEnabled applies a local toggle and broadcasts it to the room.
// Disabling cancels any pending scheduled save and status-reset timer and
// forces the status back to idle.
func (s *Scheduler) SetEnabled(enabled bool) {
	if s.closed || s.readOnly {
		return
	}
	if s.roomEnabled == enabled {
		return
	}
	s.applyEnabled(enabled)
	if s.onToggle != nil {
		s.onToggle(enabled)
	}
}

// ApplyRemote applies a room-synchronized toggle received from a peer.
// It never re-broadcasts, preventing toggle ping-pong.
func (s *Scheduler) ApplyRemote(enabled bool) {
	if s.closed {
		return
	}
	if s.roomEnabled == enabled {
		return
	}
	s.applyEnabled(enabled)
}

// Close cancels all timers and stops the scheduler. A debounced save that
// has not fired is discarded, not flushed.
func (s *Scheduler) Close() {
	s.cancelPending()
	s.closed = true
}

func (s *Scheduler) applyEnabled(enabled bool) {
	s.roomEnabled = enabled
	if !enabled {
		s.cancelPending()
	}
}

func (s *Scheduler) cancelPending() {
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
	s.setStatus(StatusIdle)
}

// fire runs on the session loop when the debounce window elapses
func (s *Scheduler) fire() {
	s.debounceTimer = nil
	if !s.Enabled() {
		return
	}
	s.beginSave(context.Background(), nil)
}

func (s *Scheduler) beginSave(ctx context.Context, done func(error)) {
	record := s.prepare()
	s.setStatus(StatusSaving)
	s.spawn(func() {
		err := s.save(ctx, record)
		s.dispatch(func() {
			s.finishSave(err)
			if done != nil {
				done(err)
			}
		})
	})
}

func (s *Scheduler) finishSave(err error) {
	if s.closed {
		return
	}
	if err != nil {
		s.logger.Error("Autosave failed", zap.Error(err))
		s.setStatus(StatusError)
		return
	}
	s.setStatus(StatusSaved)
	if s.resetTimer != nil {
		s.resetTimer.Stop()
	}
	s.resetTimer = s.clock.AfterFunc(s.statusReset, func() {
		s.dispatch(s.resetStatus)
	})
}

func (s *Scheduler) resetStatus() {
	s.resetTimer = nil
	if s.status == StatusSaved {
		s.setStatus(StatusIdle)
	}
}

func (s *Scheduler) setStatus(status Status) {
	if s.status == status {
		return
	}
	s.status = status
	if s.onStatus != nil {
		s.onStatus(status)
	}
}
