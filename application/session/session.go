// Package session owns one open document's collaboration state. All
// handlers for a room run against one shared session under a single-writer
// discipline: local intents, inbound channel batches, and timer firings are
// funnelled through the session's run loop, so the in-memory store is never
// mutated concurrently.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mindmesh/application/access"
	"mindmesh/application/autosave"
	"mindmesh/application/history"
	"mindmesh/application/ports"
	"mindmesh/application/presence"
	"mindmesh/domain/core/aggregates"
	"mindmesh/pkg/clock"
	pkgerrors "mindmesh/pkg/errors"
	"mindmesh/protocol"
)

// Role is a participant's capability in the room
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Identity describes who the local participant is
type Identity struct {
	UserID  string
	Name    string
	Color   string
	Avatar  string
	Role    Role
	IsOwner bool
}

// Config carries a session's tunables
type Config struct {
	DocumentID string
	Token      string
	Identity   Identity

	DebounceInterval    time.Duration
	MinSnapshotInterval time.Duration
	StatusResetDelay    time.Duration
	ReannounceCooldown  time.Duration
	AutosaveEnabled     bool
	JoinTimeout         time.Duration
}

// Session is the single logical writer for one open document
type Session struct {
	cfg     Config
	logger  *zap.Logger
	clock   clock.Clock
	channel ports.Channel
	repo    ports.DocumentRepository

	doc         *aggregates.Document
	coordinator *history.Coordinator
	scheduler   *autosave.Scheduler
	tracker     *presence.Tracker
	guard       *access.Guard

	room     string
	clientID string
	role     Role
	joined   bool

	tasks     chan func()
	done      chan struct{}
	joinedCh  chan struct{}
	closeOnce sync.Once
	joinOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates a session around a hydrated (or bootstrapped) document
func New(cfg Config, doc *aggregates.Document, channel ports.Channel, repo ports.DocumentRepository, clk clock.Clock, logger *zap.Logger) *Session {
	s := &Session{
		cfg:      cfg,
		logger:   logger.With(zap.String("documentID", cfg.DocumentID)),
		clock:    clk,
		channel:  channel,
		repo:     repo,
		doc:      doc,
		role:     cfg.Identity.Role,
		tasks:    make(chan func(), 256),
		done:     make(chan struct{}),
		joinedCh: make(chan struct{}),
	}

	s.coordinator = history.NewCoordinator(cfg.MinSnapshotInterval, history.Deps{
		Capture: s.doc.Snapshot,
		Apply:   s.applyHistorySnapshot,
		Send:    s.sendToAuthority,
		Clock:   clk,
		Logger:  logger,
	})

	s.scheduler = autosave.NewScheduler(
		autosave.Config{
			Debounce:    cfg.DebounceInterval,
			StatusReset: cfg.StatusResetDelay,
			Enabled:     cfg.AutosaveEnabled,
		},
		autosave.Deps{
			Prepare:  s.captureRecord,
			Save:     s.persistRecord,
			Dispatch: s.dispatch,
			Clock:    clk,
			Logger:   logger,
		},
	)
	s.scheduler.OnToggle(func(enabled bool) {
		s.broadcast(protocol.TypeAutosaveToggle, &protocol.AutosavePayload{Enabled: enabled})
	})
	if cfg.Identity.Role == RoleViewer {
		s.scheduler.SetReadOnly(true)
	}

	self := protocol.ParticipantState{
		UserID: cfg.Identity.UserID,
		Name:   cfg.Identity.Name,
		Color:  cfg.Identity.Color,
		Avatar: cfg.Identity.Avatar,
	}
	s.tracker = presence.NewTracker(self, cfg.ReannounceCooldown, clk, logger)
	s.tracker.OnAnnounce(func(p protocol.ParticipantState) {
		s.broadcast(protocol.TypePresenceAnnounce, &protocol.AnnouncePayload{Participant: p})
		s.tracker.MarkAnnounced()
	})

	s.guard = access.NewGuard(cfg.Identity.UserID, cfg.Identity.IsOwner, logger)

	return s
}

// Document returns the session's in-memory store. Reads are only safe from
// the session's own callbacks or after Close.
func (s *Session) Document() *aggregates.Document {
	return s.doc
}

// Presence returns the session's presence tracker
func (s *Session) Presence() *presence.Tracker {
	return s.tracker
}

// Access returns the session's permission guard
func (s *Session) Access() *access.Guard {
	return s.guard
}

// AutosaveStatus returns the current save status
func (s *Session) AutosaveStatus() autosave.Status {
	statusCh := make(chan autosave.Status, 1)
	if !s.post(func() { statusCh <- s.scheduler.Status() }) {
		return autosave.StatusIdle
	}
	select {
	case status := <-statusCh:
		return status
	case <-s.done:
		return autosave.StatusIdle
	}
}

// OnSaveStatus registers a callback for save-status transitions. Must be
// called before Start.
func (s *Session) OnSaveStatus(fn func(autosave.Status)) {
	s.scheduler.OnStatus(fn)
}

// OnBlocked registers a callback for the terminal blocked transition. Must
// be called before Start.
func (s *Session) OnBlocked(fn func(access.Block)) {
	s.guard.OnBlocked(fn)
}

// OnRoleNotice registers a callback for role-change notices. Must be called
// before Start.
func (s *Session) OnRoleNotice(fn func(access.RoleNotice)) {
	s.guard.OnNotice(fn)
}

// Start sends the join request and begins processing. The session is usable
// for mutations once the authority's room assignment arrives; see WaitJoined.
func (s *Session) Start(ctx context.Context) error {
	join := &protocol.Message{
		Type: protocol.TypeJoin,
		Payload: &protocol.JoinPayload{
			DocumentID: s.cfg.DocumentID,
			Token:      s.cfg.Token,
			UserID:     s.cfg.Identity.UserID,
			Name:       s.cfg.Identity.Name,
			Color:      s.cfg.Identity.Color,
			Avatar:     s.cfg.Identity.Avatar,
		},
	}
	if err := s.channel.Send(ctx, join); err != nil {
		return pkgerrors.Wrap(err, "failed to join room")
	}

	s.wg.Add(1)
	go s.run()
	return nil
}

// WaitJoined blocks until the authority assigns the room, the context
// expires, or the session closes
func (s *Session) WaitJoined(ctx context.Context) error {
	timeout := s.cfg.JoinTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.joinedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return pkgerrors.NewTimeoutError("join")
	case <-s.done:
		return pkgerrors.NewTransportUnavailableError("join")
	}
}

// Close tears the session down: every pending debounce, reset, and cooldown
// timer is cancelled, pending history requests are resolved, and the channel
// is left. An in-flight debounced save that has not fired is discarded.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.scheduler.Close()
		s.coordinator.Close()
		s.tracker.Clear()
		if err := s.channel.Close(); err != nil {
			s.logger.Debug("Channel close", zap.Error(err))
		}
		s.logger.Info("Session closed")
	})
}

// run is the session's single-writer loop
func (s *Session) run() {
	defer s.wg.Done()
	inbound := s.channel.Receive()

	for {
		select {
		case <-s.done:
			return
		case fn := <-s.tasks:
			fn()
		case msg, ok := <-inbound:
			if !ok {
				// Transport gone; only teardown can follow
				inbound = nil
				continue
			}
			s.reduce(msg)
		}
	}
}

// post enqueues a task onto the loop, failing once the session is closed
func (s *Session) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	case s.tasks <- fn:
		return true
	}
}

// dispatch is the timer re-entry point; late firings after teardown are
// dropped
func (s *Session) dispatch(fn func()) {
	s.post(fn)
}

// broadcast sends a room-scoped message. Outbound echo is suppressed while
// an authority snapshot is being applied.
func (s *Session) broadcast(t protocol.MessageType, payload interface{}) {
	if s.coordinator.Applying() {
		return
	}
	msg := &protocol.Message{
		Type:    t,
		Room:    s.room,
		Sender:  s.clientID,
		Payload: payload,
	}
	if err := s.channel.Send(context.Background(), msg); err != nil {
		s.logger.Warn("Broadcast failed",
			zap.String("type", string(t)),
			zap.Error(err),
		)
	}
}

// sendToAuthority transmits a message without the applying-history echo
// suppression; history requests must flow even mid-apply
func (s *Session) sendToAuthority(msg *protocol.Message) error {
	msg.Room = s.room
	msg.Sender = s.clientID
	return s.channel.Send(context.Background(), msg)
}

// applyHistorySnapshot applies an authority snapshot verbatim and schedules
// persistence of the restored state
func (s *Session) applyHistorySnapshot(snapshot aggregates.Snapshot) {
	s.doc.RestoreSnapshot(snapshot)
	s.scheduler.Schedule()
}

// captureRecord builds the persistence record from the current store. Runs
// on the session loop.
func (s *Session) captureRecord() *ports.DocumentRecord {
	viewport := s.doc.Viewport()
	return &ports.DocumentRecord{
		ID:       s.doc.ID(),
		Title:    s.doc.Title(),
		Nodes:    s.doc.NodeStates(),
		Edges:    s.doc.EdgeStates(),
		Viewport: &viewport,
	}
}

// persistRecord performs the save I/O, off the session loop
func (s *Session) persistRecord(ctx context.Context, record *ports.DocumentRecord) error {
	if _, err := s.repo.Save(ctx, record); err != nil {
		return pkgerrors.NewPersistenceFailureError(record.ID, err)
	}
	return nil
}

// Undo asks the authority to undo and applies the returned snapshot. A
// declined request (a race with another participant) returns (false, nil).
func (s *Session) Undo(ctx context.Context) (bool, error) {
	return s.requestHistory(ctx, s.coordinator.BeginUndo)
}

// Redo asks the authority to redo and applies the returned snapshot
func (s *Session) Redo(ctx context.Context) (bool, error) {
	return s.requestHistory(ctx, s.coordinator.BeginRedo)
}

type historyBegin struct {
	requestID string
	result    <-chan history.Result
	err       error
}

func (s *Session) requestHistory(ctx context.Context, begin func() (string, <-chan history.Result, error)) (bool, error) {
	beginCh := make(chan historyBegin, 1)
	posted := s.post(func() {
		if !s.joined {
			beginCh <- historyBegin{err: pkgerrors.NewTransportUnavailableError("history")}
			return
		}
		requestID, result, err := begin()
		beginCh <- historyBegin{requestID: requestID, result: result, err: err}
	})
	if !posted {
		return false, pkgerrors.NewTransportUnavailableError("history")
	}

	var b historyBegin
	select {
	case b = <-beginCh:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.done:
		return false, pkgerrors.NewTransportUnavailableError("history")
	}
	if b.err != nil {
		return false, b.err
	}

	select {
	case r := <-b.result:
		return r.Applied, r.Err
	case <-ctx.Done():
		s.post(func() { s.coordinator.Cancel(b.requestID) })
		return false, ctx.Err()
	case <-s.done:
		return false, pkgerrors.NewTransportUnavailableError("history")
	}
}

// SaveNow persists immediately, bypassing the debounce. Used before
// navigation or on demand; the caller gets the definite outcome.
func (s *Session) SaveNow(ctx context.Context) error {
	errCh := make(chan error, 1)
	posted := s.post(func() {
		if !s.joined {
			errCh <- pkgerrors.NewTransportUnavailableError("save")
			return
		}
		s.scheduler.SaveNow(ctx, func(err error) { errCh <- err })
	})
	if !posted {
		return pkgerrors.NewTransportUnavailableError("save")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return pkgerrors.NewTransportUnavailableError("save")
	}
}

// SetAutosaveEnabled applies a local toggle and broadcasts it to the room
func (s *Session) SetAutosaveEnabled(enabled bool) {
	s.post(func() { s.scheduler.SetEnabled(enabled) })
}
