// Package presence tracks ephemeral per-participant state for one room:
// identity, cursor position, and active focus. Nothing here is persisted;
// entries are garbage-collected when a participant leaves.
package presence

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"mindmesh/domain/core/valueobjects"
	"mindmesh/pkg/clock"
	"mindmesh/protocol"
)

// Tracker maintains the presence map for one session. It is not safe for
// concurrent use; the owning session serializes access.
type Tracker struct {
	logger   *zap.Logger
	clock    clock.Clock
	cooldown time.Duration

	self         protocol.ParticipantState
	participants map[string]*protocol.ParticipantState
	lastAnnounce time.Time
	announce     func(protocol.ParticipantState)
}

// NewTracker creates a tracker for the given local identity
func NewTracker(self protocol.ParticipantState, cooldown time.Duration, clk clock.Clock, logger *zap.Logger) *Tracker {
	return &Tracker{
		logger:       logger,
		clock:        clk,
		cooldown:     cooldown,
		self:         self,
		participants: make(map[string]*protocol.ParticipantState),
	}
}

// OnAnnounce registers the callback used to re-announce the local identity
func (t *Tracker) OnAnnounce(fn func(protocol.ParticipantState)) {
	t.announce = fn
}

// Self returns the local participant state
func (t *Tracker) Self() protocol.ParticipantState {
	return t.self
}

// SetSelfClientID records the connection id the authority assigned at join
func (t *Tracker) SetSelfClientID(clientID string) {
	t.self.ClientID = clientID
}

// MarkAnnounced records that the local identity was just announced, starting
// the re-announce cooldown window
func (t *Tracker) MarkAnnounced() {
	t.lastAnnounce = t.clock.Now()
}

// ApplyState merges a full-room presence snapshot. Existing peer entries are
// replaced wholesale; the local identity is never stored in the map.
func (t *Tracker) ApplyState(participants []protocol.ParticipantState) {
	t.participants = make(map[string]*protocol.ParticipantState, len(participants))
	for _, p := range participants {
		if p.ClientID == "" || p.ClientID == t.self.ClientID {
			continue
		}
		entry := p
		t.participants[p.ClientID] = &entry
	}
}

// ApplyAnnounce upserts a peer's identity. Observing a peer announce
// triggers a re-announce of the local identity unless one happened within
// the cooldown window; this handles asymmetric join ordering while bounding
// announce storms.
func (t *Tracker) ApplyAnnounce(p protocol.ParticipantState) {
	if p.ClientID == "" || p.ClientID == t.self.ClientID {
		return
	}

	if existing, ok := t.participants[p.ClientID]; ok {
		// Identity fields win; live cursor/focus survive the re-announce
		existing.UserID = p.UserID
		existing.Name = p.Name
		existing.Color = p.Color
		existing.Avatar = p.Avatar
	} else {
		entry := p
		t.participants[p.ClientID] = &entry
	}

	if t.announce == nil {
		return
	}
	now := t.clock.Now()
	if now.Sub(t.lastAnnounce) >= t.cooldown {
		t.lastAnnounce = now
		t.logger.Debug("Re-announcing after peer announce",
			zap.String("peerClientID", p.ClientID),
		)
		t.announce(t.self)
	}
}

// ApplyLeft removes a departed participant
func (t *Tracker) ApplyLeft(clientID string) {
	delete(t.participants, clientID)
}

// ApplyCursor records a peer's cursor position. Unknown peers get a
// placeholder entry; their announce may still be in flight.
func (t *Tracker) ApplyCursor(clientID string, cursor valueobjects.Position) {
	entry := t.upsert(clientID)
	if entry == nil {
		return
	}
	entry.Cursor = &cursor
}

// ApplyActive records what element a peer is focused on
func (t *Tracker) ApplyActive(clientID string, element protocol.ActiveElement) {
	entry := t.upsert(clientID)
	if entry == nil {
		return
	}
	entry.Active = &element
}

// ApplyClearActive clears a peer's active focus
func (t *Tracker) ApplyClearActive(clientID string) {
	if entry, ok := t.participants[clientID]; ok {
		entry.Active = nil
	}
}

// Participants returns all known peers, sorted by client id
func (t *Tracker) Participants() []protocol.ParticipantState {
	out := make([]protocol.ParticipantState, 0, len(t.participants))
	for _, p := range t.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Get looks up one peer by client id
func (t *Tracker) Get(clientID string) (protocol.ParticipantState, bool) {
	if p, ok := t.participants[clientID]; ok {
		return *p, true
	}
	return protocol.ParticipantState{}, false
}

// Clear drops all peers. Used at teardown.
func (t *Tracker) Clear() {
	t.participants = make(map[string]*protocol.ParticipantState)
}

func (t *Tracker) upsert(clientID string) *protocol.ParticipantState {
	if clientID == "" || clientID == t.self.ClientID {
		return nil
	}
	if entry, ok := t.participants[clientID]; ok {
		return entry
	}
	entry := &protocol.ParticipantState{ClientID: clientID}
	t.participants[clientID] = entry
	return entry
}
