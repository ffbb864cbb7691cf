package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindmesh/domain/core/valueobjects"
	"mindmesh/pkg/clock"
	"mindmesh/protocol"
)

func newTestTracker(t *testing.T) (*Tracker, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake()
	self := protocol.ParticipantState{ClientID: "self", UserID: "u-self", Name: "Me", Color: "#111111"}
	return NewTracker(self, 1500*time.Millisecond, clk, zap.NewNop()), clk
}

func TestTrackerNeverStoresSelf(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tracker.ApplyState([]protocol.ParticipantState{
		{ClientID: "self", Name: "Me"},
		{ClientID: "peer", Name: "Them"},
		{ClientID: ""},
	})
	assert.Len(t, tracker.Participants(), 1)

	tracker.ApplyAnnounce(protocol.ParticipantState{ClientID: "self", Name: "Me again"})
	tracker.ApplyCursor("self", valueobjects.Position{X: 1, Y: 1})
	assert.Len(t, tracker.Participants(), 1)
	_, ok := tracker.Get("self")
	assert.False(t, ok)
}

func TestTrackerReannounceCooldown(t *testing.T) {
	tracker, clk := newTestTracker(t)

	var announced int
	tracker.OnAnnounce(func(protocol.ParticipantState) { announced++ })
	tracker.MarkAnnounced()

	// Inside the cooldown window, peer announces do not echo back
	clk.Advance(500 * time.Millisecond)
	tracker.ApplyAnnounce(protocol.ParticipantState{ClientID: "peer-1", Name: "A"})
	assert.Equal(t, 0, announced)

	// Past the window, the next peer announce triggers exactly one
	clk.Advance(1100 * time.Millisecond)
	tracker.ApplyAnnounce(protocol.ParticipantState{ClientID: "peer-2", Name: "B"})
	assert.Equal(t, 1, announced)

	tracker.ApplyAnnounce(protocol.ParticipantState{ClientID: "peer-3", Name: "C"})
	assert.Equal(t, 1, announced, "the re-announce restarts the window")
}

func TestTrackerAnnouncePreservesLiveState(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tracker.ApplyCursor("peer", valueobjects.Position{X: 10, Y: 20})
	tracker.ApplyActive("peer", protocol.ActiveElement{Kind: "node", ID: "n1"})

	tracker.ApplyAnnounce(protocol.ParticipantState{ClientID: "peer", UserID: "u-peer", Name: "Them", Color: "#222222"})

	peer, ok := tracker.Get("peer")
	require.True(t, ok)
	assert.Equal(t, "Them", peer.Name)
	require.NotNil(t, peer.Cursor)
	assert.Equal(t, valueobjects.Position{X: 10, Y: 20}, *peer.Cursor)
	require.NotNil(t, peer.Active)
	assert.Equal(t, "n1", peer.Active.ID)
}

func TestTrackerCursorForUnknownPeer(t *testing.T) {
	tracker, _ := newTestTracker(t)

	// Cursor may arrive before the peer's announce
	tracker.ApplyCursor("early", valueobjects.Position{X: 5, Y: 5})

	peer, ok := tracker.Get("early")
	require.True(t, ok)
	assert.Empty(t, peer.Name)
	require.NotNil(t, peer.Cursor)
}

func TestTrackerLeftAndClear(t *testing.T) {
	tracker, _ := newTestTracker(t)
	tracker.ApplyAnnounce(protocol.ParticipantState{ClientID: "a", Name: "A"})
	tracker.ApplyAnnounce(protocol.ParticipantState{ClientID: "b", Name: "B"})

	tracker.ApplyLeft("a")
	assert.Len(t, tracker.Participants(), 1)

	tracker.Clear()
	assert.Empty(t, tracker.Participants())
}

func TestTrackerActiveFocus(t *testing.T) {
	tracker, _ := newTestTracker(t)
	tracker.ApplyAnnounce(protocol.ParticipantState{ClientID: "peer", Name: "Them"})

	tracker.ApplyActive("peer", protocol.ActiveElement{Kind: "edge", ID: "e7"})
	peer, _ := tracker.Get("peer")
	require.NotNil(t, peer.Active)

	tracker.ApplyClearActive("peer")
	peer, _ = tracker.Get("peer")
	assert.Nil(t, peer.Active)
}
