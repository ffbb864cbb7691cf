package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindmesh/application/access"
	"mindmesh/domain/core/aggregates"
	"mindmesh/domain/core/entities"
	"mindmesh/domain/core/valueobjects"
	"mindmesh/infrastructure/persistence/memory"
	"mindmesh/pkg/clock"
	pkgerrors "mindmesh/pkg/errors"
	"mindmesh/protocol"
)

// pipeChannel is an in-memory transport: outbound messages are captured for
// inspection, inbound messages are injected by the test.
type pipeChannel struct {
	mu      sync.Mutex
	sent    []*protocol.Message
	inbound chan *protocol.Message
	closed  bool
}

func newPipeChannel() *pipeChannel {
	return &pipeChannel{inbound: make(chan *protocol.Message, 64)}
}

func (c *pipeChannel) Send(_ context.Context, msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return pkgerrors.NewTransportUnavailableError("send")
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *pipeChannel) Receive() <-chan *protocol.Message {
	return c.inbound
}

func (c *pipeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

func (c *pipeChannel) deliver(msg *protocol.Message) {
	c.inbound <- msg
}

func (c *pipeChannel) ofType(t protocol.MessageType) []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.Message
	for _, msg := range c.sent {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

func (c *pipeChannel) countOf(t protocol.MessageType) int {
	return len(c.ofType(t))
}

type sessionFixture struct {
	session *Session
	channel *pipeChannel
	clk     *clock.Fake
	repo    *memory.DocumentRepository
	doc     *aggregates.Document
}

func newFixture(t *testing.T, role Role) *sessionFixture {
	t.Helper()
	channel := newPipeChannel()
	repo := memory.NewDocumentRepository()
	clk := clock.NewFake()
	doc := aggregates.NewDocument("doc-1", "Test Map")

	s := New(
		Config{
			DocumentID:          "doc-1",
			Token:               "join-token",
			Identity:            Identity{UserID: "u-self", Name: "Me", Color: "#111111", Role: role, IsOwner: role == RoleOwner},
			DebounceInterval:    1500 * time.Millisecond,
			MinSnapshotInterval: 500 * time.Millisecond,
			StatusResetDelay:    2 * time.Second,
			ReannounceCooldown:  1500 * time.Millisecond,
			AutosaveEnabled:     true,
			JoinTimeout:         2 * time.Second,
		},
		doc,
		channel,
		repo,
		clk,
		zap.NewNop(),
	)
	t.Cleanup(s.Close)
	return &sessionFixture{session: s, channel: channel, clk: clk, repo: repo, doc: doc}
}

// join starts the session and delivers the authority's room assignment
func (f *sessionFixture) join(t *testing.T, role Role) {
	t.Helper()
	require.NoError(t, f.session.Start(context.Background()))
	f.channel.deliver(&protocol.Message{
		Type: protocol.TypeJoined,
		Room: "doc-1",
		Payload: &protocol.JoinedPayload{
			ClientID:        "client-self",
			Room:            "doc-1",
			Role:            string(role),
			AutosaveEnabled: true,
		},
	})
	require.NoError(t, f.session.WaitJoined(context.Background()))
}

// sync delivers a marker presence message and waits for it to be folded in,
// guaranteeing every earlier inbound message has been processed
func (f *sessionFixture) sync(t *testing.T) {
	t.Helper()
	f.channel.deliver(&protocol.Message{
		Type:    protocol.TypePresenceCursor,
		Sender:  "marker",
		Payload: &protocol.CursorPayload{ClientID: "marker", Cursor: valueobjects.Position{}},
	})
	require.Eventually(t, func() bool {
		found := make(chan bool, 1)
		f.session.post(func() {
			_, ok := f.session.tracker.Get("marker")
			found <- ok
		})
		return <-found
	}, 2*time.Second, 5*time.Millisecond)
}

// onLoop runs fn on the session loop and waits for it
func (f *sessionFixture) onLoop(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, f.session.post(func() {
		fn()
		close(done)
	}))
	<-done
}

func TestSessionJoinFlow(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)

	// The join request carried the token and identity
	joins := f.channel.ofType(protocol.TypeJoin)
	require.Len(t, joins, 1)
	join := joins[0].Payload.(*protocol.JoinPayload)
	assert.Equal(t, "doc-1", join.DocumentID)
	assert.Equal(t, "join-token", join.Token)

	// Joining announces presence and seeds the authority's history ledger
	assert.Equal(t, 1, f.channel.countOf(protocol.TypePresenceAnnounce))
	assert.Equal(t, 1, f.channel.countOf(protocol.TypeHistoryRecord))

	f.onLoop(t, func() {
		assert.Equal(t, "client-self", f.session.clientID)
		assert.Equal(t, RoleEditor, f.session.role)
	})
}

func TestSessionAddNodeDefaults(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)
	f.clk.Advance(time.Second)

	id, err := f.session.AddNode(valueobjects.Position{X: 10, Y: 20}, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	f.onLoop(t, func() {
		nodeID, err := valueobjects.NewNodeIDFromString(id)
		require.NoError(t, err)
		node, ok := f.doc.Node(nodeID)
		require.True(t, ok)
		assert.Equal(t, "rectangle", node.ShapeType())
		data := node.Data()
		assert.Equal(t, "New Node", data["label"])
		assert.Equal(t, "#3b82f6", data["color"])
		assert.Equal(t, "rectangle", data["shape"])
	})

	adds := f.channel.ofType(protocol.TypeNodesAdd)
	require.Len(t, adds, 1)
	assert.Equal(t, "client-self", adds[0].Sender)
	assert.Equal(t, "doc-1", adds[0].Room)

	// An add is significant: snapshot capture plus autosave scheduling
	assert.Equal(t, 2, f.channel.countOf(protocol.TypeHistoryRecord))
}

func TestSessionTransientPatch(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)
	f.clk.Advance(time.Second)

	id, err := f.session.AddNode(valueobjects.Position{}, "circle")
	require.NoError(t, err)
	records := f.channel.countOf(protocol.TypeHistoryRecord)

	// Transient UI flags never broadcast or capture
	require.NoError(t, f.session.UpdateNodeData(id, map[string]interface{}{"isEditing": true}))
	assert.Equal(t, 0, f.channel.countOf(protocol.TypeNodesUpdate))
	assert.Equal(t, records, f.channel.countOf(protocol.TypeHistoryRecord))

	// A significant patch does both
	f.clk.Advance(time.Second)
	require.NoError(t, f.session.UpdateNodeData(id, map[string]interface{}{"label": "Renamed"}))
	assert.Equal(t, 1, f.channel.countOf(protocol.TypeNodesUpdate))
	assert.Equal(t, records+1, f.channel.countOf(protocol.TypeHistoryRecord))
}

func TestSessionConnectDedup(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)

	a, err := f.session.AddNode(valueobjects.Position{}, "")
	require.NoError(t, err)
	b, err := f.session.AddNode(valueobjects.Position{X: 100}, "")
	require.NoError(t, err)

	edgeID, err := f.session.Connect(a, b, "right", "left")
	require.NoError(t, err)
	assert.NotEmpty(t, edgeID)

	// The identical connection is a silent no-op, not an error
	dup, err := f.session.Connect(a, b, "right", "left")
	require.NoError(t, err)
	assert.Empty(t, dup)
	assert.Equal(t, 1, f.channel.countOf(protocol.TypeConnect))

	_, err = f.session.Connect(a, a, "", "")
	assert.ErrorIs(t, err, aggregates.ErrSelfConnection)
}

func TestSessionEchoSuppression(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)

	id, err := f.session.AddNode(valueobjects.Position{}, "")
	require.NoError(t, err)

	// The authority relays our own change back; folding it must be a no-op
	f.channel.deliver(&protocol.Message{
		Type:    protocol.TypeNodesRemove,
		Sender:  "client-self",
		Payload: &protocol.RemovePayload{IDs: []string{id}},
	})
	f.sync(t)

	f.onLoop(t, func() {
		nodeID, _ := valueobjects.NewNodeIDFromString(id)
		assert.True(t, f.doc.HasNode(nodeID), "own echo must not mutate the store")
	})
}

func TestSessionRemoteReduce(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)

	remote := entities.NewNode(valueobjects.Position{X: 5, Y: 5}, "circle")
	f.channel.deliver(&protocol.Message{
		Type:    protocol.TypeNodesAdd,
		Sender:  "peer",
		Payload: &protocol.NodesPayload{Nodes: []entities.NodeState{remote.State()}},
	})
	f.sync(t)

	f.onLoop(t, func() {
		assert.True(t, f.doc.HasNode(remote.ID()))
	})

	// Remote changes never echo back out and never schedule persistence
	assert.Equal(t, 0, f.channel.countOf(protocol.TypeNodesAdd))
	f.clk.Advance(time.Minute)
	_, err := f.repo.GetByID(context.Background(), "doc-1")
	assert.Error(t, err, "a remote-only change must not autosave on this client")
}

func TestSessionRemoteEdgeIDCollision(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)

	a, err := f.session.AddNode(valueobjects.Position{}, "")
	require.NoError(t, err)
	b, err := f.session.AddNode(valueobjects.Position{X: 100}, "")
	require.NoError(t, err)
	edgeID, err := f.session.Connect(a, b, "", "")
	require.NoError(t, err)

	// A peer reuses our edge id for a different connection. The add must
	// come in under a fresh id with the local edge left alone.
	c := entities.NewNode(valueobjects.Position{X: 200}, "circle")
	d := entities.NewNode(valueobjects.Position{X: 300}, "circle")
	f.channel.deliver(&protocol.Message{
		Type:    protocol.TypeNodesAdd,
		Sender:  "peer",
		Payload: &protocol.NodesPayload{Nodes: []entities.NodeState{c.State(), d.State()}},
	})
	f.channel.deliver(&protocol.Message{
		Type:   protocol.TypeEdgesAdd,
		Sender: "peer",
		Payload: &protocol.EdgesPayload{Edges: []entities.EdgeState{{
			ID:     edgeID,
			Source: c.ID().String(),
			Target: d.ID().String(),
			Type:   entities.DefaultEdgeType,
			Label:  "peer-edge",
		}}},
	})
	f.sync(t)

	f.onLoop(t, func() {
		require.Equal(t, 2, f.doc.EdgeCount())

		id, idErr := valueobjects.NewEdgeIDFromString(edgeID)
		require.NoError(t, idErr)
		local, ok := f.doc.Edge(id)
		require.True(t, ok)
		assert.Equal(t, a, local.State().Source)
		assert.Empty(t, local.State().Label, "colliding add must not overwrite the local edge")

		key := valueobjects.NewEdgeKey(c.ID(), d.ID(), "", "")
		assert.True(t, f.doc.HasConnection(key), "peer connection must survive under a fresh id")
		for _, state := range f.doc.EdgeStates() {
			if state.Source == c.ID().String() {
				assert.NotEqual(t, edgeID, state.ID)
				assert.Equal(t, "peer-edge", state.Label)
			}
		}
	})
}

func TestSessionRemoteEdgeUpdate(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)

	a, err := f.session.AddNode(valueobjects.Position{}, "")
	require.NoError(t, err)
	b, err := f.session.AddNode(valueobjects.Position{X: 100}, "")
	require.NoError(t, err)
	edgeID, err := f.session.Connect(a, b, "", "")
	require.NoError(t, err)

	// An update carrying the edge's own connection is a plain replace
	f.channel.deliver(&protocol.Message{
		Type:   protocol.TypeEdgesUpdate,
		Sender: "peer",
		Payload: &protocol.EdgesPayload{Edges: []entities.EdgeState{{
			ID:     edgeID,
			Source: a,
			Target: b,
			Type:   entities.DefaultEdgeType,
			Label:  "renamed",
		}}},
	})
	f.sync(t)

	f.onLoop(t, func() {
		assert.Equal(t, 1, f.doc.EdgeCount())
		id, _ := valueobjects.NewEdgeIDFromString(edgeID)
		edge, ok := f.doc.Edge(id)
		require.True(t, ok)
		assert.Equal(t, "renamed", edge.State().Label)
	})

	// An update reusing the id for a different connection is a collision,
	// handled like a colliding add
	c := entities.NewNode(valueobjects.Position{X: 200}, "circle")
	f.channel.deliver(&protocol.Message{
		Type:    protocol.TypeNodesAdd,
		Sender:  "peer",
		Payload: &protocol.NodesPayload{Nodes: []entities.NodeState{c.State()}},
	})
	f.channel.deliver(&protocol.Message{
		Type:   protocol.TypeEdgesUpdate,
		Sender: "peer",
		Payload: &protocol.EdgesPayload{Edges: []entities.EdgeState{{
			ID:     edgeID,
			Source: b,
			Target: c.ID().String(),
			Type:   entities.DefaultEdgeType,
		}}},
	})
	f.sync(t)

	f.onLoop(t, func() {
		assert.Equal(t, 2, f.doc.EdgeCount())
		id, _ := valueobjects.NewEdgeIDFromString(edgeID)
		edge, ok := f.doc.Edge(id)
		require.True(t, ok)
		assert.Equal(t, a, edge.State().Source, "local connection must be untouched")
	})
}

func TestSessionRemoteCascade(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)
	f.clk.Advance(time.Second)

	a, err := f.session.AddNode(valueobjects.Position{}, "")
	require.NoError(t, err)
	b, err := f.session.AddNode(valueobjects.Position{X: 100}, "")
	require.NoError(t, err)
	_, err = f.session.Connect(a, b, "", "")
	require.NoError(t, err)

	// A peer deletes the root; the cascade must take the child too
	f.channel.deliver(&protocol.Message{
		Type:    protocol.TypeNodesRemove,
		Sender:  "peer",
		Payload: &protocol.RemovePayload{IDs: []string{a}},
	})
	f.sync(t)

	f.onLoop(t, func() {
		assert.Equal(t, 0, f.doc.NodeCount())
		assert.Equal(t, 0, f.doc.EdgeCount())
	})
}

func TestSessionViewerForbidden(t *testing.T) {
	f := newFixture(t, RoleViewer)
	f.join(t, RoleViewer)

	_, err := f.session.AddNode(valueobjects.Position{}, "")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeForbidden))

	err = f.session.SetViewport(valueobjects.Viewport{Zoom: 2})
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeForbidden))
}

func TestSessionBlockedIsTerminal(t *testing.T) {
	f := newFixture(t, RoleEditor)

	var blocked []string
	f.session.OnBlocked(func(b access.Block) {
		blocked = append(blocked, b.Reason)
	})
	f.join(t, RoleEditor)

	f.channel.deliver(&protocol.Message{
		Type:    protocol.TypeDocumentDeleted,
		Sender:  "peer",
		Payload: &protocol.DocumentDeletedPayload{ActorUserID: "u-owner"},
	})
	f.sync(t)

	_, err := f.session.AddNode(valueobjects.Position{}, "")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeAccessDenied))
	assert.Equal(t, []string{"document_deleted"}, blocked)
}

func TestSessionUndoRoundTrip(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)
	f.clk.Advance(time.Second)

	id, err := f.session.AddNode(valueobjects.Position{}, "")
	require.NoError(t, err)

	// Reply to the undo request with the pre-add snapshot
	restored := aggregates.NewDocument("doc-1", "Test Map").Snapshot()
	go func() {
		for {
			requests := f.channel.ofType(protocol.TypeUndoRequest)
			if len(requests) > 0 {
				payload := requests[0].Payload.(*protocol.HistoryRequestPayload)
				f.channel.deliver(&protocol.Message{
					Type:    protocol.TypeUndoResult,
					Sender:  "authority",
					Payload: &protocol.HistoryResultPayload{RequestID: payload.RequestID, OK: true, Snapshot: &restored},
				})
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	applied, err := f.session.Undo(context.Background())
	require.NoError(t, err)
	assert.True(t, applied)

	f.onLoop(t, func() {
		nodeID, _ := valueobjects.NewNodeIDFromString(id)
		assert.False(t, f.doc.HasNode(nodeID))
	})

	// Applying the snapshot must not echo structural messages back out
	assert.Equal(t, 1, f.channel.countOf(protocol.TypeNodesAdd))
}

func TestSessionSaveNow(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)

	_, err := f.session.AddNode(valueobjects.Position{}, "")
	require.NoError(t, err)

	require.NoError(t, f.session.SaveNow(context.Background()))

	record, err := f.repo.GetByID(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Len(t, record.Nodes, 1)
}

func TestSessionClosedRejectsMutations(t *testing.T) {
	f := newFixture(t, RoleEditor)
	f.join(t, RoleEditor)
	f.session.Close()

	_, err := f.session.AddNode(valueobjects.Position{}, "")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeTransportUnavailable))

	err = f.session.SaveNow(context.Background())
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeTransportUnavailable))
}
