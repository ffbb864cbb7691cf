package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mindmesh/application/ports"
	"mindmesh/domain/core/aggregates"
	"mindmesh/domain/events"
	"mindmesh/pkg/observability"
	"mindmesh/protocol"
)

type inboundFrame struct {
	client *Client
	msg    *protocol.Message
}

type mirrorFrame struct {
	exclude string
	data    []byte
}

// Room is the authority for one open document: the participant roster, the
// undo ledger, and the room-wide autosave flag all live here. A single
// goroutine owns all of it; clients and the REST layer talk to it through
// channels.
type Room struct {
	id     string
	logger *zap.Logger

	clients      map[string]*Client
	participants map[string]protocol.ParticipantState
	ledger       *Ledger
	autosave     bool

	inbound    chan inboundFrame
	register   chan *Client
	unregister chan *Client
	tasks      chan func()
	done       chan struct{}

	publisher ports.EventPublisher
	metrics   *observability.Collector
	onEmpty   func(roomID string)

	// mirror carries frames to room members connected through an external
	// gateway rather than this process. It keeps its own connection
	// registry; the room only hands it encoded frames, off the loop so a
	// slow gateway cannot stall in-process delivery.
	mirror  ports.Broadcaster
	mirrorQ chan mirrorFrame
}

func newRoom(id string, autosaveDefault bool, publisher ports.EventPublisher, metrics *observability.Collector, mirror ports.Broadcaster, onEmpty func(string), logger *zap.Logger) *Room {
	var mirrorQ chan mirrorFrame
	if mirror != nil {
		mirrorQ = make(chan mirrorFrame, 256)
	}
	return &Room{
		id:           id,
		logger:       logger.With(zap.String("room", id)),
		clients:      make(map[string]*Client),
		participants: make(map[string]protocol.ParticipantState),
		ledger:       NewLedger(),
		autosave:     autosaveDefault,
		inbound:      make(chan inboundFrame, 256),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		tasks:        make(chan func(), 32),
		done:         make(chan struct{}),
		publisher:    publisher,
		metrics:      metrics,
		onEmpty:      onEmpty,
		mirror:       mirror,
		mirrorQ:      mirrorQ,
	}
}

func (r *Room) run() {
	if r.mirror != nil {
		go r.mirrorLoop()
	}
	for {
		select {
		case client := <-r.register:
			r.admit(client)
		case client := <-r.unregister:
			r.evict(client)
		case frame := <-r.inbound:
			r.handle(frame)
		case fn := <-r.tasks:
			fn()
		case <-r.done:
			for _, client := range r.clients {
				close(client.send)
			}
			return
		}
	}
}

// Push runs a broadcast on the room loop on behalf of the REST layer, e.g.
// access revocations
func (r *Room) Push(t protocol.MessageType, payload interface{}) {
	select {
	case r.tasks <- func() { r.broadcast(t, "", payload) }:
	case <-r.done:
	}
}

// admit completes a join: roster entry, the joined reply, and the roster
// push to everyone else
func (r *Room) admit(client *Client) {
	r.clients[client.id] = client
	r.participants[client.id] = protocol.ParticipantState{
		ClientID: client.id,
		UserID:   client.userID,
		Name:     client.name,
		Color:    client.color,
		Avatar:   client.avatar,
	}
	r.metrics.ClientsConnected.Inc()

	r.sendTo(client, protocol.TypeJoined, &protocol.JoinedPayload{
		ClientID:        client.id,
		Room:            r.id,
		Role:            client.role,
		Participants:    r.roster(client.id),
		CanUndo:         r.ledger.CanUndo(),
		CanRedo:         r.ledger.CanRedo(),
		AutosaveEnabled: r.autosave,
	})

	r.logger.Info("Client joined",
		zap.String("clientID", client.id),
		zap.String("userID", client.userID),
		zap.String("role", client.role),
		zap.Int("participants", len(r.clients)),
	)

	if err := r.publisher.Publish(context.Background(),
		events.NewParticipantJoined(r.id, client.id, client.userID, client.role, time.Now())); err != nil {
		r.logger.Debug("Audit publish failed", zap.Error(err))
	}
}

func (r *Room) evict(client *Client) {
	if _, ok := r.clients[client.id]; !ok {
		return
	}
	delete(r.clients, client.id)
	delete(r.participants, client.id)
	close(client.send)
	r.metrics.ClientsConnected.Dec()

	r.broadcast(protocol.TypePresenceLeft, "", &protocol.LeftPayload{ClientID: client.id})

	r.logger.Info("Client left",
		zap.String("clientID", client.id),
		zap.Int("participants", len(r.clients)),
	)

	if err := r.publisher.Publish(context.Background(),
		events.NewParticipantLeft(r.id, client.id, time.Now())); err != nil {
		r.logger.Debug("Audit publish failed", zap.Error(err))
	}

	if len(r.clients) == 0 && r.onEmpty != nil {
		r.onEmpty(r.id)
	}
}

func (r *Room) handle(frame inboundFrame) {
	msg := frame.msg
	r.metrics.MessagesReceived.WithLabelValues(string(msg.Type)).Inc()

	switch msg.Type {
	case protocol.TypePresenceAnnounce:
		if p, ok := msg.Payload.(*protocol.AnnouncePayload); ok {
			participant := p.Participant
			participant.ClientID = frame.client.id
			r.participants[frame.client.id] = participant
			r.relay(frame, msg)
		}
	case protocol.TypePresenceCursor:
		if p, ok := msg.Payload.(*protocol.CursorPayload); ok {
			if state, exists := r.participants[frame.client.id]; exists {
				cursor := p.Cursor
				state.Cursor = &cursor
				r.participants[frame.client.id] = state
			}
			r.relay(frame, msg)
		}
	case protocol.TypePresenceActive:
		if p, ok := msg.Payload.(*protocol.ActivePayload); ok {
			if state, exists := r.participants[frame.client.id]; exists {
				element := p.Element
				state.Active = &element
				r.participants[frame.client.id] = state
			}
			r.relay(frame, msg)
		}
	case protocol.TypePresenceClear:
		if state, exists := r.participants[frame.client.id]; exists {
			state.Active = nil
			r.participants[frame.client.id] = state
		}
		r.relay(frame, msg)

	case protocol.TypeHistoryRecord:
		if p, ok := msg.Payload.(*protocol.SnapshotPayload); ok {
			if r.ledger.Record(p.Snapshot) {
				r.metrics.SnapshotsRecorded.Inc()
				r.pushHistoryState()
			}
		}
	case protocol.TypeUndoRequest:
		if p, ok := msg.Payload.(*protocol.HistoryRequestPayload); ok {
			r.handleHistoryRequest(frame, "undo", p.RequestID, r.ledger.Undo, protocol.TypeUndoResult)
		}
	case protocol.TypeRedoRequest:
		if p, ok := msg.Payload.(*protocol.HistoryRequestPayload); ok {
			r.handleHistoryRequest(frame, "redo", p.RequestID, r.ledger.Redo, protocol.TypeRedoResult)
		}

	case protocol.TypeAutosaveToggle:
		if p, ok := msg.Payload.(*protocol.AutosavePayload); ok {
			if frame.client.role == "viewer" {
				r.metrics.MessagesDropped.WithLabelValues("forbidden").Inc()
				return
			}
			r.autosave = p.Enabled
			r.relay(frame, msg)
		}

	case protocol.TypeNodesAdd, protocol.TypeNodesRemove, protocol.TypeNodesUpdate,
		protocol.TypeEdgesAdd, protocol.TypeEdgesRemove, protocol.TypeEdgesUpdate,
		protocol.TypeConnect, protocol.TypeViewport:
		if frame.client.role == "viewer" {
			r.metrics.MessagesDropped.WithLabelValues("forbidden").Inc()
			return
		}
		r.relay(frame, msg)

	default:
		r.metrics.MessagesDropped.WithLabelValues("unhandled").Inc()
		r.logger.Debug("Dropping unhandled message",
			zap.String("type", string(msg.Type)),
			zap.String("clientID", frame.client.id),
		)
	}
}

// handleHistoryRequest answers an undo or redo. The requester gets the
// result; on success everyone else gets the restored snapshot, and the
// whole room gets fresh capability flags.
func (r *Room) handleHistoryRequest(frame inboundFrame, operation, requestID string, step func() (*aggregates.Snapshot, bool), resultType protocol.MessageType) {
	snapshot, ok := step()
	if !ok {
		r.metrics.UndoRequests.WithLabelValues(operation, "declined").Inc()
		r.sendTo(frame.client, resultType, &protocol.HistoryResultPayload{
			RequestID: requestID,
			OK:        false,
		})
		return
	}

	r.metrics.UndoRequests.WithLabelValues(operation, "applied").Inc()
	r.sendTo(frame.client, resultType, &protocol.HistoryResultPayload{
		RequestID: requestID,
		OK:        true,
		Snapshot:  snapshot,
	})
	r.broadcast(protocol.TypeHistoryRestore, frame.client.id, &protocol.SnapshotPayload{
		Snapshot: *snapshot,
	})
	r.pushHistoryState()
}

func (r *Room) pushHistoryState() {
	r.broadcast(protocol.TypeHistoryState, "", &protocol.HistoryStatePayload{
		CanUndo: r.ledger.CanUndo(),
		CanRedo: r.ledger.CanRedo(),
	})
}

// relay fans a message out to everyone except its sender
func (r *Room) relay(frame inboundFrame, msg *protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		r.logger.Warn("Failed to encode relay", zap.Error(err))
		return
	}
	r.fanOut(data, frame.client.id)
}

// broadcast sends an authority-originated message, optionally excluding one
// client
func (r *Room) broadcast(t protocol.MessageType, excludeClientID string, payload interface{}) {
	data, err := protocol.Encode(&protocol.Message{
		Type:    t,
		Room:    r.id,
		Payload: payload,
	})
	if err != nil {
		r.logger.Warn("Failed to encode broadcast",
			zap.String("type", string(t)),
			zap.Error(err),
		)
		return
	}
	r.fanOut(data, excludeClientID)
}

func (r *Room) fanOut(data []byte, excludeClientID string) {
	for id, client := range r.clients {
		if id == excludeClientID {
			continue
		}
		if !client.enqueue(data) {
			r.metrics.MessagesDropped.WithLabelValues("slow_client").Inc()
			r.logger.Warn("Dropping frame for slow client", zap.String("clientID", id))
		}
	}
	if r.mirrorQ != nil {
		select {
		case r.mirrorQ <- mirrorFrame{exclude: excludeClientID, data: data}:
		default:
			r.metrics.MessagesDropped.WithLabelValues("mirror_backlog").Inc()
		}
	}
	r.metrics.MessagesBroadcast.Inc()
}

// mirrorLoop drains mirror frames one at a time, preserving room order on
// the gateway side
func (r *Room) mirrorLoop() {
	for {
		select {
		case frame := <-r.mirrorQ:
			if err := r.mirror.Broadcast(context.Background(), r.id, frame.exclude, frame.data); err != nil {
				r.logger.Warn("Mirror broadcast failed", zap.Error(err))
			}
		case <-r.done:
			return
		}
	}
}

func (r *Room) sendTo(client *Client, t protocol.MessageType, payload interface{}) {
	data, err := protocol.Encode(&protocol.Message{
		Type:    t,
		Room:    r.id,
		Payload: payload,
	})
	if err != nil {
		r.logger.Warn("Failed to encode reply", zap.Error(err))
		return
	}
	if !client.enqueue(data) {
		r.metrics.MessagesDropped.WithLabelValues("slow_client").Inc()
	}
}

// roster returns every participant except the given client, sorted order not
// guaranteed
func (r *Room) roster(excludeClientID string) []protocol.ParticipantState {
	states := make([]protocol.ParticipantState, 0, len(r.participants))
	for id, state := range r.participants {
		if id == excludeClientID {
			continue
		}
		states = append(states, state)
	}
	return states
}

func (r *Room) close() {
	close(r.done)
}
