package ws

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mindmesh/application/ports"
	"mindmesh/pkg/auth"
	"mindmesh/pkg/observability"
	"mindmesh/protocol"
)

// Hub owns the live rooms, one per open document. Connections authenticate
// with a join token; the token's document claim decides the room, so a
// client cannot connect into a room it was not granted.
type Hub struct {
	issuer    *auth.TokenIssuer
	publisher ports.EventPublisher
	metrics   *observability.Collector
	mirror    ports.Broadcaster
	logger    *zap.Logger
	upgrader  websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]*Room

	autosaveDefault bool
}

// NewHub creates a hub. A non-nil mirror receives every room frame in
// addition to the in-process connections, for deployments where some
// members hold API Gateway connections instead of sockets on this process.
func NewHub(issuer *auth.TokenIssuer, publisher ports.EventPublisher, metrics *observability.Collector, mirror ports.Broadcaster, autosaveDefault bool, logger *zap.Logger) *Hub {
	return &Hub{
		issuer:    issuer,
		publisher: publisher,
		metrics:   metrics,
		mirror:    mirror,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients carry the join token instead of an Origin
			// contract; CORS is enforced at the REST layer that issued it
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms:           make(map[string]*Room),
		autosaveDefault: autosaveDefault,
	}
}

// ServeHTTP upgrades a connection and admits it to its token's room
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	claims, err := h.issuer.Parse(token)
	if err != nil {
		h.logger.Warn("Rejecting connection with bad token", zap.Error(err))
		http.Error(w, "invalid join token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", zap.Error(err))
		return
	}

	room := h.getOrCreate(claims.DocumentID)
	client := newClient(uuid.NewString(), conn, room, h.logger)
	client.userID = claims.Subject
	client.role = claims.Role
	client.name = r.URL.Query().Get("name")
	client.color = r.URL.Query().Get("color")
	client.avatar = r.URL.Query().Get("avatar")

	select {
	case room.register <- client:
	case <-room.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Push broadcasts an authority message into a document's room, if it is
// live. Used by the REST layer for access-control pushes.
func (h *Hub) Push(documentID string, t protocol.MessageType, payload interface{}) bool {
	h.mu.RLock()
	room, ok := h.rooms[documentID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	room.Push(t, payload)
	return true
}

// RoomCount returns the number of live rooms
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Close shuts every room down
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.rooms {
		room.close()
		delete(h.rooms, id)
	}
}

func (h *Hub) getOrCreate(documentID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[documentID]; ok {
		return room
	}

	room := newRoom(documentID, h.autosaveDefault, h.publisher, h.metrics, h.mirror, h.dropRoom, h.logger)
	h.rooms[documentID] = room
	h.metrics.RoomsActive.Inc()
	go room.run()

	h.logger.Info("Room opened", zap.String("room", documentID))
	return room
}

// dropRoom retires an empty room. Called from the room's own loop; the
// ledger and autosave flag die with it, which is why rejoining a quiet
// document starts history fresh.
func (h *Hub) dropRoom(documentID string) {
	h.mu.Lock()
	room, ok := h.rooms[documentID]
	if ok {
		delete(h.rooms, documentID)
	}
	h.mu.Unlock()

	if ok {
		room.close()
		h.metrics.RoomsActive.Dec()
		h.logger.Info("Room retired", zap.String("room", documentID))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
