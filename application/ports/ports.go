package ports

import (
	"context"
	"time"

	"mindmesh/domain/core/entities"
	"mindmesh/domain/core/valueobjects"
	"mindmesh/domain/events"
	"mindmesh/protocol"
)

// Channel is the bidirectional, order-preserving-per-room transport to the
// collaboration authority. It is a port in hexagonal architecture - the
// session doesn't know whether it speaks WebSocket, a test pipe, or
// something else.
type Channel interface {
	// Send transmits one message to the authority
	Send(ctx context.Context, msg *protocol.Message) error

	// Receive returns the stream of inbound messages, in delivery order.
	// The channel is closed when the transport shuts down.
	Receive() <-chan *protocol.Message

	// Close tears the transport down
	Close() error
}

// DocumentRecord is the persistence shape of a document
type DocumentRecord struct {
	ID        string                 `json:"id"`
	OwnerID   string                 `json:"ownerId"`
	Title     string                 `json:"title"`
	Nodes     []entities.NodeState   `json:"nodes"`
	Edges     []entities.EdgeState   `json:"edges"`
	Viewport  *valueobjects.Viewport `json:"viewport,omitempty"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// DocumentRepository is the document persistence collaborator
type DocumentRepository interface {
	// GetByID hydrates a document
	GetByID(ctx context.Context, id string) (*DocumentRecord, error)

	// Save persists a document and returns the stored record
	Save(ctx context.Context, record *DocumentRecord) (*DocumentRecord, error)

	// Delete removes a document
	Delete(ctx context.Context, id string) error

	// ListByOwner retrieves all documents owned by a user
	ListByOwner(ctx context.Context, ownerID string) ([]*DocumentRecord, error)
}

// EventPublisher publishes domain events to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, event events.DomainEvent) error
}

// Broadcaster fans messages out to the members of a room
type Broadcaster interface {
	// SendTo delivers a frame to one client
	SendTo(ctx context.Context, clientID string, data []byte) error

	// Broadcast delivers a frame to every room member except one. An empty
	// exclusion broadcasts to all.
	Broadcast(ctx context.Context, room string, excludeClientID string, data []byte) error
}
