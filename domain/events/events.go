// Package events defines the domain events the authority emits for audit
// and downstream consumers. They describe room and document lifecycle, not
// per-keystroke edits.
package events

import "time"

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// ParticipantJoined is raised when a client joins a room
type ParticipantJoined struct {
	BaseEvent
	DocumentID string `json:"document_id"`
	ClientID   string `json:"client_id"`
	UserID     string `json:"user_id,omitempty"`
	Role       string `json:"role"`
}

// NewParticipantJoined creates a ParticipantJoined event
func NewParticipantJoined(documentID, clientID, userID, role string, timestamp time.Time) ParticipantJoined {
	return ParticipantJoined{
		BaseEvent: BaseEvent{
			AggregateID: documentID,
			EventType:   "room.participant_joined",
			Timestamp:   timestamp,
		},
		DocumentID: documentID,
		ClientID:   clientID,
		UserID:     userID,
		Role:       role,
	}
}

// ParticipantLeft is raised when a client leaves a room
type ParticipantLeft struct {
	BaseEvent
	DocumentID string `json:"document_id"`
	ClientID   string `json:"client_id"`
}

// NewParticipantLeft creates a ParticipantLeft event
func NewParticipantLeft(documentID, clientID string, timestamp time.Time) ParticipantLeft {
	return ParticipantLeft{
		BaseEvent: BaseEvent{
			AggregateID: documentID,
			EventType:   "room.participant_left",
			Timestamp:   timestamp,
		},
		DocumentID: documentID,
		ClientID:   clientID,
	}
}

// DocumentSaved is raised when a document is persisted
type DocumentSaved struct {
	BaseEvent
	DocumentID string `json:"document_id"`
	NodeCount  int    `json:"node_count"`
	EdgeCount  int    `json:"edge_count"`
}

// NewDocumentSaved creates a DocumentSaved event
func NewDocumentSaved(documentID string, nodeCount, edgeCount int, timestamp time.Time) DocumentSaved {
	return DocumentSaved{
		BaseEvent: BaseEvent{
			AggregateID: documentID,
			EventType:   "document.saved",
			Timestamp:   timestamp,
		},
		DocumentID: documentID,
		NodeCount:  nodeCount,
		EdgeCount:  edgeCount,
	}
}

// DocumentDeleted is raised when a document is removed
type DocumentDeleted struct {
	BaseEvent
	DocumentID string `json:"document_id"`
	ActorID    string `json:"actor_id,omitempty"`
}

// NewDocumentDeleted creates a DocumentDeleted event
func NewDocumentDeleted(documentID, actorID string, timestamp time.Time) DocumentDeleted {
	return DocumentDeleted{
		BaseEvent: BaseEvent{
			AggregateID: documentID,
			EventType:   "document.deleted",
			Timestamp:   timestamp,
		},
		DocumentID: documentID,
		ActorID:    actorID,
	}
}

// AccessChanged is raised for collaborator revocations and role changes
type AccessChanged struct {
	BaseEvent
	DocumentID   string `json:"document_id"`
	TargetUserID string `json:"target_user_id"`
	ActorUserID  string `json:"actor_user_id,omitempty"`
	Change       string `json:"change"`
	OldValue     string `json:"old_value,omitempty"`
	NewValue     string `json:"new_value,omitempty"`
}

// NewAccessChanged creates an AccessChanged event
func NewAccessChanged(documentID, targetUserID, actorUserID, change, oldValue, newValue string, timestamp time.Time) AccessChanged {
	return AccessChanged{
		BaseEvent: BaseEvent{
			AggregateID: documentID,
			EventType:   "document.access_changed",
			Timestamp:   timestamp,
		},
		DocumentID:   documentID,
		TargetUserID: targetUserID,
		ActorUserID:  actorUserID,
		Change:       change,
		OldValue:     oldValue,
		NewValue:     newValue,
	}
}
