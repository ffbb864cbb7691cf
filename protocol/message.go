// Package protocol defines the channel wire format: a closed set of tagged
// messages exchanged between clients and the collaboration authority, one
// room per open document. Payloads are validated at the boundary; unknown
// variants are dropped, never trusted.
package protocol

import (
	"mindmesh/domain/core/aggregates"
	"mindmesh/domain/core/entities"
	"mindmesh/domain/core/valueobjects"
)

// MessageType tags a channel message
type MessageType string

const (
	// Room membership
	TypeJoin   MessageType = "room.join"
	TypeJoined MessageType = "room.joined"

	// Structural changes
	TypeNodesAdd    MessageType = "nodes.add"
	TypeNodesRemove MessageType = "nodes.remove"
	TypeNodesUpdate MessageType = "nodes.update"
	TypeEdgesAdd    MessageType = "edges.add"
	TypeEdgesRemove MessageType = "edges.remove"
	TypeEdgesUpdate MessageType = "edges.update"
	TypeConnect     MessageType = "edges.connect"
	TypeViewport    MessageType = "viewport.update"

	// Presence
	TypePresenceState    MessageType = "presence.state"
	TypePresenceAnnounce MessageType = "presence.announce"
	TypePresenceLeft     MessageType = "presence.left"
	TypePresenceCursor   MessageType = "presence.cursor"
	TypePresenceActive   MessageType = "presence.active"
	TypePresenceClear    MessageType = "presence.active_clear"

	// History
	TypeHistoryRecord  MessageType = "history.record"
	TypeHistoryRestore MessageType = "history.restore"
	TypeUndoRequest    MessageType = "history.undo_request"
	TypeUndoResult     MessageType = "history.undo_result"
	TypeRedoRequest    MessageType = "history.redo_request"
	TypeRedoResult     MessageType = "history.redo_result"
	TypeHistoryState   MessageType = "history.state"

	// Autosave
	TypeAutosaveToggle MessageType = "autosave.toggle"
	TypeAutosaveSync   MessageType = "autosave.sync"

	// Access control, authority to client only
	TypeAccessRevoked       MessageType = "access.revoked"
	TypeCollaboratorRemoved MessageType = "access.collaborator_removed"
	TypeRoleChanged         MessageType = "access.role_changed"
	TypePublicChanged       MessageType = "access.public_changed"
	TypeDocumentDeleted     MessageType = "access.document_deleted"
)

// Message is a decoded channel message with a typed payload
type Message struct {
	Type    MessageType
	Room    string
	Sender  string
	Payload interface{}
}

// ParticipantState is the wire form of one participant's ephemeral presence
type ParticipantState struct {
	ClientID string                 `json:"clientId" validate:"required"`
	UserID   string                 `json:"userId,omitempty"`
	Name     string                 `json:"name"`
	Color    string                 `json:"color"`
	Avatar   string                 `json:"avatar,omitempty"`
	Cursor   *valueobjects.Position `json:"cursor,omitempty"`
	Active   *ActiveElement         `json:"active,omitempty"`
}

// ActiveElement records what a participant is focused on
type ActiveElement struct {
	Kind string `json:"kind" validate:"required,oneof=node edge label"`
	ID   string `json:"id" validate:"required"`
}

// JoinPayload asks the authority for room assignment
type JoinPayload struct {
	DocumentID string `json:"documentId" validate:"required"`
	Token      string `json:"token,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	Avatar     string `json:"avatar,omitempty"`
}

// JoinedPayload is the authority's room assignment reply
type JoinedPayload struct {
	ClientID        string             `json:"clientId" validate:"required"`
	Room            string             `json:"room" validate:"required"`
	Role            string             `json:"role"`
	Participants    []ParticipantState `json:"participants"`
	CanUndo         bool               `json:"canUndo"`
	CanRedo         bool               `json:"canRedo"`
	AutosaveEnabled bool               `json:"autosaveEnabled"`
}

// NodesPayload carries a batch of full node objects (add or update)
type NodesPayload struct {
	Nodes []entities.NodeState `json:"nodes" validate:"required,min=1"`
}

// EdgesPayload carries a batch of full edge objects (add or update)
type EdgesPayload struct {
	Edges []entities.EdgeState `json:"edges" validate:"required,min=1"`
}

// RemovePayload carries a batch of ids to remove
type RemovePayload struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// ConnectPayload carries the edge created by a connect operation
type ConnectPayload struct {
	Edge entities.EdgeState `json:"edge"`
}

// ViewportPayload carries a viewport update
type ViewportPayload struct {
	Viewport valueobjects.Viewport `json:"viewport"`
}

// PresenceStatePayload is the full-room presence snapshot sent on join
type PresenceStatePayload struct {
	Participants []ParticipantState `json:"participants"`
}

// AnnouncePayload introduces or re-introduces a participant
type AnnouncePayload struct {
	Participant ParticipantState `json:"participant"`
}

// LeftPayload reports a participant leaving the room
type LeftPayload struct {
	ClientID string `json:"clientId" validate:"required"`
}

// CursorPayload is a periodic cursor position update
type CursorPayload struct {
	ClientID string                `json:"clientId"`
	Cursor   valueobjects.Position `json:"cursor"`
}

// ActivePayload broadcasts a participant's active focus
type ActivePayload struct {
	ClientID string        `json:"clientId"`
	Element  ActiveElement `json:"element"`
}

// ClearActivePayload clears a participant's active focus
type ClearActivePayload struct {
	ClientID string `json:"clientId"`
}

// SnapshotPayload carries a full document snapshot (record or restore)
type SnapshotPayload struct {
	Snapshot aggregates.Snapshot `json:"snapshot"`
}

// HistoryRequestPayload asks the authority to undo or redo
type HistoryRequestPayload struct {
	RequestID string `json:"requestId" validate:"required"`
}

// HistoryResultPayload answers an undo or redo request. OK false means the
// authority declined, which callers treat as benign.
type HistoryResultPayload struct {
	RequestID string               `json:"requestId" validate:"required"`
	OK        bool                 `json:"ok"`
	Snapshot  *aggregates.Snapshot `json:"snapshot,omitempty"`
}

// HistoryStatePayload pushes the authority-owned undo/redo capability flags
type HistoryStatePayload struct {
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

// AutosavePayload toggles or syncs the room's autosave-enabled flag
type AutosavePayload struct {
	Enabled bool `json:"enabled"`
}

// AccessRevokedPayload revokes access. An empty target applies to every
// non-owner participant in the room.
type AccessRevokedPayload struct {
	TargetUserID string `json:"targetUserId,omitempty"`
	ActorUserID  string `json:"actorUserId,omitempty"`
	Reason       string `json:"reason" validate:"required"`
	Message      string `json:"message"`
}

// CollaboratorRemovedPayload removes a named collaborator
type CollaboratorRemovedPayload struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
	ActorUserID  string `json:"actorUserId,omitempty"`
	Message      string `json:"message"`
}

// RoleChangedPayload reports a collaborator role change
type RoleChangedPayload struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
	ActorUserID  string `json:"actorUserId,omitempty"`
	OldRole      string `json:"oldRole"`
	NewRole      string `json:"newRole" validate:"required"`
}

// PublicChangedPayload reports a public-access-level change
type PublicChangedPayload struct {
	Level       string `json:"level" validate:"required"`
	ActorUserID string `json:"actorUserId,omitempty"`
}

// DocumentDeletedPayload reports the document's deletion
type DocumentDeletedPayload struct {
	ActorUserID string `json:"actorUserId,omitempty"`
	Message     string `json:"message"`
}
