package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"mindmesh/domain/core/entities"
	pkgerrors "mindmesh/pkg/errors"
)

// ErrUnknownMessageType marks a variant outside the closed set. Receivers
// drop these rather than guessing at their shape.
var ErrUnknownMessageType = errors.New("unknown message type")

var validate = validator.New()

// envelope is the raw wire form of a message
type envelope struct {
	Type    MessageType     `json:"type"`
	Room    string          `json:"room,omitempty"`
	Sender  string          `json:"sender,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes a message for the wire
func Encode(msg *Message) ([]byte, error) {
	var raw json.RawMessage
	if msg.Payload != nil {
		data, err := json.Marshal(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", msg.Type, err)
		}
		raw = data
	}
	return json.Marshal(envelope{
		Type:    msg.Type,
		Room:    msg.Room,
		Sender:  msg.Sender,
		Payload: raw,
	})
}

// Decode parses and validates a wire message. Unknown variants return
// ErrUnknownMessageType; structurally invalid payloads return a
// MalformedPayload error. Neither may be propagated as a crash.
func Decode(data []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, pkgerrors.NewMalformedPayloadError("invalid envelope").WithCause(err)
	}
	if env.Type == "" {
		return nil, pkgerrors.NewMalformedPayloadError("missing message type")
	}

	payload, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:    env.Type,
		Room:    env.Room,
		Sender:  env.Sender,
		Payload: payload,
	}, nil
}

func decodePayload(t MessageType, raw json.RawMessage) (interface{}, error) {
	switch t {
	case TypeJoin:
		return unmarshalPayload[JoinPayload](t, raw)
	case TypeJoined:
		return unmarshalPayload[JoinedPayload](t, raw)
	case TypeNodesAdd, TypeNodesUpdate:
		p, err := unmarshalPayload[NodesPayload](t, raw)
		if err != nil {
			return nil, err
		}
		for _, node := range p.Nodes {
			if node.ID == "" {
				return nil, pkgerrors.NewMalformedPayloadError(string(t) + " node without id")
			}
		}
		return p, nil
	case TypeEdgesAdd, TypeEdgesUpdate:
		p, err := unmarshalPayload[EdgesPayload](t, raw)
		if err != nil {
			return nil, err
		}
		for _, edge := range p.Edges {
			if err := validateEdgeState(t, edge); err != nil {
				return nil, err
			}
		}
		return p, nil
	case TypeNodesRemove, TypeEdgesRemove:
		return unmarshalPayload[RemovePayload](t, raw)
	case TypeConnect:
		p, err := unmarshalPayload[ConnectPayload](t, raw)
		if err != nil {
			return nil, err
		}
		if err := validateEdgeState(t, p.Edge); err != nil {
			return nil, err
		}
		return p, nil
	case TypeViewport:
		return unmarshalPayload[ViewportPayload](t, raw)
	case TypePresenceState:
		return unmarshalPayload[PresenceStatePayload](t, raw)
	case TypePresenceAnnounce:
		p, err := unmarshalPayload[AnnouncePayload](t, raw)
		if err != nil {
			return nil, err
		}
		if p.Participant.ClientID == "" {
			return nil, pkgerrors.NewMalformedPayloadError("announce without clientId")
		}
		return p, nil
	case TypePresenceLeft:
		return unmarshalPayload[LeftPayload](t, raw)
	case TypePresenceCursor:
		return unmarshalPayload[CursorPayload](t, raw)
	case TypePresenceActive:
		return unmarshalPayload[ActivePayload](t, raw)
	case TypePresenceClear:
		return unmarshalPayload[ClearActivePayload](t, raw)
	case TypeHistoryRecord, TypeHistoryRestore:
		return unmarshalPayload[SnapshotPayload](t, raw)
	case TypeUndoRequest, TypeRedoRequest:
		return unmarshalPayload[HistoryRequestPayload](t, raw)
	case TypeUndoResult, TypeRedoResult:
		return unmarshalPayload[HistoryResultPayload](t, raw)
	case TypeHistoryState:
		return unmarshalPayload[HistoryStatePayload](t, raw)
	case TypeAutosaveToggle, TypeAutosaveSync:
		return unmarshalPayload[AutosavePayload](t, raw)
	case TypeAccessRevoked:
		return unmarshalPayload[AccessRevokedPayload](t, raw)
	case TypeCollaboratorRemoved:
		return unmarshalPayload[CollaboratorRemovedPayload](t, raw)
	case TypeRoleChanged:
		return unmarshalPayload[RoleChangedPayload](t, raw)
	case TypePublicChanged:
		return unmarshalPayload[PublicChangedPayload](t, raw)
	case TypeDocumentDeleted:
		return unmarshalPayload[DocumentDeletedPayload](t, raw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, t)
	}
}

func unmarshalPayload[T any](t MessageType, raw json.RawMessage) (*T, error) {
	var payload T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, pkgerrors.NewMalformedPayloadError(string(t) + " payload").WithCause(err)
		}
	}
	if err := validate.Struct(&payload); err != nil {
		return nil, pkgerrors.NewMalformedPayloadError(string(t) + " payload").WithCause(err)
	}
	return &payload, nil
}

func validateEdgeState(t MessageType, edge entities.EdgeState) error {
	if edge.ID == "" {
		return pkgerrors.NewMalformedPayloadError(string(t) + " edge without id")
	}
	if edge.Source == "" || edge.Target == "" {
		return pkgerrors.NewMalformedPayloadError(string(t) + " edge with dangling endpoint")
	}
	return nil
}
