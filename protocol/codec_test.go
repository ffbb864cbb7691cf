package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindmesh/domain/core/entities"
	"mindmesh/domain/core/valueobjects"
	pkgerrors "mindmesh/pkg/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	node := entities.NewNode(valueobjects.Position{X: 10, Y: 20}, "rectangle")
	msg := &Message{
		Type:    TypeNodesAdd,
		Room:    "doc-1",
		Sender:  "client-a",
		Payload: &NodesPayload{Nodes: []entities.NodeState{node.State()}},
	}

	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeNodesAdd, decoded.Type)
	assert.Equal(t, "doc-1", decoded.Room)
	assert.Equal(t, "client-a", decoded.Sender)

	payload, ok := decoded.Payload.(*NodesPayload)
	require.True(t, ok)
	require.Len(t, payload.Nodes, 1)
	assert.Equal(t, node.ID().String(), payload.Nodes[0].ID)
	assert.Equal(t, valueobjects.Position{X: 10, Y: 20}, payload.Nodes[0].Position)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"nodes.sparkle","payload":{}}`))
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":              `{{{`,
		"missing type":          `{"room":"doc-1"}`,
		"empty node batch":      `{"type":"nodes.add","payload":{"nodes":[]}}`,
		"node without id":       `{"type":"nodes.update","payload":{"nodes":[{"id":"","position":{"x":0,"y":0}}]}}`,
		"edge missing source":   `{"type":"edges.add","payload":{"edges":[{"id":"e1","target":"n2"}]}}`,
		"remove with empty id":  `{"type":"nodes.remove","payload":{"ids":[""]}}`,
		"announce no clientId":  `{"type":"presence.announce","payload":{"participant":{"name":"x"}}}`,
		"undo without request":  `{"type":"history.undo_request","payload":{}}`,
		"revoke without reason": `{"type":"access.revoked","payload":{"targetUserId":"u1"}}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			require.Error(t, err)
			if err != ErrUnknownMessageType {
				assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeMalformedPayload), "expected malformed payload error, got %v", err)
			}
		})
	}
}

func TestDecodeHistoryResult(t *testing.T) {
	raw := []byte(`{"type":"history.undo_result","payload":{"requestId":"r1","ok":false}}`)
	msg, err := Decode(raw)
	require.NoError(t, err)

	payload, ok := msg.Payload.(*HistoryResultPayload)
	require.True(t, ok)
	assert.Equal(t, "r1", payload.RequestID)
	assert.False(t, payload.OK)
	assert.Nil(t, payload.Snapshot)
}

func TestDecodeEmptyPayload(t *testing.T) {
	// Flag-only payloads may arrive with no payload at all
	msg, err := Decode([]byte(`{"type":"autosave.sync"}`))
	require.NoError(t, err)
	payload, ok := msg.Payload.(*AutosavePayload)
	require.True(t, ok)
	assert.False(t, payload.Enabled)
}
