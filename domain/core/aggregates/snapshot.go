package aggregates

import (
	"bytes"
	"encoding/json"

	"mindmesh/domain/core/entities"
	"mindmesh/domain/core/valueobjects"
)

// Snapshot is an immutable point-in-time copy of the document's content.
// Snapshots are owned by the authority's history ledger; the client only
// captures and applies them.
type Snapshot struct {
	Nodes    []entities.NodeState   `json:"nodes"`
	Edges    []entities.EdgeState   `json:"edges"`
	Viewport *valueobjects.Viewport `json:"viewport,omitempty"`
}

// Snapshot captures the current document content. Node and edge lists are
// sorted by id, so capturing twice with no intervening change yields
// byte-equal snapshots.
func (d *Document) Snapshot() Snapshot {
	viewport := d.viewport
	return Snapshot{
		Nodes:    d.NodeStates(),
		Edges:    d.EdgeStates(),
		Viewport: &viewport,
	}
}

// RestoreSnapshot replaces the document content with a snapshot, verbatim.
// The undo/redo flags are untouched; the authority pushes those separately.
func (d *Document) RestoreSnapshot(snapshot Snapshot) {
	d.nodes = make(map[valueobjects.NodeID]*entities.Node, len(snapshot.Nodes))
	d.edges = make(map[valueobjects.EdgeID]*entities.Edge, len(snapshot.Edges))
	d.edgeKeys = make(map[string]valueobjects.EdgeID, len(snapshot.Edges))

	for _, state := range snapshot.Nodes {
		node, err := entities.ReconstructNode(state)
		if err != nil {
			continue
		}
		d.nodes[node.ID()] = node
	}
	for _, state := range snapshot.Edges {
		edge, err := entities.ReconstructEdge(state)
		if err != nil {
			continue
		}
		d.edges[edge.ID()] = edge
		d.edgeKeys[edge.Key().String()] = edge.ID()
	}

	if snapshot.Viewport != nil {
		d.viewport = *snapshot.Viewport
	}
}

// Equal compares two snapshots by their canonical JSON form
func (s Snapshot) Equal(other Snapshot) bool {
	a, err := json.Marshal(s)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}
