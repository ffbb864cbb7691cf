package entities

import (
	"mindmesh/domain/core/valueobjects"
	pkgerrors "mindmesh/pkg/errors"
)

// NodeState is the serializable form of a node. It is the shape that crosses
// the channel and lands in snapshots and persistence.
type NodeState struct {
	ID        string                 `json:"id"`
	ShapeType string                 `json:"shapeType"`
	Position  valueobjects.Position  `json:"position"`
	Data      map[string]interface{} `json:"data"`
}

// Node is a single element on the mindmap canvas
// Private fields ensure all mutation flows through the entity's methods
type Node struct {
	id        valueobjects.NodeID
	shapeType string
	position  valueobjects.Position
	data      map[string]interface{}
}

// NewNode creates a node at the given position with default data. The shape
// is echoed into both the node type and the data map so shape-aware
// renderers can pick it up from either place.
func NewNode(position valueobjects.Position, shape string) *Node {
	if shape == "" {
		shape = "rectangle"
	}
	return &Node{
		id:        valueobjects.NewNodeID(),
		shapeType: shape,
		position:  position,
		data: map[string]interface{}{
			"label": DefaultNodeLabel,
			"color": DefaultNodeColor,
			"shape": shape,
		},
	}
}

// ReconstructNode rebuilds a node from its serializable state
func ReconstructNode(state NodeState) (*Node, error) {
	id, err := valueobjects.NewNodeIDFromString(state.ID)
	if err != nil {
		return nil, pkgerrors.NewMalformedPayloadError("node without id")
	}
	return &Node{
		id:        id,
		shapeType: state.ShapeType,
		position:  state.Position,
		data:      copyData(state.Data),
	}, nil
}

// ID returns the node's identifier
func (n *Node) ID() valueobjects.NodeID {
	return n.id
}

// ShapeType returns the node's shape type
func (n *Node) ShapeType() string {
	return n.shapeType
}

// Position returns the node's canvas position
func (n *Node) Position() valueobjects.Position {
	return n.position
}

// MoveTo updates the node's canvas position
func (n *Node) MoveTo(position valueobjects.Position) {
	n.position = position
}

// Data returns a copy of the node's data map
func (n *Node) Data() map[string]interface{} {
	return copyData(n.data)
}

// MergeData merges a patch into the node's data. A key set to nil deletes
// that key.
func (n *Node) MergeData(patch map[string]interface{}) {
	for key, value := range patch {
		if value == nil {
			delete(n.data, key)
			continue
		}
		n.data[key] = value
	}
}

// Replace overwrites the node wholesale from remote state. Concurrent
// updates to the same node resolve last-write-wins with no field merge.
func (n *Node) Replace(state NodeState) {
	if state.ShapeType != "" {
		n.shapeType = state.ShapeType
	}
	n.position = state.Position
	n.data = copyData(state.Data)
}

// State returns the serializable form of the node
func (n *Node) State() NodeState {
	return NodeState{
		ID:        n.id.String(),
		ShapeType: n.shapeType,
		Position:  n.position,
		Data:      copyData(n.data),
	}
}

// Clone returns an independent copy of the node
func (n *Node) Clone() *Node {
	return &Node{
		id:        n.id,
		shapeType: n.shapeType,
		position:  n.position,
		data:      copyData(n.data),
	}
}
