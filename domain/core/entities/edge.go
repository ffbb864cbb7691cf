package entities

import (
	"mindmesh/domain/core/valueobjects"
	pkgerrors "mindmesh/pkg/errors"
)

// DefaultEdgeType is the edge renderer used when a connection does not name one
const DefaultEdgeType = "smoothstep"

// EdgeState is the serializable form of an edge
type EdgeState struct {
	ID           string                 `json:"id"`
	Source       string                 `json:"source"`
	Target       string                 `json:"target"`
	SourceHandle string                 `json:"sourceHandle,omitempty"`
	TargetHandle string                 `json:"targetHandle,omitempty"`
	Type         string                 `json:"type"`
	Animated     bool                   `json:"animated"`
	Style        map[string]interface{} `json:"style,omitempty"`
	Label        string                 `json:"label,omitempty"`
}

// Edge is a directed connection between two nodes
type Edge struct {
	id           valueobjects.EdgeID
	source       valueobjects.NodeID
	target       valueobjects.NodeID
	sourceHandle string
	targetHandle string
	edgeType     string
	animated     bool
	style        map[string]interface{}
	label        string
}

// NewEdge creates an edge between two nodes
func NewEdge(source, target valueobjects.NodeID, sourceHandle, targetHandle string) *Edge {
	return &Edge{
		id:           valueobjects.NewEdgeID(),
		source:       source,
		target:       target,
		sourceHandle: sourceHandle,
		targetHandle: targetHandle,
		edgeType:     DefaultEdgeType,
	}
}

// ReconstructEdge rebuilds an edge from its serializable state
func ReconstructEdge(state EdgeState) (*Edge, error) {
	id, err := valueobjects.NewEdgeIDFromString(state.ID)
	if err != nil {
		return nil, pkgerrors.NewMalformedPayloadError("edge without id")
	}
	source, err := valueobjects.NewNodeIDFromString(state.Source)
	if err != nil {
		return nil, pkgerrors.NewMalformedPayloadError("edge without source")
	}
	target, err := valueobjects.NewNodeIDFromString(state.Target)
	if err != nil {
		return nil, pkgerrors.NewMalformedPayloadError("edge without target")
	}

	edgeType := state.Type
	if edgeType == "" {
		edgeType = DefaultEdgeType
	}

	return &Edge{
		id:           id,
		source:       source,
		target:       target,
		sourceHandle: state.SourceHandle,
		targetHandle: state.TargetHandle,
		edgeType:     edgeType,
		animated:     state.Animated,
		style:        copyData(state.Style),
		label:        state.Label,
	}, nil
}

// ID returns the edge's identifier
func (e *Edge) ID() valueobjects.EdgeID {
	return e.id
}

// Source returns the id of the node the edge leaves
func (e *Edge) Source() valueobjects.NodeID {
	return e.source
}

// Target returns the id of the node the edge enters
func (e *Edge) Target() valueobjects.NodeID {
	return e.target
}

// Key returns the edge's deduplication identity
func (e *Edge) Key() valueobjects.EdgeKey {
	return valueobjects.NewEdgeKey(e.source, e.target, e.sourceHandle, e.targetHandle)
}

// WithID returns a copy of the edge carrying a different id. Used when an
// inbound edge collides with an existing id and must be regenerated.
func (e *Edge) WithID(id valueobjects.EdgeID) *Edge {
	clone := e.Clone()
	clone.id = id
	return clone
}

// ApplyPatch merges an edge data patch. Recognized keys are label, type,
// animated, and style; a nil value deletes the field.
func (e *Edge) ApplyPatch(patch map[string]interface{}) {
	for key, value := range patch {
		switch key {
		case "label":
			if value == nil {
				e.label = ""
			} else if s, ok := value.(string); ok {
				e.label = s
			}
		case "type":
			if value == nil {
				e.edgeType = DefaultEdgeType
			} else if s, ok := value.(string); ok {
				e.edgeType = s
			}
		case "animated":
			if value == nil {
				e.animated = false
			} else if b, ok := value.(bool); ok {
				e.animated = b
			}
		case "style":
			if value == nil {
				e.style = nil
			} else if m, ok := value.(map[string]interface{}); ok {
				if e.style == nil {
					e.style = map[string]interface{}{}
				}
				for k, v := range m {
					if v == nil {
						delete(e.style, k)
						continue
					}
					e.style[k] = v
				}
			}
		}
	}
}

// Replace overwrites the edge wholesale from remote state, last-write-wins
func (e *Edge) Replace(state EdgeState) {
	if state.Type != "" {
		e.edgeType = state.Type
	}
	e.animated = state.Animated
	e.style = copyData(state.Style)
	e.label = state.Label
}

// State returns the serializable form of the edge
func (e *Edge) State() EdgeState {
	var style map[string]interface{}
	if len(e.style) > 0 {
		style = copyData(e.style)
	}
	return EdgeState{
		ID:           e.id.String(),
		Source:       e.source.String(),
		Target:       e.target.String(),
		SourceHandle: e.sourceHandle,
		TargetHandle: e.targetHandle,
		Type:         e.edgeType,
		Animated:     e.animated,
		Style:        style,
		Label:        e.label,
	}
}

// Clone returns an independent copy of the edge
func (e *Edge) Clone() *Edge {
	clone := *e
	clone.style = copyData(e.style)
	if len(clone.style) == 0 {
		clone.style = nil
	}
	return &clone
}
