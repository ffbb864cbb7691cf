package aggregates

import (
	"errors"
	"sort"

	"mindmesh/domain/core/entities"
	"mindmesh/domain/core/valueobjects"
)

var (
	ErrNodeExists          = errors.New("node already exists in document")
	ErrNodeNotFound        = errors.New("node not found")
	ErrEdgeExists          = errors.New("edge already exists in document")
	ErrEdgeNotFound        = errors.New("edge not found")
	ErrSelfConnection      = errors.New("cannot connect node to itself")
	ErrMissingEndpoint     = errors.New("both nodes must exist in document")
	ErrDuplicateConnection = errors.New("identical connection already exists")
)

// Document is the aggregate root for one shared mindmap. It is the in-memory
// source of truth for nodes, edges, viewport, and the authority-supplied
// undo/redo capability flags.
//
// The aggregate is not safe for concurrent use: the owning session applies
// all mutations under its single-writer discipline.
type Document struct {
	id       string
	title    string
	nodes    map[valueobjects.NodeID]*entities.Node
	edges    map[valueobjects.EdgeID]*entities.Edge
	edgeKeys map[string]valueobjects.EdgeID
	viewport valueobjects.Viewport
	canUndo  bool
	canRedo  bool
}

// NewDocument creates an empty document
func NewDocument(id, title string) *Document {
	return &Document{
		id:       id,
		title:    title,
		nodes:    make(map[valueobjects.NodeID]*entities.Node),
		edges:    make(map[valueobjects.EdgeID]*entities.Edge),
		edgeKeys: make(map[string]valueobjects.EdgeID),
		viewport: valueobjects.DefaultViewport(),
	}
}

// Hydrate loads fetched state into the document, replacing whatever it held.
// Entries without ids are skipped; edges referencing unknown nodes are kept
// as-is because the invariant is maintained by cascade-on-delete, not by
// rejecting foreign edges on load.
func (d *Document) Hydrate(title string, nodes []entities.NodeState, edges []entities.EdgeState, viewport *valueobjects.Viewport) {
	d.title = title
	d.nodes = make(map[valueobjects.NodeID]*entities.Node, len(nodes))
	d.edges = make(map[valueobjects.EdgeID]*entities.Edge, len(edges))
	d.edgeKeys = make(map[string]valueobjects.EdgeID, len(edges))

	for _, state := range nodes {
		node, err := entities.ReconstructNode(state)
		if err != nil {
			continue
		}
		d.nodes[node.ID()] = node
	}
	for _, state := range edges {
		edge, err := entities.ReconstructEdge(state)
		if err != nil {
			continue
		}
		d.edges[edge.ID()] = edge
		d.edgeKeys[edge.Key().String()] = edge.ID()
	}

	if viewport != nil {
		d.viewport = *viewport
	}
}

// Bootstrap seeds an empty document with a single default root node and
// returns it. Calling it on a non-empty document is a no-op returning nil.
func (d *Document) Bootstrap() *entities.Node {
	if len(d.nodes) > 0 {
		return nil
	}
	root := entities.NewNode(valueobjects.Position{X: 0, Y: 0}, "circle")
	root.MergeData(map[string]interface{}{"label": "Main Idea"})
	d.nodes[root.ID()] = root
	return root
}

// ID returns the document's identifier
func (d *Document) ID() string {
	return d.id
}

// Title returns the document's title
func (d *Document) Title() string {
	return d.title
}

// AddNode adds a node to the document
func (d *Document) AddNode(node *entities.Node) error {
	if node == nil {
		return errors.New("node cannot be nil")
	}
	if _, exists := d.nodes[node.ID()]; exists {
		return ErrNodeExists
	}
	d.nodes[node.ID()] = node
	return nil
}

// RemoveNodeCascade removes a node, every node transitively reachable from
// it via outgoing edges, and all edges touching any removed node. Traversal
// is breadth-first over a snapshot of the live edges.
func (d *Document) RemoveNodeCascade(id valueobjects.NodeID) (removedNodes []valueobjects.NodeID, removedEdges []valueobjects.EdgeID, err error) {
	if _, exists := d.nodes[id]; !exists {
		return nil, nil, ErrNodeNotFound
	}

	// Snapshot of outgoing adjacency before any removal
	outgoing := make(map[valueobjects.NodeID][]valueobjects.NodeID)
	for _, edge := range d.edges {
		outgoing[edge.Source()] = append(outgoing[edge.Source()], edge.Target())
	}

	doomed := map[valueobjects.NodeID]bool{id: true}
	queue := []valueobjects.NodeID{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range outgoing[current] {
			if doomed[next] {
				continue
			}
			if _, exists := d.nodes[next]; !exists {
				continue
			}
			doomed[next] = true
			queue = append(queue, next)
		}
	}

	for edgeID, edge := range d.edges {
		if doomed[edge.Source()] || doomed[edge.Target()] {
			delete(d.edges, edgeID)
			delete(d.edgeKeys, edge.Key().String())
			removedEdges = append(removedEdges, edgeID)
		}
	}
	for nodeID := range doomed {
		delete(d.nodes, nodeID)
		removedNodes = append(removedNodes, nodeID)
	}

	return removedNodes, removedEdges, nil
}

// MoveNode updates a node's canvas position
func (d *Document) MoveNode(id valueobjects.NodeID, position valueobjects.Position) error {
	node, exists := d.nodes[id]
	if !exists {
		return ErrNodeNotFound
	}
	node.MoveTo(position)
	return nil
}

// UpdateNodeData merges a data patch into a node. A key set to nil deletes
// that key.
func (d *Document) UpdateNodeData(id valueobjects.NodeID, patch map[string]interface{}) (*entities.Node, error) {
	node, exists := d.nodes[id]
	if !exists {
		return nil, ErrNodeNotFound
	}
	node.MergeData(patch)
	return node, nil
}

// ReplaceNode applies a remote full-object update, last-write-wins. Unknown
// nodes are ignored and reported as not applied.
func (d *Document) ReplaceNode(state entities.NodeState) bool {
	id, err := valueobjects.NewNodeIDFromString(state.ID)
	if err != nil {
		return false
	}
	node, exists := d.nodes[id]
	if !exists {
		return false
	}
	node.Replace(state)
	return true
}

// AddEdge adds an edge to the document. The id and the dedup key must both
// be unused.
func (d *Document) AddEdge(edge *entities.Edge) error {
	if edge == nil {
		return errors.New("edge cannot be nil")
	}
	if _, exists := d.edges[edge.ID()]; exists {
		return ErrEdgeExists
	}
	if _, exists := d.edgeKeys[edge.Key().String()]; exists {
		return ErrDuplicateConnection
	}
	d.edges[edge.ID()] = edge
	d.edgeKeys[edge.Key().String()] = edge.ID()
	return nil
}

// Connect creates an edge between two existing nodes. If an identical
// connection already exists the call is a no-op returning (nil, nil).
func (d *Document) Connect(source, target valueobjects.NodeID, sourceHandle, targetHandle string) (*entities.Edge, error) {
	if source.Equals(target) {
		return nil, ErrSelfConnection
	}
	if _, exists := d.nodes[source]; !exists {
		return nil, ErrMissingEndpoint
	}
	if _, exists := d.nodes[target]; !exists {
		return nil, ErrMissingEndpoint
	}

	key := valueobjects.NewEdgeKey(source, target, sourceHandle, targetHandle)
	if _, exists := d.edgeKeys[key.String()]; exists {
		return nil, nil
	}

	edge := entities.NewEdge(source, target, sourceHandle, targetHandle)
	d.edges[edge.ID()] = edge
	d.edgeKeys[key.String()] = edge.ID()
	return edge, nil
}

// RemoveEdge removes an edge by id
func (d *Document) RemoveEdge(id valueobjects.EdgeID) error {
	edge, exists := d.edges[id]
	if !exists {
		return ErrEdgeNotFound
	}
	delete(d.edges, id)
	delete(d.edgeKeys, edge.Key().String())
	return nil
}

// UpdateEdgeData merges a data patch into an edge
func (d *Document) UpdateEdgeData(id valueobjects.EdgeID, patch map[string]interface{}) (*entities.Edge, error) {
	edge, exists := d.edges[id]
	if !exists {
		return nil, ErrEdgeNotFound
	}
	edge.ApplyPatch(patch)
	return edge, nil
}

// ReplaceEdge applies a remote full-object update to an edge
func (d *Document) ReplaceEdge(state entities.EdgeState) bool {
	id, err := valueobjects.NewEdgeIDFromString(state.ID)
	if err != nil {
		return false
	}
	edge, exists := d.edges[id]
	if !exists {
		return false
	}
	edge.Replace(state)
	return true
}

// HasNode checks if a node exists
func (d *Document) HasNode(id valueobjects.NodeID) bool {
	_, exists := d.nodes[id]
	return exists
}

// HasEdge checks if an edge id exists
func (d *Document) HasEdge(id valueobjects.EdgeID) bool {
	_, exists := d.edges[id]
	return exists
}

// HasConnection checks if an edge with the given dedup key exists
func (d *Document) HasConnection(key valueobjects.EdgeKey) bool {
	_, exists := d.edgeKeys[key.String()]
	return exists
}

// Node retrieves a node by id
func (d *Document) Node(id valueobjects.NodeID) (*entities.Node, bool) {
	node, exists := d.nodes[id]
	return node, exists
}

// Edge retrieves an edge by id
func (d *Document) Edge(id valueobjects.EdgeID) (*entities.Edge, bool) {
	edge, exists := d.edges[id]
	return edge, exists
}

// NodeCount returns the number of nodes
func (d *Document) NodeCount() int {
	return len(d.nodes)
}

// EdgeCount returns the number of edges
func (d *Document) EdgeCount() int {
	return len(d.edges)
}

// Viewport returns the current viewport
func (d *Document) Viewport() valueobjects.Viewport {
	return d.viewport
}

// SetViewport updates the viewport
func (d *Document) SetViewport(viewport valueobjects.Viewport) {
	d.viewport = viewport
}

// CanUndo reports the authority-supplied undo capability flag
func (d *Document) CanUndo() bool {
	return d.canUndo
}

// CanRedo reports the authority-supplied redo capability flag
func (d *Document) CanRedo() bool {
	return d.canRedo
}

// SetHistoryFlags applies an authority history-state push. The flags are
// never computed locally.
func (d *Document) SetHistoryFlags(canUndo, canRedo bool) {
	d.canUndo = canUndo
	d.canRedo = canRedo
}

// NodeStates returns every node's serializable state, sorted by id
func (d *Document) NodeStates() []entities.NodeState {
	states := make([]entities.NodeState, 0, len(d.nodes))
	for _, node := range d.nodes {
		states = append(states, node.State())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

// EdgeStates returns every edge's serializable state, sorted by id
func (d *Document) EdgeStates() []entities.EdgeState {
	states := make([]entities.EdgeState, 0, len(d.edges))
	for _, edge := range d.edges {
		states = append(states, edge.State())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

// Validate ensures document invariants hold. Used by tests and the
// authority's persistence path.
func (d *Document) Validate() error {
	for _, edge := range d.edges {
		if _, exists := d.nodes[edge.Source()]; !exists {
			return errors.New("edge references non-existent source node")
		}
		if _, exists := d.nodes[edge.Target()]; !exists {
			return errors.New("edge references non-existent target node")
		}
	}
	if len(d.edgeKeys) != len(d.edges) {
		return errors.New("edge dedup index out of sync")
	}
	return nil
}
