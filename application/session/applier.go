package session

import (
	"errors"

	"go.uber.org/zap"

	"mindmesh/domain/core/aggregates"
	"mindmesh/domain/core/entities"
	"mindmesh/domain/core/valueobjects"
	pkgerrors "mindmesh/pkg/errors"
	"mindmesh/protocol"
)

// Local mutation applier: turns user intents into store updates and
// outgoing channel messages. Every operation applies to the local store
// first, then broadcasts, so the issuing client never sees its own change
// rolled back by its own echo.
//
// Structural mutations are fire-and-forget; the authority is the eventual
// correctness backstop. Only the errors below surface synchronously:
// a blocked session, an unknown target, or a closed session.

// AddNode creates a node at the given position with default data and
// returns its id
func (s *Session) AddNode(position valueobjects.Position, shape string) (string, error) {
	type reply struct {
		id  string
		err error
	}
	replyCh := make(chan reply, 1)

	posted := s.post(func() {
		if err := s.checkWritable(); err != nil {
			replyCh <- reply{err: err}
			return
		}
		node := entities.NewNode(position, shape)
		if err := s.doc.AddNode(node); err != nil {
			replyCh <- reply{err: err}
			return
		}
		s.broadcast(protocol.TypeNodesAdd, &protocol.NodesPayload{
			Nodes: []entities.NodeState{node.State()},
		})
		s.markSignificant()
		replyCh <- reply{id: node.ID().String()}
	})
	if !posted {
		return "", pkgerrors.NewTransportUnavailableError("addNode")
	}

	select {
	case r := <-replyCh:
		return r.id, r.err
	case <-s.done:
		return "", pkgerrors.NewTransportUnavailableError("addNode")
	}
}

// DeleteNode removes a node, every node transitively reachable from it via
// outgoing edges, and all edges touching any removed node. This is a
// deliberate delete-subtree semantic.
func (s *Session) DeleteNode(id string) error {
	return s.mutate("deleteNode", func() error {
		nodeID, err := valueobjects.NewNodeIDFromString(id)
		if err != nil {
			return pkgerrors.NewValidationError("node id required")
		}

		removedNodes, removedEdges, err := s.doc.RemoveNodeCascade(nodeID)
		if err != nil {
			return err
		}

		if len(removedEdges) > 0 {
			ids := make([]string, 0, len(removedEdges))
			for _, edgeID := range removedEdges {
				ids = append(ids, edgeID.String())
			}
			s.broadcast(protocol.TypeEdgesRemove, &protocol.RemovePayload{IDs: ids})
		}
		ids := make([]string, 0, len(removedNodes))
		for _, removed := range removedNodes {
			ids = append(ids, removed.String())
		}
		s.broadcast(protocol.TypeNodesRemove, &protocol.RemovePayload{IDs: ids})

		s.markSignificant()
		return nil
	})
}

// UpdateNodeData merges a data patch into a node. A key set to nil deletes
// that key. Transient UI-only keys pass through autosave scheduling but do
// not capture a snapshot or count as broadcast-worthy.
func (s *Session) UpdateNodeData(id string, patch map[string]interface{}) error {
	return s.mutate("updateNodeData", func() error {
		nodeID, err := valueobjects.NewNodeIDFromString(id)
		if err != nil {
			return pkgerrors.NewValidationError("node id required")
		}

		node, err := s.doc.UpdateNodeData(nodeID, patch)
		if err != nil {
			return err
		}

		s.scheduler.Schedule()
		if !entities.SignificantPatch(patch) {
			return nil
		}
		s.broadcast(protocol.TypeNodesUpdate, &protocol.NodesPayload{
			Nodes: []entities.NodeState{node.State()},
		})
		s.coordinator.Record()
		return nil
	})
}

// MoveNode updates a node's canvas position
func (s *Session) MoveNode(id string, position valueobjects.Position) error {
	return s.mutate("moveNode", func() error {
		nodeID, err := valueobjects.NewNodeIDFromString(id)
		if err != nil {
			return pkgerrors.NewValidationError("node id required")
		}
		if err := s.doc.MoveNode(nodeID, position); err != nil {
			return err
		}
		node, _ := s.doc.Node(nodeID)
		s.broadcast(protocol.TypeNodesUpdate, &protocol.NodesPayload{
			Nodes: []entities.NodeState{node.State()},
		})
		s.markSignificant()
		return nil
	})
}

// UpdateEdgeData merges a data patch into an edge
func (s *Session) UpdateEdgeData(id string, patch map[string]interface{}) error {
	return s.mutate("updateEdgeData", func() error {
		edgeID, err := valueobjects.NewEdgeIDFromString(id)
		if err != nil {
			return pkgerrors.NewValidationError("edge id required")
		}

		edge, err := s.doc.UpdateEdgeData(edgeID, patch)
		if err != nil {
			return err
		}

		s.scheduler.Schedule()
		if !entities.SignificantPatch(patch) {
			return nil
		}
		s.broadcast(protocol.TypeEdgesUpdate, &protocol.EdgesPayload{
			Edges: []entities.EdgeState{edge.State()},
		})
		s.coordinator.Record()
		return nil
	})
}

// Connect creates an edge between two nodes. If an identical connection
// (same source, target, and handle pair) already exists, the call is a
// no-op returning an empty id.
func (s *Session) Connect(source, target, sourceHandle, targetHandle string) (string, error) {
	type reply struct {
		id  string
		err error
	}
	replyCh := make(chan reply, 1)

	posted := s.post(func() {
		if err := s.checkWritable(); err != nil {
			replyCh <- reply{err: err}
			return
		}
		sourceID, err := valueobjects.NewNodeIDFromString(source)
		if err != nil {
			replyCh <- reply{err: pkgerrors.NewValidationError("source id required")}
			return
		}
		targetID, err := valueobjects.NewNodeIDFromString(target)
		if err != nil {
			replyCh <- reply{err: pkgerrors.NewValidationError("target id required")}
			return
		}

		edge, err := s.doc.Connect(sourceID, targetID, sourceHandle, targetHandle)
		if err != nil {
			replyCh <- reply{err: err}
			return
		}
		if edge == nil {
			// Identical connection already exists
			replyCh <- reply{}
			return
		}

		s.broadcast(protocol.TypeConnect, &protocol.ConnectPayload{Edge: edge.State()})
		s.markSignificant()
		replyCh <- reply{id: edge.ID().String()}
	})
	if !posted {
		return "", pkgerrors.NewTransportUnavailableError("connect")
	}

	select {
	case r := <-replyCh:
		return r.id, r.err
	case <-s.done:
		return "", pkgerrors.NewTransportUnavailableError("connect")
	}
}

// DeleteEdge removes a single edge
func (s *Session) DeleteEdge(id string) error {
	return s.mutate("deleteEdge", func() error {
		edgeID, err := valueobjects.NewEdgeIDFromString(id)
		if err != nil {
			return pkgerrors.NewValidationError("edge id required")
		}
		if err := s.doc.RemoveEdge(edgeID); err != nil {
			return err
		}
		s.broadcast(protocol.TypeEdgesRemove, &protocol.RemovePayload{IDs: []string{id}})
		s.markSignificant()
		return nil
	})
}

// SetViewport updates the shared viewport. Viewport moves are persisted but
// are not undoable.
func (s *Session) SetViewport(viewport valueobjects.Viewport) error {
	return s.mutate("setViewport", func() error {
		s.doc.SetViewport(viewport)
		s.broadcast(protocol.TypeViewport, &protocol.ViewportPayload{Viewport: viewport})
		s.scheduler.Schedule()
		return nil
	})
}

// AnnouncePresence introduces the local identity to the room
func (s *Session) AnnouncePresence() {
	s.post(func() {
		s.broadcast(protocol.TypePresenceAnnounce, &protocol.AnnouncePayload{
			Participant: s.tracker.Self(),
		})
		s.tracker.MarkAnnounced()
	})
}

// MoveCursor broadcasts the local cursor position
func (s *Session) MoveCursor(position valueobjects.Position) {
	s.post(func() {
		s.broadcast(protocol.TypePresenceCursor, &protocol.CursorPayload{
			ClientID: s.clientID,
			Cursor:   position,
		})
	})
}

// SetActiveElement broadcasts what the local participant is editing
func (s *Session) SetActiveElement(kind, id string) {
	s.post(func() {
		s.broadcast(protocol.TypePresenceActive, &protocol.ActivePayload{
			ClientID: s.clientID,
			Element:  protocol.ActiveElement{Kind: kind, ID: id},
		})
	})
}

// ClearActiveElement clears the local participant's active focus
func (s *Session) ClearActiveElement() {
	s.post(func() {
		s.broadcast(protocol.TypePresenceClear, &protocol.ClearActivePayload{
			ClientID: s.clientID,
		})
	})
}

// mutate runs a fire-and-forget structural mutation on the loop, surfacing
// only definite local failures
func (s *Session) mutate(operation string, fn func() error) error {
	errCh := make(chan error, 1)
	posted := s.post(func() {
		if err := s.checkWritable(); err != nil {
			errCh <- err
			return
		}
		errCh <- fn()
	})
	if !posted {
		return pkgerrors.NewTransportUnavailableError(operation)
	}

	select {
	case err := <-errCh:
		if err != nil && errors.Is(err, aggregates.ErrNodeNotFound) {
			s.logger.Debug("Mutation target missing",
				zap.String("operation", operation),
			)
		}
		return err
	case <-s.done:
		return pkgerrors.NewTransportUnavailableError(operation)
	}
}

// checkWritable rejects mutations from blocked or read-only sessions
func (s *Session) checkWritable() error {
	if block, blocked := s.guard.Block(); blocked {
		return pkgerrors.NewAccessDeniedError(block.Reason, block.Message)
	}
	if s.role == RoleViewer {
		return pkgerrors.NewForbiddenError("viewers cannot edit this document")
	}
	return nil
}

// markSignificant runs the two consequences of a structurally significant
// change: a rate-limited snapshot capture for undo and an autosave request
func (s *Session) markSignificant() {
	s.coordinator.Record()
	s.scheduler.Schedule()
}
