package session

import (
	"go.uber.org/zap"

	"mindmesh/domain/core/entities"
	"mindmesh/domain/core/valueobjects"
	"mindmesh/protocol"
)

// Remote mutation reducer: folds inbound channel messages into the local
// store and presence state. Runs on the session loop, so every handler here
// can touch the document without locks. Remote applications are
// last-writer-wins at whole-object granularity and never echo back out, and
// they never schedule an autosave; the originating client owns persistence
// of its own change.

func (s *Session) reduce(msg *protocol.Message) {
	// Own echoes fold back as no-ops but cost snapshot comparisons; drop
	// them at the door
	if s.clientID != "" && msg.Sender == s.clientID {
		return
	}

	if msg.Type == protocol.TypeJoined {
		s.reduceJoined(msg)
		return
	}
	if !s.joined {
		s.logger.Debug("Dropping pre-join message", zap.String("type", string(msg.Type)))
		return
	}

	switch msg.Type {
	case protocol.TypeNodesAdd, protocol.TypeNodesUpdate:
		if p, ok := msg.Payload.(*protocol.NodesPayload); ok {
			s.reduceNodes(p.Nodes)
		}
	case protocol.TypeNodesRemove:
		if p, ok := msg.Payload.(*protocol.RemovePayload); ok {
			s.reduceNodesRemove(p.IDs)
		}
	case protocol.TypeEdgesAdd:
		if p, ok := msg.Payload.(*protocol.EdgesPayload); ok {
			s.reduceEdges(p.Edges, true)
		}
	case protocol.TypeEdgesUpdate:
		if p, ok := msg.Payload.(*protocol.EdgesPayload); ok {
			s.reduceEdges(p.Edges, false)
		}
	case protocol.TypeEdgesRemove:
		if p, ok := msg.Payload.(*protocol.RemovePayload); ok {
			s.reduceEdgesRemove(p.IDs)
		}
	case protocol.TypeConnect:
		if p, ok := msg.Payload.(*protocol.ConnectPayload); ok {
			s.reduceEdges([]entities.EdgeState{p.Edge}, true)
		}
	case protocol.TypeViewport:
		if p, ok := msg.Payload.(*protocol.ViewportPayload); ok {
			s.doc.SetViewport(p.Viewport)
		}

	case protocol.TypePresenceState:
		if p, ok := msg.Payload.(*protocol.PresenceStatePayload); ok {
			s.tracker.ApplyState(p.Participants)
		}
	case protocol.TypePresenceAnnounce:
		if p, ok := msg.Payload.(*protocol.AnnouncePayload); ok {
			s.tracker.ApplyAnnounce(p.Participant)
		}
	case protocol.TypePresenceLeft:
		if p, ok := msg.Payload.(*protocol.LeftPayload); ok {
			s.tracker.ApplyLeft(p.ClientID)
		}
	case protocol.TypePresenceCursor:
		if p, ok := msg.Payload.(*protocol.CursorPayload); ok {
			s.tracker.ApplyCursor(p.ClientID, p.Cursor)
		}
	case protocol.TypePresenceActive:
		if p, ok := msg.Payload.(*protocol.ActivePayload); ok {
			s.tracker.ApplyActive(p.ClientID, p.Element)
		}
	case protocol.TypePresenceClear:
		if p, ok := msg.Payload.(*protocol.ClearActivePayload); ok {
			s.tracker.ApplyClearActive(p.ClientID)
		}

	case protocol.TypeUndoResult, protocol.TypeRedoResult:
		if p, ok := msg.Payload.(*protocol.HistoryResultPayload); ok {
			s.coordinator.HandleResult(p)
		}
	case protocol.TypeHistoryRestore:
		if p, ok := msg.Payload.(*protocol.SnapshotPayload); ok {
			s.coordinator.HandleRestore(p.Snapshot)
		}
	case protocol.TypeHistoryState:
		if p, ok := msg.Payload.(*protocol.HistoryStatePayload); ok {
			s.doc.SetHistoryFlags(p.CanUndo, p.CanRedo)
		}

	case protocol.TypeAutosaveToggle, protocol.TypeAutosaveSync:
		if p, ok := msg.Payload.(*protocol.AutosavePayload); ok {
			s.scheduler.ApplyRemote(p.Enabled)
		}

	case protocol.TypeAccessRevoked:
		if p, ok := msg.Payload.(*protocol.AccessRevokedPayload); ok {
			s.guard.ApplyRevoked(p)
		}
	case protocol.TypeCollaboratorRemoved:
		if p, ok := msg.Payload.(*protocol.CollaboratorRemovedPayload); ok {
			s.guard.ApplyCollaboratorRemoved(p)
		}
	case protocol.TypeRoleChanged:
		if p, ok := msg.Payload.(*protocol.RoleChangedPayload); ok {
			s.reduceRoleChanged(p)
		}
	case protocol.TypePublicChanged:
		if p, ok := msg.Payload.(*protocol.PublicChangedPayload); ok {
			s.guard.ApplyPublicChanged(p)
		}
	case protocol.TypeDocumentDeleted:
		if p, ok := msg.Payload.(*protocol.DocumentDeletedPayload); ok {
			s.guard.ApplyDocumentDeleted(p)
		}

	default:
		s.logger.Debug("Dropping unhandled message", zap.String("type", string(msg.Type)))
	}
}

// reduceJoined installs the authority's room assignment: identity, role,
// presence roster, history capability, and the room-wide autosave flag.
func (s *Session) reduceJoined(msg *protocol.Message) {
	p, ok := msg.Payload.(*protocol.JoinedPayload)
	if !ok {
		return
	}

	s.room = msg.Room
	if s.room == "" {
		s.room = p.Room
	}
	s.clientID = p.ClientID
	s.tracker.SetSelfClientID(p.ClientID)

	if p.Role != "" {
		s.applyRole(Role(p.Role))
	}

	s.doc.SetHistoryFlags(p.CanUndo, p.CanRedo)
	s.scheduler.ApplyRemote(p.AutosaveEnabled)
	s.tracker.ApplyState(p.Participants)

	s.joined = true
	s.broadcast(protocol.TypePresenceAnnounce, &protocol.AnnouncePayload{
		Participant: s.tracker.Self(),
	})
	s.tracker.MarkAnnounced()

	// Seed the authority's ledger so the first local edit is undoable
	s.coordinator.RecordInitial()

	s.joinOnce.Do(func() { close(s.joinedCh) })
	s.logger.Info("Joined room",
		zap.String("room", s.room),
		zap.String("clientID", s.clientID),
		zap.String("role", string(s.role)),
	)
}

// reduceNodes applies a batch of full node objects, upserting by id
func (s *Session) reduceNodes(states []entities.NodeState) {
	for _, state := range states {
		if s.doc.ReplaceNode(state) {
			continue
		}
		node, err := entities.ReconstructNode(state)
		if err != nil {
			s.logger.Warn("Dropping malformed remote node", zap.Error(err))
			continue
		}
		if err := s.doc.AddNode(node); err != nil {
			s.logger.Debug("Dropping remote node",
				zap.String("nodeID", state.ID),
				zap.Error(err),
			)
		}
	}
}

// reduceNodesRemove cascades each removal exactly as a local delete would,
// so the two sides converge on the same subtree
func (s *Session) reduceNodesRemove(ids []string) {
	for _, id := range ids {
		nodeID, err := valueobjects.NewNodeIDFromString(id)
		if err != nil {
			continue
		}
		if _, _, err := s.doc.RemoveNodeCascade(nodeID); err != nil {
			// Already gone, usually removed by an earlier cascade in the
			// same batch
			continue
		}
	}
}

// reduceEdges applies a batch of full edge objects. An incoming edge whose
// id collides with a different local connection gets a fresh id and the
// local edge is left alone; an edge duplicating an existing connection is
// dropped. Only an update carrying the stored edge's own connection is a
// true replace.
func (s *Session) reduceEdges(states []entities.EdgeState, adding bool) {
	for _, state := range states {
		edgeID, err := valueobjects.NewEdgeIDFromString(state.ID)
		if err != nil {
			continue
		}
		edge, err := entities.ReconstructEdge(state)
		if err != nil {
			s.logger.Warn("Dropping malformed remote edge", zap.Error(err))
			continue
		}

		if existing, ok := s.doc.Edge(edgeID); ok {
			if !adding && existing.Key() == edge.Key() {
				s.doc.ReplaceEdge(state)
				continue
			}
			if s.doc.HasConnection(edge.Key()) {
				continue
			}
			regenerated := edge.WithID(valueobjects.NewEdgeID())
			if err := s.doc.AddEdge(regenerated); err != nil {
				s.logger.Debug("Dropping colliding remote edge",
					zap.String("edgeID", state.ID),
					zap.Error(err),
				)
			}
			continue
		}

		if s.doc.HasConnection(edge.Key()) {
			continue
		}
		if err := s.doc.AddEdge(edge); err != nil {
			s.logger.Debug("Dropping remote edge",
				zap.String("edgeID", state.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *Session) reduceEdgesRemove(ids []string) {
	for _, id := range ids {
		edgeID, err := valueobjects.NewEdgeIDFromString(id)
		if err != nil {
			continue
		}
		_ = s.doc.RemoveEdge(edgeID)
	}
}

// reduceRoleChanged routes a role change through the guard and, when it
// targets the local user, adjusts editability
func (s *Session) reduceRoleChanged(p *protocol.RoleChangedPayload) {
	s.guard.ApplyRoleChanged(p)
	if p.TargetUserID == s.cfg.Identity.UserID {
		s.applyRole(Role(p.NewRole))
	}
}

func (s *Session) applyRole(role Role) {
	s.role = role
	s.scheduler.SetReadOnly(role == RoleViewer)
}
