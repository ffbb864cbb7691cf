// Package access reacts to authority-pushed permission events. Any
// revocation, removal, or deletion targeting the current identity moves the
// session into a terminal blocked state; the consuming layer must then stop
// issuing mutations.
package access

import (
	"go.uber.org/zap"

	"mindmesh/protocol"
)

// State is the guard's lifecycle state
type State int

const (
	StateActive State = iota
	StateBlocked
)

// Machine-readable block reasons for events that do not carry their own
const (
	ReasonCollaboratorRemoved = "collaborator_removed"
	ReasonDocumentDeleted     = "document_deleted"
)

// Block carries why the session was blocked
type Block struct {
	Reason  string
	Message string
}

// RoleNotice is a one-shot dismissible notice about the local identity's
// role changing
type RoleNotice struct {
	OldRole string
	NewRole string
}

// Guard holds the access state for one session. Not safe for concurrent
// use; the owning session serializes access.
type Guard struct {
	logger  *zap.Logger
	userID  string
	isOwner bool

	state       State
	block       *Block
	notice      *RoleNotice
	publicLevel string

	onBlocked func(Block)
	onNotice  func(RoleNotice)
}

// NewGuard creates a guard for the current identity
func NewGuard(userID string, isOwner bool, logger *zap.Logger) *Guard {
	return &Guard{
		logger:  logger,
		userID:  userID,
		isOwner: isOwner,
		state:   StateActive,
	}
}

// OnBlocked registers the callback fired when the guard transitions to
// blocked
func (g *Guard) OnBlocked(fn func(Block)) {
	g.onBlocked = fn
}

// OnNotice registers the callback fired for role-change notices
func (g *Guard) OnNotice(fn func(RoleNotice)) {
	g.onNotice = fn
}

// Blocked reports whether the session is terminally blocked
func (g *Guard) Blocked() bool {
	return g.state == StateBlocked
}

// Block returns the block details, if blocked
func (g *Guard) Block() (Block, bool) {
	if g.block == nil {
		return Block{}, false
	}
	return *g.block, true
}

// Notice returns the pending role notice, if any
func (g *Guard) Notice() (RoleNotice, bool) {
	if g.notice == nil {
		return RoleNotice{}, false
	}
	return *g.notice, true
}

// DismissNotice clears the pending role notice
func (g *Guard) DismissNotice() {
	g.notice = nil
}

// PublicLevel returns the last observed public-access level
func (g *Guard) PublicLevel() string {
	return g.publicLevel
}

// ApplyRevoked handles an access-revoked push. A revocation with an empty
// target applies to every non-owner in the room; the owner is exempt.
func (g *Guard) ApplyRevoked(p *protocol.AccessRevokedPayload) {
	if g.Blocked() {
		return
	}
	if g.selfOriginated(p.ActorUserID) {
		return
	}
	if p.TargetUserID != "" && p.TargetUserID != g.userID {
		return
	}
	if p.TargetUserID == "" && g.isOwner {
		return
	}

	message := p.Message
	if message == "" {
		message = "Your access to this document has been revoked."
	}
	g.enterBlocked(Block{Reason: p.Reason, Message: message})
}

// ApplyCollaboratorRemoved handles a collaborator-removed push
func (g *Guard) ApplyCollaboratorRemoved(p *protocol.CollaboratorRemovedPayload) {
	if g.Blocked() {
		return
	}
	if g.selfOriginated(p.ActorUserID) {
		return
	}
	if p.TargetUserID != g.userID {
		return
	}

	message := p.Message
	if message == "" {
		message = "You have been removed from this document."
	}
	g.enterBlocked(Block{Reason: ReasonCollaboratorRemoved, Message: message})
}

// ApplyRoleChanged handles a collaborator-role-changed push. A change
// targeting the current identity does not block; it produces a one-shot
// dismissible notice.
func (g *Guard) ApplyRoleChanged(p *protocol.RoleChangedPayload) {
	if g.Blocked() {
		return
	}
	if g.selfOriginated(p.ActorUserID) {
		return
	}
	if p.TargetUserID != g.userID {
		return
	}

	notice := RoleNotice{OldRole: p.OldRole, NewRole: p.NewRole}
	g.notice = &notice
	g.logger.Info("Role changed",
		zap.String("oldRole", p.OldRole),
		zap.String("newRole", p.NewRole),
	)
	if g.onNotice != nil {
		g.onNotice(notice)
	}
}

// ApplyPublicChanged records the new public-access level. Loss of access is
// signalled separately by an access-revoked push.
func (g *Guard) ApplyPublicChanged(p *protocol.PublicChangedPayload) {
	if g.selfOriginated(p.ActorUserID) {
		return
	}
	g.publicLevel = p.Level
}

// ApplyDocumentDeleted handles a document-deleted push
func (g *Guard) ApplyDocumentDeleted(p *protocol.DocumentDeletedPayload) {
	if g.Blocked() {
		return
	}
	if g.selfOriginated(p.ActorUserID) {
		return
	}

	message := p.Message
	if message == "" {
		message = "This document has been deleted."
	}
	g.enterBlocked(Block{Reason: ReasonDocumentDeleted, Message: message})
}

// selfOriginated reports whether the acting identity is the current
// identity. A client never blocks itself for its own action.
func (g *Guard) selfOriginated(actorUserID string) bool {
	return actorUserID != "" && actorUserID == g.userID
}

func (g *Guard) enterBlocked(block Block) {
	g.state = StateBlocked
	g.block = &block
	g.logger.Warn("Session blocked",
		zap.String("reason", block.Reason),
		zap.String("message", block.Message),
	)
	if g.onBlocked != nil {
		g.onBlocked(block)
	}
}
