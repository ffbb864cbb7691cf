package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mindmesh/application/ports"
	"mindmesh/domain/events"
	"mindmesh/pkg/auth"
	"mindmesh/pkg/common"
	pkgerrors "mindmesh/pkg/errors"
	"mindmesh/protocol"
)

// AccessHandler serves collaborator management: join tokens, revocation,
// role changes, and public-level changes. Mutations are pushed into the live
// room so connected clients react immediately.
type AccessHandler struct {
	repo      ports.DocumentRepository
	issuer    *auth.TokenIssuer
	pusher    AccessPusher
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewAccessHandler creates an access handler
func NewAccessHandler(repo ports.DocumentRepository, issuer *auth.TokenIssuer, pusher AccessPusher, publisher ports.EventPublisher, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{
		repo:      repo,
		issuer:    issuer,
		pusher:    pusher,
		publisher: publisher,
		logger:    logger,
	}
}

type joinTokenRequest struct {
	Role string `json:"role"`
}

type joinTokenResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// IssueJoinToken issues a signed room-entry token. The owner gets the owner
// role; anyone else gets the requested role capped at editor.
func (h *AccessHandler) IssueJoinToken(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized,
			common.StandardErrorCodes.Unauthorized, "Unauthorized")
		return
	}

	record, err := h.repo.GetByID(r.Context(), documentID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	var req joinTokenRequest
	// Body is optional; absent or unreadable means the default role
	common.ParseJSONBody(r, &req, 1<<10)

	role := "viewer"
	switch {
	case record.OwnerID == user.UserID:
		role = "owner"
	case req.Role == "editor":
		role = "editor"
	}

	token, err := h.issuer.Issue(documentID, user.UserID, role)
	if err != nil {
		h.logger.Error("Failed to issue join token",
			zap.String("documentID", documentID),
			zap.Error(err),
		)
		common.RespondAppError(w, pkgerrors.NewInternalError("failed to issue join token"))
		return
	}

	common.RespondJSON(w, http.StatusOK, joinTokenResponse{Token: token, Role: role})
}

type removeCollaboratorRequest struct {
	Message string `json:"message,omitempty"`
}

// RemoveCollaborator revokes a collaborator's access and pushes the removal
// into the room
func (h *AccessHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	targetUserID := chi.URLParam(r, "userID")

	actor, ok := h.requireOwner(w, r, documentID)
	if !ok {
		return
	}

	var req removeCollaboratorRequest
	common.ParseJSONBody(r, &req, 1<<10)

	h.pusher.Push(documentID, protocol.TypeCollaboratorRemoved, &protocol.CollaboratorRemovedPayload{
		TargetUserID: targetUserID,
		ActorUserID:  actor.UserID,
		Message:      req.Message,
	})

	if err := h.publisher.Publish(r.Context(),
		events.NewAccessChanged(documentID, targetUserID, actor.UserID, "removed", "", "", time.Now())); err != nil {
		h.logger.Debug("Audit publish failed", zap.Error(err))
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{
		"documentId": documentID,
		"userId":     targetUserID,
	})
}

type changeRoleRequest struct {
	OldRole string `json:"oldRole,omitempty"`
	NewRole string `json:"newRole"`
}

// ChangeRole updates a collaborator's role and pushes the change into the
// room. Role changes inform, they do not block.
func (h *AccessHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	targetUserID := chi.URLParam(r, "userID")

	actor, ok := h.requireOwner(w, r, documentID)
	if !ok {
		return
	}

	var req changeRoleRequest
	if err := common.ParseJSONBody(r, &req, 1<<10); err != nil || req.NewRole == "" {
		common.RespondError(w, http.StatusBadRequest,
			common.StandardErrorCodes.BadRequest, "Missing newRole")
		return
	}

	h.pusher.Push(documentID, protocol.TypeRoleChanged, &protocol.RoleChangedPayload{
		TargetUserID: targetUserID,
		ActorUserID:  actor.UserID,
		OldRole:      req.OldRole,
		NewRole:      req.NewRole,
	})

	if err := h.publisher.Publish(r.Context(),
		events.NewAccessChanged(documentID, targetUserID, actor.UserID, "role", req.OldRole, req.NewRole, time.Now())); err != nil {
		h.logger.Debug("Audit publish failed", zap.Error(err))
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{
		"documentId": documentID,
		"userId":     targetUserID,
		"role":       req.NewRole,
	})
}

type publicLevelRequest struct {
	Level string `json:"level"`
}

// SetPublicLevel changes the document's public access level
func (h *AccessHandler) SetPublicLevel(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	actor, ok := h.requireOwner(w, r, documentID)
	if !ok {
		return
	}

	var req publicLevelRequest
	if err := common.ParseJSONBody(r, &req, 1<<10); err != nil || req.Level == "" {
		common.RespondError(w, http.StatusBadRequest,
			common.StandardErrorCodes.BadRequest, "Missing level")
		return
	}

	h.pusher.Push(documentID, protocol.TypePublicChanged, &protocol.PublicChangedPayload{
		Level:       req.Level,
		ActorUserID: actor.UserID,
	})

	if err := h.publisher.Publish(r.Context(),
		events.NewAccessChanged(documentID, "", actor.UserID, "public", "", req.Level, time.Now())); err != nil {
		h.logger.Debug("Audit publish failed", zap.Error(err))
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{
		"documentId": documentID,
		"level":      req.Level,
	})
}

type revokeAccessRequest struct {
	TargetUserID string `json:"targetUserId,omitempty"`
	Reason       string `json:"reason"`
	Message      string `json:"message,omitempty"`
}

// RevokeAccess pushes a revocation into the room. An empty target revokes
// every non-owner participant.
func (h *AccessHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	actor, ok := h.requireOwner(w, r, documentID)
	if !ok {
		return
	}

	var req revokeAccessRequest
	if err := common.ParseJSONBody(r, &req, 1<<10); err != nil || req.Reason == "" {
		common.RespondError(w, http.StatusBadRequest,
			common.StandardErrorCodes.BadRequest, "Missing reason")
		return
	}

	h.pusher.Push(documentID, protocol.TypeAccessRevoked, &protocol.AccessRevokedPayload{
		TargetUserID: req.TargetUserID,
		ActorUserID:  actor.UserID,
		Reason:       req.Reason,
		Message:      req.Message,
	})

	if err := h.publisher.Publish(r.Context(),
		events.NewAccessChanged(documentID, req.TargetUserID, actor.UserID, "revoked", "", req.Reason, time.Now())); err != nil {
		h.logger.Debug("Audit publish failed", zap.Error(err))
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{
		"documentId": documentID,
	})
}

// requireOwner loads the document and verifies the caller owns it
func (h *AccessHandler) requireOwner(w http.ResponseWriter, r *http.Request, documentID string) (*auth.UserContext, bool) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized,
			common.StandardErrorCodes.Unauthorized, "Unauthorized")
		return nil, false
	}

	record, err := h.repo.GetByID(r.Context(), documentID)
	if err != nil {
		common.RespondAppError(w, err)
		return nil, false
	}
	if record.OwnerID != user.UserID {
		common.RespondAppError(w, pkgerrors.NewForbiddenError("only the owner can manage access"))
		return nil, false
	}
	return user, true
}
