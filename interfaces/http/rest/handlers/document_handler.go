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
	"mindmesh/pkg/observability"
	"mindmesh/protocol"
)

const maxDocumentBytes = 4 << 20

// AccessPusher pushes authority messages into a live room. Satisfied by the
// ws hub.
type AccessPusher interface {
	Push(documentID string, t protocol.MessageType, payload interface{}) bool
}

// DocumentHandler serves document hydration, save, and deletion
type DocumentHandler struct {
	repo      ports.DocumentRepository
	publisher ports.EventPublisher
	pusher    AccessPusher
	metrics   *observability.Collector
	logger    *zap.Logger
}

// NewDocumentHandler creates a document handler
func NewDocumentHandler(repo ports.DocumentRepository, publisher ports.EventPublisher, pusher AccessPusher, metrics *observability.Collector, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		repo:      repo,
		publisher: publisher,
		pusher:    pusher,
		metrics:   metrics,
		logger:    logger,
	}
}

// GetDocument hydrates a document by id
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	if documentID == "" {
		common.RespondError(w, http.StatusBadRequest,
			common.StandardErrorCodes.BadRequest, "Missing document id")
		return
	}

	record, err := h.repo.GetByID(r.Context(), documentID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, record)
}

// SaveDocument persists a full document
func (h *DocumentHandler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized,
			common.StandardErrorCodes.Unauthorized, "Unauthorized")
		return
	}

	var record ports.DocumentRecord
	if err := common.ParseJSONBody(r, &record, maxDocumentBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest,
			common.StandardErrorCodes.BadRequest, "Invalid document body")
		return
	}
	record.ID = documentID
	if record.OwnerID == "" {
		record.OwnerID = user.UserID
	}

	stored, err := h.repo.Save(r.Context(), &record)
	if err != nil {
		h.metrics.DocumentSaves.WithLabelValues("error").Inc()
		common.RespondAppError(w, err)
		return
	}
	h.metrics.DocumentSaves.WithLabelValues("ok").Inc()

	if err := h.publisher.Publish(r.Context(),
		events.NewDocumentSaved(documentID, len(stored.Nodes), len(stored.Edges), time.Now())); err != nil {
		h.logger.Debug("Audit publish failed", zap.Error(err))
	}

	common.RespondJSON(w, http.StatusOK, stored)
}

// DeleteDocument removes a document and notifies its live room. Participants
// in the room transition to a terminal blocked state.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
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
	if record.OwnerID != user.UserID {
		common.RespondAppError(w, pkgerrors.NewForbiddenError("only the owner can delete a document"))
		return
	}

	if err := h.repo.Delete(r.Context(), documentID); err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.pusher.Push(documentID, protocol.TypeDocumentDeleted, &protocol.DocumentDeletedPayload{
		ActorUserID: user.UserID,
		Message:     "This document has been deleted",
	})

	if err := h.publisher.Publish(r.Context(),
		events.NewDocumentDeleted(documentID, user.UserID, time.Now())); err != nil {
		h.logger.Debug("Audit publish failed", zap.Error(err))
	}

	common.RespondJSON(w, http.StatusOK, map[string]string{"id": documentID})
}

// ListDocuments returns the caller's documents
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized,
			common.StandardErrorCodes.Unauthorized, "Unauthorized")
		return
	}

	records, err := h.repo.ListByOwner(r.Context(), user.UserID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, records)
}
