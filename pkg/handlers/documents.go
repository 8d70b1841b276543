package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/database"
	"github.com/veridia-ai/veridia-core/pkg/retrieval"
	"github.com/veridia-ai/veridia-core/pkg/session"
)

// DocumentHandler serves document ingestion for the passage index and
// session lifecycle operations.
type DocumentHandler struct {
	db       *database.DB
	sessions session.Store
	logger   *zap.Logger
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(db *database.DB, sessions session.Store, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{db: db, sessions: sessions, logger: logger}
}

// RegisterRoutes registers the document handler's routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/tenants/{tid}/documents", h.Ingest)
	mux.HandleFunc("DELETE /v1/tenants/{tid}/sessions/{sid}", h.ClearSession)
}

type ingestRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Ingest handles POST /v1/tenants/{tid}/documents requests.
func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	tid, err := uuid.Parse(r.PathValue("tid"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_tenant_id", "tenant id must be a UUID")
		return
	}

	var body ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if body.Content == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}

	docID, err := retrieval.IngestDocument(r.Context(), h.db, tid, body.Title, body.Content)
	if err != nil {
		h.logger.Error("Document ingest failed",
			zap.String("tenant_id", tid.String()),
			zap.Error(err))
		writeError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, map[string]string{"id": docID.String()}); err != nil {
		h.logger.Error("Failed to encode ingest response", zap.Error(err))
	}
}

// ClearSession handles DELETE /v1/tenants/{tid}/sessions/{sid} requests.
func (h *DocumentHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	tid, err := uuid.Parse(r.PathValue("tid"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_tenant_id", "tenant id must be a UUID")
		return
	}

	if err := h.sessions.Clear(r.Context(), tid, r.PathValue("sid")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
