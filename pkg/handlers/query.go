package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/engine"
)

// QueryHandler serves tenant query requests.
type QueryHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(eng *engine.Engine, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{engine: eng, logger: logger}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/tenants/{tid}/query", h.Query)
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
}

// Query handles POST /v1/tenants/{tid}/query requests. With stream set the
// answer is delivered as server-sent events; otherwise as a single JSON
// response.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.PathValue("tid"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_tenant_id", "tenant id must be a UUID")
		return
	}

	var body queryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if body.Query == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	req := &engine.QueryRequest{
		TenantID:  tenantID,
		SessionID: body.SessionID,
		Query:     body.Query,
	}

	if body.Stream {
		h.stream(w, r, req)
		return
	}

	resp, err := h.engine.HandleQuery(r.Context(), req)
	if err != nil {
		h.logger.Warn("Query failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		writeError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}

// stream delivers the answer as SSE delta events followed by one done event
// carrying the full response envelope.
func (h *QueryHandler) stream(w http.ResponseWriter, r *http.Request, req *engine.QueryRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = ErrorResponse(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	resp, err := h.engine.HandleQueryStream(r.Context(), req, func(delta string) error {
		payload, err := json.Marshal(map[string]string{"delta": delta})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: delta\ndata: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && resp == nil {
		h.logger.Warn("Streamed query failed",
			zap.String("tenant_id", req.TenantID.String()),
			zap.Error(err))
		// Headers are already sent; signal the failure in-band
		fmt.Fprint(w, "event: error\ndata: {\"error\":\"query_failed\"}\n\n")
		flusher.Flush()
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("Failed to encode stream envelope", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
	flusher.Flush()
}
