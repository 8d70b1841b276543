package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridia-ai/veridia-core/pkg/engine"
	"github.com/veridia-ai/veridia-core/pkg/models"
	"github.com/veridia-ai/veridia-core/pkg/tenants"
)

// TenantHandler serves the tenant admin surface: registry operations, model
// credential configuration, and database policy configuration. Credential
// material flows in but never back out; reads return the masked view.
type TenantHandler struct {
	tenants tenants.Service
	engine  *engine.Engine
	logger  *zap.Logger
}

// NewTenantHandler creates a new TenantHandler.
func NewTenantHandler(svc tenants.Service, eng *engine.Engine, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{tenants: svc, engine: eng, logger: logger}
}

// RegisterRoutes registers the tenant handler's routes on the given mux.
func (h *TenantHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/tenants", h.Create)
	mux.HandleFunc("GET /v1/tenants", h.List)
	mux.HandleFunc("GET /v1/tenants/{tid}", h.Get)
	mux.HandleFunc("POST /v1/tenants/{tid}/activate", h.Activate)
	mux.HandleFunc("POST /v1/tenants/{tid}/deactivate", h.Deactivate)
	mux.HandleFunc("PUT /v1/tenants/{tid}/model", h.ConfigureModel)
	mux.HandleFunc("GET /v1/tenants/{tid}/model", h.DescribeModel)
	mux.HandleFunc("PUT /v1/tenants/{tid}/database", h.ConfigureDatabase)
}

func (h *TenantHandler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("tid"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_tenant_id", "tenant id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

type createTenantRequest struct {
	Name string `json:"name"`
}

// Create handles POST /v1/tenants requests.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if body.Name == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	tenant, err := h.tenants.Create(r.Context(), body.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, tenant); err != nil {
		h.logger.Error("Failed to encode tenant response", zap.Error(err))
	}
}

// List handles GET /v1/tenants requests.
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.tenants.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"tenants": all}); err != nil {
		h.logger.Error("Failed to encode tenant list", zap.Error(err))
	}
}

// Get handles GET /v1/tenants/{tid} requests. The response is the public
// view; stored credentials appear only as a has_model_key flag.
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	tid, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	view, err := h.tenants.Get(r.Context(), tid)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, view); err != nil {
		h.logger.Error("Failed to encode tenant view", zap.Error(err))
	}
}

// Activate handles POST /v1/tenants/{tid}/activate requests.
func (h *TenantHandler) Activate(w http.ResponseWriter, r *http.Request) {
	tid, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	if err := h.tenants.Activate(r.Context(), tid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deactivate handles POST /v1/tenants/{tid}/deactivate requests.
func (h *TenantHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	tid, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	if err := h.tenants.Deactivate(r.Context(), tid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type configureModelRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	Endpoint string `json:"endpoint,omitempty"`
}

// ConfigureModel handles PUT /v1/tenants/{tid}/model requests. The API key
// is encrypted at rest and never echoed back.
func (h *TenantHandler) ConfigureModel(w http.ResponseWriter, r *http.Request) {
	tid, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var body configureModelRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}

	err := h.engine.ConfigureModel(r.Context(), tid,
		models.ModelProvider(body.Provider), body.APIKey, body.Model, body.Endpoint)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DescribeModel handles GET /v1/tenants/{tid}/model requests.
func (h *TenantHandler) DescribeModel(w http.ResponseWriter, r *http.Request) {
	tid, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	cfg, err := h.engine.DescribeModel(r.Context(), tid)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, cfg); err != nil {
		h.logger.Error("Failed to encode model config", zap.Error(err))
	}
}

// ConfigureDatabase handles PUT /v1/tenants/{tid}/database requests. The DSN
// is encrypted at rest; validation failures surface without it.
func (h *TenantHandler) ConfigureDatabase(w http.ResponseWriter, r *http.Request) {
	tid, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var p models.DatabasePolicy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}

	if err := h.engine.ConfigureDatabase(r.Context(), tid, &p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
