// Package devserver implements a local attribution service that speaks the
// same wire protocol as the SDK transport.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/penshort/deeplink/internal/middleware"
	"github.com/penshort/deeplink/pkg/fingerprint"
	"github.com/penshort/deeplink/pkg/session"
)

const linkKeyPrefix = "link:"

// HealthChecker defines an interface for checking dependency health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Config holds handler settings.
type Config struct {
	BaseURL      string
	DeferredLink string
}

// Handler serves the attribution endpoints.
type Handler struct {
	registry DeviceRegistry
	links    session.Store
	cfg      Config
	redis    HealthChecker
	logger   *slog.Logger
}

// New creates a Handler. redis may be nil when no Redis is configured.
func New(registry DeviceRegistry, links session.Store, redis HealthChecker, cfg Config, logger *slog.Logger) *Handler {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Handler{
		registry: registry,
		links:    links,
		cfg:      cfg,
		redis:    redis,
		logger:   logger.With("component", "devserver"),
	}
}

type verifyResponse struct {
	IsFirstSession bool    `json:"isFirstSession"`
	Link           *string `json:"link,omitempty"`
}

// Verify handles POST /v1/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var fp fingerprint.Fingerprint
	if !decodeJSON(w, r, &fp) {
		return
	}
	if fp.DeviceID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "MISSING_DEVICE_ID", "deviceId is required")
		return
	}

	hash := fp.Hash()
	first, err := h.registry.Observe(r.Context(), hash)
	if err != nil {
		h.logger.Error("device registry error",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		middleware.WriteError(w, http.StatusServiceUnavailable, "REGISTRY_UNAVAILABLE", "Device registry unavailable")
		return
	}

	resp := verifyResponse{IsFirstSession: first}
	if first && h.cfg.DeferredLink != "" {
		link := h.cfg.DeferredLink
		resp.Link = &link
	}

	h.logger.Info("device verified",
		"device_hash", hash,
		"os", fp.OS,
		"first_session", first,
		"key_mode", middleware.GetKeyMode(r.Context()),
		"request_id", middleware.GetRequestID(r.Context()),
	)

	writeJSON(w, http.StatusOK, resp)
}

type storedLink struct {
	Code      string         `json:"code"`
	URL       string         `json:"url"`
	Params    map[string]any `json:"params"`
	CreatedAt time.Time      `json:"createdAt"`
}

type createLinkResponse struct {
	URL string `json:"url"`
}

// CreateLink handles POST /v1/links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var params map[string]any
	if !decodeJSON(w, r, &params) {
		return
	}

	path, _ := params["path"].(string)
	if strings.TrimSpace(path) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "MISSING_PATH", "path is required")
		return
	}

	code := strings.ToLower(ulid.Make().String())
	link := storedLink{
		Code:      code,
		URL:       h.cfg.BaseURL + "/" + code,
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(link)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "INVALID_PARAMS", "Parameters cannot be stored")
		return
	}
	if err := h.links.Set(r.Context(), linkKeyPrefix+code, data); err != nil {
		h.logger.Error("link store error", "error", err)
		middleware.WriteError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Link store unavailable")
		return
	}

	name, _ := params["name"].(string)
	h.logger.Info("link_created",
		"short_code", code,
		"name", name,
		"path", path,
		"request_id", middleware.GetRequestID(r.Context()),
	)

	writeJSON(w, http.StatusCreated, createLinkResponse{URL: link.URL})
}

// GetLink handles GET /v1/links/{code}.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	code := strings.ToLower(chi.URLParam(r, "code"))
	if code == "" {
		middleware.WriteError(w, http.StatusBadRequest, "MISSING_CODE", "Link code is required")
		return
	}

	data, ok, err := h.links.Get(r.Context(), linkKeyPrefix+code)
	if err != nil {
		h.logger.Error("link store error", "error", err)
		middleware.WriteError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Link store unavailable")
		return
	}
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Link not found")
		return
	}

	var link storedLink
	if err := json.Unmarshal(data, &link); err != nil {
		h.logger.Error("corrupt link record", "short_code", code, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, link)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is a liveness probe endpoint.
//
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz checks Redis when it is configured.
//
// GET /readyz
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"redis": "not configured"}
	status, code := "ok", http.StatusOK

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = "error: " + err.Error()
			status, code = "unhealthy", http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}

	writeJSON(w, code, HealthResponse{Status: status, Checks: checks})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON decodes the request body into v and writes the error response
// on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
		return false
	}
	middleware.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
	return false
}
