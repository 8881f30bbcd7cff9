package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mehetab-01/apex-ai-sub001/internal/api/middleware"
	"github.com/mehetab-01/apex-ai-sub001/internal/apex"
	"github.com/mehetab-01/apex-ai-sub001/internal/session"
	"github.com/mehetab-01/apex-ai-sub001/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	redis    *store.RedisStore
	registry *session.Registry
	client   *apex.Client
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(db store.DataStore, redis *store.RedisStore, registry *session.Registry, client *apex.Client) *Handler {
	return &Handler{db: db, redis: redis, registry: registry, client: client}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// manager resolves the session manager for the authenticated request.
// Writes an error response and returns nil when resolution fails.
func (h *Handler) manager(w http.ResponseWriter, r *http.Request) *session.Manager {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return nil
	}

	m, err := h.registry.Resolve(r.Context(), userID, middleware.Token(r.Context()))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "session resolution failed")
		return nil
	}
	return m
}
