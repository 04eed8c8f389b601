package http

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"broadcast-quiz-service/internal/app"
	"go.uber.org/zap"
)

// AdminHandler serves the operator status over HTTP, guarded by a static token.
type AdminHandler struct {
	status *app.StatusReporter
	token  string
	limit  int
	log    *zap.Logger
}

func NewAdminHandler(status *app.StatusReporter, token string, limit int, log *zap.Logger) *AdminHandler {
	if limit <= 0 {
		limit = 300
	}
	return &AdminHandler{status: status, token: token, limit: limit, log: log}
}

// ServeStatus handles GET /admin/status. The X-Admin-Token header must match
// the configured token; an empty token disables the endpoint.
func (h *AdminHandler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.token == "" {
		http.NotFound(w, r)
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Admin-Token")), []byte(h.token)) != 1 {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	limit := h.limit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	status, err := h.status.Status(r.Context(), limit)
	if err != nil {
		h.log.Error("admin status", zap.Error(err))
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.log.Warn("write admin status", zap.Error(err))
	}
}
