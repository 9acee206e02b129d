package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/premierreview/reviewbot/internal/store"
)

// requireAdmin guards the admin routes with ADMIN_TOKEN. Without a configured
// token the admin API is disabled.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminToken == "" {
			writeJSONResponse(w, http.StatusNotFound, errorResponse("Admin API disabled"))
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminToken)) != 1 {
			slog.Warn("requireAdmin: rejected request", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, errorResponse("Unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resetReachableHandler clears a permanent delivery failure so the user can
// be messaged again.
func (s *Server) resetReachableHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetUser(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, errorResponse("User not found"))
			return
		}
		slog.Error("resetReachableHandler: failed to load user", "userID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("Failed to load user"))
		return
	}
	if err := s.store.SetReachable(r.Context(), id, true); err != nil {
		slog.Error("resetReachableHandler: failed to update user", "userID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("Failed to update user"))
		return
	}
	slog.Info("resetReachableHandler: user marked reachable", "userID", id)
	writeJSONResponse(w, http.StatusOK, success(map[string]any{"user_id": id, "is_messenger_reachable": true}))
}

// sweepHandler runs a re-engagement sweep on demand, for external cron.
func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.Sweep == nil {
		writeJSONResponse(w, http.StatusNotFound, errorResponse("Sweep not configured"))
		return
	}
	sent, err := s.opts.Sweep(r.Context())
	if err != nil {
		slog.Error("sweepHandler: sweep failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("Sweep failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, success(map[string]any{"sent": sent}))
}
