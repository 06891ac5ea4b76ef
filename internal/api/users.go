package api

import (
	"log/slog"
	"net/http"

	"github.com/parleylabs/parley/internal/identity"
)

// HandleCreateUser handles POST /api/users. Identity middleware has already
// provisioned the user, so this is an idempotent fetch of the caller's own
// record.
func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	h.writeCurrentUser(w, r)
}

// HandleMe handles GET /api/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	h.writeCurrentUser(w, r)
}

func (h *Handler) writeCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load user", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if user == nil {
		Error(w, http.StatusNotFound, "user not found")
		return
	}
	JSON(w, http.StatusOK, user)
}
