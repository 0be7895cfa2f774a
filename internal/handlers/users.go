package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"inventory/internal/middleware"
	"inventory/internal/security"

	"github.com/go-chi/chi/v5"
)

// GetUserByUsername returns the public profile used to address trades.
func (h *Handler) GetUserByUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	user, err := h.Users.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": user.DisplayName,
	})
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, _ := pageParams(r)
	rows, err := h.Notifications.ListByUser(r.Context(), userID, r.URL.Query().Get("unread") == "true", limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load notifications")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	rows, err := h.Notifications.MarkRead(r.Context(), userID, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update notification")
		return
	}
	if rows == 0 {
		respondError(w, http.StatusNotFound, "not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type blockRequest struct {
	Blocked bool `json:"blocked"`
}

func (h *Handler) SetUserBlocked(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.UserIDFromContext(r.Context())
	targetID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req blockRequest
	if !decodeJSON(r, &req) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	rows, err := h.Users.SetBlocked(r.Context(), targetID, req.Blocked)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update user")
		return
	}
	if rows == 0 {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	h.Security.LogSecurityEvent(r.Context(), security.Event{
		UserID:     actorID,
		Action:     "user_block_changed",
		ObjectType: "user",
		ObjectID:   fmt.Sprint(targetID),
		Details:    map[string]any{"blocked": req.Blocked},
		Severity:   "warning",
	})
	respondJSON(w, http.StatusOK, map[string]any{"id": targetID, "blocked": req.Blocked})
}
