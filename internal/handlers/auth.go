package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"inventory/internal/auth"
	"inventory/internal/db"
	"inventory/internal/middleware"
	"inventory/internal/security"
	"inventory/internal/validator"

	"github.com/jmoiron/sqlx"
)

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// Register creates the user, grants the starting balance and makes the very
// first user a super admin, all in one transaction.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(r, &req) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validator.ValidateUsername(req.Username); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidateEmail(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidatePassword(req.Password); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to secure password")
		return
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = req.Username
	}
	var userID int64
	err = h.TxRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		userID, err = h.Users.Create(r.Context(), tx, req.Username, req.Email, displayName, passwordHash)
		if err != nil {
			return err
		}
		if _, err := h.Currencies.InitializeForNewUserWithin(r.Context(), tx, userID); err != nil {
			return err
		}
		hasAdmin, err := h.Admin.HasAnyAdmin(r.Context(), tx)
		if err != nil {
			return err
		}
		if !hasAdmin {
			return h.Admin.CreateAdmin(r.Context(), tx, userID, true, nil)
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			respondError(w, http.StatusConflict, "username or email already exists")
			return
		}
		respondServiceError(w, err)
		return
	}
	h.Security.LogSecurityEvent(r.Context(), security.Event{
		UserID:     userID,
		Action:     "register",
		ObjectType: "user",
		ObjectID:   fmt.Sprint(userID),
	})
	token, err := auth.GenerateToken(h.cfg.JWTSecret, userID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":    userID,
		"token": token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(r, &req) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	user, err := h.Users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.Security.LogSecurityEvent(r.Context(), security.Event{
			UserID:     user.ID,
			Action:     "login_failed",
			ObjectType: "user",
			ObjectID:   fmt.Sprint(user.ID),
			Severity:   "warning",
		})
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if user.IsBlocked {
		respondError(w, http.StatusForbidden, "user_blocked")
		return
	}
	h.Security.LogSecurityEvent(r.Context(), security.Event{
		UserID:     user.ID,
		Action:     "login",
		ObjectType: "user",
		ObjectID:   fmt.Sprint(user.ID),
	})
	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"token": token,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.Users.GetByID(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load user")
		return
	}
	isAdmin, isSuper, err := h.Admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":             user.ID,
		"username":       user.Username,
		"email":          user.Email,
		"display_name":   user.DisplayName,
		"is_admin":       isAdmin,
		"is_super_admin": isSuper,
		"created_at":     user.CreatedAt,
	})
}
