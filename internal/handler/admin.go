package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-chi/chi/v5"
	appI18n "github.com/pavelanni/exambank/internal/i18n"
	"github.com/pavelanni/exambank/internal/model"
)

// MinPasswordLength is the shortest password accepted for new accounts.
const MinPasswordLength = 8

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", "")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	ExternalID  string         `json:"external_id"`
	Password    string         `json:"password"`
	Role        model.UserRole `json:"role"`
}

func validRole(role model.UserRole) bool {
	switch role {
	case model.UserRoleStudent, model.UserRoleTeacher, model.UserRoleAdmin:
		return true
	}
	return false
}

func (h *Handler) writePasswordTooShort(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Code:    "ErrPasswordTooShort",
		Message: appI18n.Td(r.Context(), "ErrPasswordTooShort", map[string]any{"Min": MinPasswordLength}),
	})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest", "username is required")
		return
	}
	if len(req.Password) < MinPasswordLength {
		h.writePasswordTooShort(w, r)
		return
	}
	if req.Role == "" {
		req.Role = model.UserRoleStudent
	}
	if !validRole(req.Role) {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest", "unknown role "+string(req.Role))
		return
	}

	existing, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		slog.Error("failed to look up user", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", "")
		return
	}
	if existing != nil {
		writeError(w, r, http.StatusConflict, "ErrUsernameTaken", "")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", "")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		ExternalID:   req.ExternalID,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", "")
		return
	}
	u, err := h.store.GetUserByID(id)
	if err != nil || u == nil {
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", "")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func userIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	return id, err == nil
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest", "invalid user id")
		return
	}
	if me := model.UserFromContext(r.Context()); me != nil && me.ID == id {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest", "cannot deactivate yourself")
		return
	}
	u, err := h.store.GetUserByID(id)
	if err != nil || u == nil {
		writeError(w, r, http.StatusNotFound, "ErrNotFound", "")
		return
	}
	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", "")
		return
	}
	u.Active = !u.Active
	writeJSON(w, http.StatusOK, u)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest", "invalid user id")
		return
	}
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Password) < MinPasswordLength {
		h.writePasswordTooShort(w, r)
		return
	}
	u, err := h.store.GetUserByID(id)
	if err != nil || u == nil {
		writeError(w, r, http.StatusNotFound, "ErrNotFound", "")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", "")
		return
	}
	if err := h.store.SetUserPassword(id, string(hash)); err != nil {
		slog.Error("failed to set password", "id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", "")
		return
	}
	if err := h.store.DeleteUserAuthSessions(id); err != nil {
		slog.Error("failed to drop sessions", "id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
