package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"stockwatch/internal/audit"
	"stockwatch/internal/auth"
	"stockwatch/internal/response"
	"stockwatch/internal/server"
)

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin authenticates a manager and sets the session cookie. The
// token is also returned for API clients that send it as a Bearer header.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	sess, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		response.Err(w, "Invalid username or password", http.StatusUnauthorized)
		return
	case errors.Is(err, auth.ErrAccountLocked), errors.Is(err, auth.ErrAccountDisabled):
		response.Err(w, err.Error(), http.StatusForbidden)
		return
	case err != nil:
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     server.SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	audit.Log(h.DB, h.Hub, audit.Entry{
		Username: sess.User.Username, Action: audit.ActionLogin, Module: "auth",
		RecordID: strconv.Itoa(sess.User.ID), Summary: "Logged in", IPAddress: audit.GetClientIP(r),
	})
	response.JSON(w, map[string]any{"user": sess.User, "token": sess.Token, "expires_at": sess.ExpiresAt})
}

// HandleLogout deletes the session and clears the cookie.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(server.SessionCookie); err == nil {
		h.Auth.Logout(r.Context(), c.Value)
	}
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		h.Auth.Logout(r.Context(), tok)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     server.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	if u := server.Username(r.Context()); u != "system" {
		audit.LogAudit(h.DB, h.Hub, u, audit.ActionLogout, "auth", "", "Logged out")
	}
	response.JSON(w, map[string]string{"status": "ok"})
}

// HandleMe returns the current user's info.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(server.CtxUserID).(int)
	response.JSON(w, map[string]any{
		"id":       id,
		"username": server.Username(r.Context()),
		"role":     server.Role(r.Context()),
		"pro":      server.Features(r).Pro,
	})
}

// CreateUserRequest represents a user creation request.
type CreateUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

// ListUsers handles GET /api/v1/admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Auth.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, users)
}

// CreateUser handles POST /api/v1/admin/users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleViewer
	}
	u, err := h.Auth.CreateUser(r.Context(), strings.TrimSpace(req.Username), req.Password, req.DisplayName, req.Role)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			response.Err(w, "username already exists", http.StatusConflict)
			return
		}
		response.Err(w, err.Error(), http.StatusBadRequest)
		return
	}
	audit.LogAudit(h.DB, h.Hub, server.Username(r.Context()), audit.ActionCreate, "user", strconv.Itoa(u.ID), "Created user "+u.Username+" ("+u.Role+")")
	response.Created(w, u)
}
