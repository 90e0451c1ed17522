package admin

import (
	"errors"
	"net/http"
	"time"

	"smtparts/internal/audit"
	"smtparts/internal/auth"
	"smtparts/internal/response"
)

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     audit.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", 400)
		return
	}
	if req.Username == "" || req.Password == "" {
		response.Err(w, "username and password are required", 400)
		return
	}

	id, role, err := auth.Authenticate(h.DB, req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		response.Err(w, err.Error(), 401)
		return
	case errors.Is(err, auth.ErrAccountLocked), errors.Is(err, auth.ErrInactive):
		response.Err(w, err.Error(), 403)
		return
	case err != nil:
		response.Err(w, err.Error(), 500)
		return
	}

	auth.PurgeExpiredSessions(h.DB)
	token, expires, err := auth.CreateSession(h.DB, id, h.ttl())
	if err != nil {
		response.Err(w, "failed to create session", 500)
		return
	}
	h.setSessionCookie(w, token, expires)

	var displayName string
	h.DB.QueryRow("SELECT COALESCE(display_name,'') FROM users WHERE id = ?", id).Scan(&displayName)
	audit.LogAudit(h.DB, nil, req.Username, audit.ActionLogin, "users", id, "Signed in")

	response.JSON(w, LoginResponse{
		User:      UserResponse{ID: id, Username: req.Username, DisplayName: displayName, Role: role},
		Token:     token,
		ExpiresAt: expires.Format(time.RFC3339),
	})
}

// Logout handles POST /auth/logout. It succeeds without a session too.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := audit.SessionToken(r); token != "" {
		if sess, err := auth.LookupSession(h.DB, token); err == nil {
			audit.LogAudit(h.DB, nil, sess.Username, audit.ActionLogout, "users", sess.UserID, "Signed out")
		}
		auth.DeleteSession(h.DB, token)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     audit.SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	response.JSON(w, map[string]string{"status": "logged out"})
}

// Me handles GET /auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sess, err := auth.LookupSession(h.DB, audit.SessionToken(r))
	if errors.Is(err, auth.ErrNoSession) {
		response.Err(w, "not authenticated", 401)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if !sess.Active {
		response.Err(w, auth.ErrInactive.Error(), 403)
		return
	}
	response.JSON(w, map[string]interface{}{
		"user": UserResponse{
			ID:          sess.UserID,
			Username:    sess.Username,
			DisplayName: sess.DisplayName,
			Role:        sess.Role,
		},
		"expires_at": sess.ExpiresAt.Format(time.RFC3339),
	})
}

// ChangePassword handles PUT /auth/password for the signed-in user.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	token := audit.SessionToken(r)
	sess, err := auth.LookupSession(h.DB, token)
	if err != nil {
		response.Err(w, "not authenticated", 401)
		return
	}
	uid := sess.UserID
	var req ChangePasswordRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", 400)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		response.Err(w, "current_password and new_password are required", 400)
		return
	}
	if req.CurrentPassword == req.NewPassword {
		response.Err(w, "new password must differ from the current one", 400)
		return
	}
	err = auth.ChangePassword(h.DB, uid, req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		response.Err(w, "current password is incorrect", 401)
		return
	case err != nil:
		response.Err(w, err.Error(), 400)
		return
	}

	// other sessions of this user end; the current one stays
	h.DB.Exec("DELETE FROM sessions WHERE user_id = ? AND token != ?", uid, token)
	audit.LogAudit(h.DB, h.Hub, sess.Username, audit.ActionUpdate, "users", uid, "Changed password")
	response.JSON(w, map[string]string{"status": "password changed"})
}
