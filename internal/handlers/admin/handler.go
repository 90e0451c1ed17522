package admin

import (
	"database/sql"
	"net/http"
	"time"

	"smtparts/internal/audit"
	"smtparts/internal/auth"
	"smtparts/internal/server"
	"smtparts/internal/websocket"
)

// Handler holds dependencies for authentication, user management, the
// audit trail and database backups.
type Handler struct {
	DB         *sql.DB
	Hub        *websocket.Hub
	SessionTTL time.Duration
	BackupDir  string
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token so non-browser clients can send
// it as a Bearer header.
type LoginResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// UserFull is the admin view of a user.
type UserFull struct {
	ID          int64   `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	Role        string  `json:"role"`
	Active      int     `json:"active"`
	CreatedAt   string  `json:"created_at"`
	LastLogin   *string `json:"last_login"`
}

type CreateUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

type UpdateUserRequest struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Active      *int   `json:"active"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) ttl() time.Duration {
	if h.SessionTTL <= 0 {
		return 24 * time.Hour
	}
	return h.SessionTTL
}

// currentUserID reads the id RequireAuth put on the context, falling back
// to the session when the handler runs outside the middleware chain.
func (h *Handler) currentUserID(r *http.Request) int64 {
	if id, ok := r.Context().Value(server.CtxUserID).(int64); ok {
		return id
	}
	if sess, err := auth.LookupSession(h.DB, audit.SessionToken(r)); err == nil {
		return sess.UserID
	}
	return 0
}

func (h *Handler) username(r *http.Request) string {
	if u := server.Username(r.Context()); u != "" {
		return u
	}
	return audit.GetUsername(h.DB, r)
}

func (h *Handler) logAudit(r *http.Request, action string, id int64, summary string) {
	audit.LogAudit(h.DB, h.Hub, h.username(r), action, "users", id, summary)
}
