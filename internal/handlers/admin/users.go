package admin

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"smtparts/internal/audit"
	"smtparts/internal/auth"
	"smtparts/internal/response"
	"smtparts/internal/validation"
)

var validRoles = []string{auth.RoleAdmin, auth.RoleUser, auth.RoleReadonly}

const userSelect = `SELECT id, username, COALESCE(display_name,''), role, active, created_at, last_login FROM users`

func scanUser(row interface{ Scan(...interface{}) error }) (UserFull, error) {
	var u UserFull
	var lastLogin sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &u.Active, &u.CreatedAt, &lastLogin)
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.String
	}
	return u, err
}

// ListUsers handles GET /api/v1/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query(userSelect + " ORDER BY id")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	users := []UserFull{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		users = append(users, u)
	}
	response.JSON(w, users)
}

// CreateUser handles POST /api/v1/users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", 400)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Role == "" {
		req.Role = auth.RoleUser
	}

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", req.Username)
	validation.RequireField(ve, "password", req.Password)
	validation.ValidateMaxLength(ve, "username", req.Username, 100)
	validation.ValidateMaxLength(ve, "display_name", req.DisplayName, 255)
	validation.ValidateEnum(ve, "role", req.Role, validRoles)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		response.Err(w, "failed to hash password", 500)
		return
	}
	res, err := h.DB.Exec("INSERT INTO users (username, password_hash, display_name, role, active) VALUES (?, ?, ?, ?, 1)",
		req.Username, hash, req.DisplayName, req.Role)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			response.Err(w, "username already exists", 409)
			return
		}
		response.Err(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()
	h.logAudit(r, audit.ActionCreate, id, fmt.Sprintf("Created user %s (%s)", req.Username, req.Role))

	u, err := scanUser(h.DB.QueryRow(userSelect+" WHERE id = ?", id))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.Created(w, u)
}

// UpdateUser handles PUT /api/v1/users/{id}. Admins cannot demote or
// deactivate themselves.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request, id string) {
	uid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	existing, err := scanUser(h.DB.QueryRow(userSelect+" WHERE id = ?", uid))
	if err == sql.ErrNoRows {
		response.Err(w, "user not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	var req UpdateUserRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", 400)
		return
	}
	if req.Role == "" {
		req.Role = existing.Role
	}
	active := existing.Active
	if req.Active != nil {
		active = *req.Active
	}

	ve := &validation.ValidationErrors{}
	validation.ValidateMaxLength(ve, "display_name", req.DisplayName, 255)
	validation.ValidateEnum(ve, "role", req.Role, validRoles)
	validation.ValidateIntRange(ve, "active", active, 0, 1)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if uid == h.currentUserID(r) {
		if active == 0 {
			response.Err(w, "cannot deactivate yourself", 400)
			return
		}
		if req.Role != existing.Role {
			response.Err(w, "cannot change your own role", 400)
			return
		}
	}

	if _, err := h.DB.Exec("UPDATE users SET display_name = ?, role = ?, active = ? WHERE id = ?",
		req.DisplayName, req.Role, active, uid); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if active == 0 {
		h.DB.Exec("DELETE FROM sessions WHERE user_id = ?", uid)
	}
	h.logAudit(r, audit.ActionUpdate, uid, fmt.Sprintf("Updated user %s (%s, active=%d)", existing.Username, req.Role, active))

	u, err := scanUser(h.DB.QueryRow(userSelect+" WHERE id = ?", uid))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, u)
}
