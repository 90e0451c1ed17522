package audit

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"smtparts/internal/models"
	"smtparts/internal/websocket"
)

// Action constants.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionExport = "export"
	ActionImport = "import"
	ActionLogin  = "login"
	ActionLogout = "logout"
)

// SessionCookie is the cookie that carries the session token.
const SessionCookie = "smt_session"

// LogAudit writes an audit row and broadcasts the change on the hub.
// module is the REST collection name so clients can invalidate by it.
func LogAudit(db *sql.DB, hub *websocket.Hub, username, action, module string, recordID int64, summary string) {
	id := strconv.FormatInt(recordID, 10)
	_, err := db.Exec("INSERT INTO audit_log (username, action, module, record_id, summary) VALUES (?, ?, ?, ?, ?)",
		username, action, module, id, summary)
	if err != nil {
		log.Printf("audit log error: %v", err)
	}
	if hub != nil {
		hub.BroadcastChange(module, action, recordID)
	}
}

// SessionToken extracts the session token from the cookie or a Bearer header.
func SessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	return ""
}

// GetUsername resolves the session user, or "system" when unauthenticated.
func GetUsername(db *sql.DB, r *http.Request) string {
	token := SessionToken(r)
	if token == "" {
		return "system"
	}
	var username string
	err := db.QueryRow("SELECT u.username FROM users u JOIN sessions s ON u.id = s.user_id WHERE s.token = ?", token).Scan(&username)
	if err != nil {
		return "system"
	}
	return username
}

// List returns recent audit entries, optionally filtered by module.
func List(db *sql.DB, module string, limit int) ([]models.AuditEntry, error) {
	query := "SELECT id, username, action, module, record_id, COALESCE(summary,''), created_at FROM audit_log"
	var args []interface{}
	if module != "" {
		query += " WHERE module = ?"
		args = append(args, module)
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
