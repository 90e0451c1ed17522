package auth

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNoSession = errors.New("session not found or expired")

// Session is an authenticated session joined with its user.
type Session struct {
	Token       string
	UserID      int64
	Username    string
	DisplayName string
	Role        string
	Active      bool
	ExpiresAt   time.Time
}

// CreateSession issues a new random session token for userID.
func CreateSession(db *sql.DB, userID int64, ttl time.Duration) (string, time.Time, error) {
	token := uuid.NewString()
	expires := time.Now().UTC().Add(ttl)
	_, err := db.Exec("INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, expires.Format(timeLayout), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// LookupSession returns the live session for token.
func LookupSession(db *sql.DB, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	s := &Session{Token: token}
	var (
		active  int
		expires string
	)
	err := db.QueryRow(`SELECT s.user_id, u.username, COALESCE(u.display_name,''), u.role, u.active, s.expires_at
		FROM sessions s JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?`, token, time.Now().UTC().Format(timeLayout)).
		Scan(&s.UserID, &s.Username, &s.DisplayName, &s.Role, &active, &expires)
	if err == sql.ErrNoRows {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	s.Active = active != 0
	s.ExpiresAt, _ = parseTime(expires)
	return s, nil
}

// TouchSession slides the session expiry forward by ttl.
func TouchSession(db *sql.DB, token string, ttl time.Duration) (time.Time, error) {
	now := time.Now().UTC()
	expires := now.Add(ttl)
	_, err := db.Exec("UPDATE sessions SET expires_at = ?, last_activity = ? WHERE token = ?",
		expires.Format(timeLayout), now.Format(timeLayout), token)
	return expires, err
}

// DeleteSession ends a session.
func DeleteSession(db *sql.DB, token string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// PurgeExpiredSessions removes sessions past their expiry.
func PurgeExpiredSessions(db *sql.DB) (int64, error) {
	res, err := db.Exec("DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
