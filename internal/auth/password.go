package auth

import (
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadCredentials = errors.New("invalid username or password")
	ErrAccountLocked  = errors.New("account locked due to too many failed login attempts, try again later")
	ErrInactive       = errors.New("account deactivated")
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate checks a username/password pair, maintaining the lockout
// counters. It returns the user id and role on success.
func Authenticate(db *sql.DB, username, password string) (int64, string, error) {
	var (
		id     int64
		hash   string
		role   string
		active int
	)
	err := db.QueryRow("SELECT id, password_hash, role, active FROM users WHERE username = ?", username).
		Scan(&id, &hash, &role, &active)
	if err == sql.ErrNoRows {
		return 0, "", ErrBadCredentials
	}
	if err != nil {
		return 0, "", err
	}

	locked, err := IsAccountLocked(db, username)
	if err != nil {
		return 0, "", err
	}
	if locked {
		return 0, "", ErrAccountLocked
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		IncrementFailedLoginAttempts(db, username)
		return 0, "", ErrBadCredentials
	}
	if active == 0 {
		return 0, "", ErrInactive
	}
	ResetFailedLoginAttempts(db, username)
	db.Exec("UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = ?", id)
	return id, role, nil
}

// ChangePassword verifies the current password and stores a new one.
func ChangePassword(db *sql.DB, userID int64, current, next string) error {
	var hash string
	if err := db.QueryRow("SELECT password_hash FROM users WHERE id = ?", userID).Scan(&hash); err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)) != nil {
		return ErrBadCredentials
	}
	if err := ValidatePasswordStrength(next); err != nil {
		return err
	}
	newHash, err := HashPassword(next)
	if err != nil {
		return err
	}
	_, err = db.Exec("UPDATE users SET password_hash = ? WHERE id = ?", newHash, userID)
	return err
}
