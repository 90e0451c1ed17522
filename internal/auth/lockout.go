package auth

import (
	"database/sql"
	"time"
)

const (
	MaxFailedLoginAttempts = 5
	AccountLockoutDuration = 15 * time.Minute
)

// IncrementFailedLoginAttempts bumps the failure counter and locks the
// account once it reaches MaxFailedLoginAttempts.
func IncrementFailedLoginAttempts(db *sql.DB, username string) error {
	_, err := db.Exec(`
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= ? THEN ?
		        ELSE locked_until
		    END
		WHERE username = ?`, MaxFailedLoginAttempts,
		time.Now().UTC().Add(AccountLockoutDuration).Format(timeLayout), username)
	return err
}

// ResetFailedLoginAttempts clears the counter after a successful login.
func ResetFailedLoginAttempts(db *sql.DB, username string) error {
	_, err := db.Exec(`
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL
		WHERE username = ?`, username)
	return err
}

// IsAccountLocked reports whether the account is inside a lockout window.
// An expired lock is cleared on the way out.
func IsAccountLocked(db *sql.DB, username string) (bool, error) {
	var lockedUntil sql.NullString
	err := db.QueryRow("SELECT locked_until FROM users WHERE username = ?", username).Scan(&lockedUntil)
	if err != nil {
		return false, err
	}
	if !lockedUntil.Valid || lockedUntil.String == "" {
		return false, nil
	}

	lockTime, ok := parseTime(lockedUntil.String)
	if !ok {
		return false, nil
	}
	if time.Now().UTC().Before(lockTime) {
		return true, nil
	}
	ResetFailedLoginAttempts(db, username)
	return false, nil
}

const timeLayout = "2006-01-02 15:04:05"

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{timeLayout, time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
