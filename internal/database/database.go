package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens the SQLite database at path and runs migrations.
// Use ":memory:" for a throwaway database.
func Open(path string) (*sql.DB, error) {
	if path == ":memory:" {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
		return migrated(db)
	}

	db, err := sql.Open("sqlite", fileDSN(path))
	if err != nil {
		return nil, err
	}
	// SQLite can handle 1 writer + multiple readers with WAL mode
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !strings.EqualFold(mode, "wal") {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: journal_mode is %s", mode)
	}
	return migrated(db)
}

// fileDSN carries the connection pragmas in the DSN so the driver applies
// them to every pooled connection, not only the first one. Transactions
// begin IMMEDIATE: a read-then-write transaction takes the write lock up
// front and waits out busy_timeout instead of failing on upgrade.
func fileDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
}

func migrated(db *sql.DB) (*sql.DB, error) {
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates all tables and indexes. It is idempotent.
func Migrate(db *sql.DB) error {
	for _, t := range tables {
		if _, err := db.Exec(t.ddl); err != nil {
			return fmt.Errorf("%s migration: %w", t.name, err)
		}
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("index migration: %w", err)
		}
	}
	return nil
}

// NextCode generates the next document code PREFIX-YYYY-NNNN for a table
// with a code column.
func NextCode(db *sql.DB, prefix, table string) string {
	return nextCode(db, prefix, table)
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func nextCode(db queryRower, prefix, table string) string {
	year := time.Now().Format("2006")
	pattern := prefix + "-" + year + "-%"
	var maxCode sql.NullString
	db.QueryRow("SELECT code FROM "+table+" WHERE code LIKE ? ORDER BY code DESC LIMIT 1", pattern).Scan(&maxCode)

	next := 1
	if maxCode.Valid {
		parts := strings.Split(maxCode.String, "-")
		if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, year, next)
}

// Now returns the timestamp format stored in DATETIME columns.
func Now() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// NullFloat converts an optional number for storage.
func NullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// FloatPtr converts a scanned nullable number back to a pointer.
func FloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// NullInt converts an optional identifier for storage.
func NullInt(v *int64) sql.NullInt64 {
	if v == nil || *v <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// IntPtr converts a scanned nullable identifier back to a pointer.
func IntPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}
