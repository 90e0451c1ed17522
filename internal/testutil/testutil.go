package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"smtparts/internal/audit"
	"smtparts/internal/database"
	"smtparts/internal/models"
)

// SetupTestDB creates an in-memory SQLite database with the full schema
// and an admin user. The database is closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return setup(t, ":memory:")
}

// SetupFileDB is SetupTestDB backed by a WAL file in a temp dir, for
// tests that need the real connection pool.
func SetupFileDB(t *testing.T) *sql.DB {
	t.Helper()
	return setup(t, filepath.Join(t.TempDir(), "test.db"))
}

func setup(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if _, err := db.Exec("INSERT INTO users (username, password_hash, display_name, role) VALUES ('admin', ?, 'Admin', 'admin')", string(hash)); err != nil {
		t.Fatalf("Failed to create admin user: %v", err)
	}
	return db
}

// CreateTestSession creates a session token for the given user with a 24h expiry.
func CreateTestSession(t *testing.T, db *sql.DB, userID int) string {
	t.Helper()
	token := "test-session-" + time.Now().Format("20060102150405.000000000")
	expiresAt := time.Now().UTC().Add(24 * time.Hour)
	if _, err := db.Exec("INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, expiresAt.Format("2006-01-02 15:04:05")); err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}
	return token
}

// LoginAdmin returns a session token for the admin user.
func LoginAdmin(t *testing.T, db *sql.DB) string {
	t.Helper()
	var adminID int
	if err := db.QueryRow("SELECT id FROM users WHERE username = 'admin'").Scan(&adminID); err != nil {
		t.Fatalf("Failed to find admin user: %v", err)
	}
	return CreateTestSession(t, db, adminID)
}

// AuthedRequest creates an HTTP request carrying the session cookie.
func AuthedRequest(method, path string, body []byte, sessionToken string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: audit.SessionCookie, Value: sessionToken})
	}
	return req
}

// AuthedJSONRequest marshals body and creates an authenticated request.
func AuthedJSONRequest(method, path string, body interface{}, sessionToken string) *http.Request {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	return AuthedRequest(method, path, b, sessionToken)
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Fatalf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data into v.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) *models.Meta {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
	return resp.Meta
}

// ErrorMessage extracts the "error" field from an error response.
func ErrorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", w.Body.String(), err)
	}
	return body["error"]
}

// InsertSupplier inserts a supplier row and returns its id.
func InsertSupplier(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO suppliers (name) VALUES (?)", name)
	if err != nil {
		t.Fatalf("insert supplier: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// InsertCustomer inserts a customer row and returns its id.
func InsertCustomer(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO customers (name) VALUES (?)", name)
	if err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// InsertProduct inserts a product with stock and sale price and returns its id.
func InsertProduct(t *testing.T, db *sql.DB, code, name string, stock, salePrice float64) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO products (code, name, stock, sale_price) VALUES (?, ?, ?, ?)", code, name, stock, salePrice)
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}
