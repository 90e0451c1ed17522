package server_test

import (
	"compress/gzip"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smtparts/internal/audit"
	"smtparts/internal/server"
	"smtparts/internal/testutil"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "user="+server.Username(r.Context()))
	})
}

func insertUser(t *testing.T, db *sql.DB, username, role string, active int) int {
	t.Helper()
	res, err := db.Exec("INSERT INTO users (username, password_hash, role, active) VALUES (?, 'x', ?, ?)", username, role, active)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

func TestGzipMiddleware(t *testing.T) {
	handler := server.GzipMiddleware(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatal("Expected Content-Encoding: gzip")
	}
	gr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("Failed to create gzip reader: %v", err)
	}
	defer gr.Close()
	body, _ := io.ReadAll(gr)
	if string(body) != "user=" {
		t.Errorf("body = %q", body)
	}

	// websocket upgrades must reach the handler uncompressed
	req = httptest.NewRequest("GET", "/api/v1/ws", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Upgrade", "websocket")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "" {
		t.Error("upgrade request was compressed")
	}
}

func TestRequireAuth(t *testing.T) {
	db := testutil.SetupTestDB(t)
	handler := server.RequireAuth(db, time.Hour)(okHandler())
	token := testutil.LoginAdmin(t, db)

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
		body   string
	}{
		{"public path", func() *http.Request { return httptest.NewRequest("GET", "/healthz", nil) }, 200, "user="},
		{"no token", func() *http.Request { return httptest.NewRequest("GET", "/api/v1/products", nil) }, 401, ""},
		{"unknown token", func() *http.Request { return testutil.AuthedRequest("GET", "/api/v1/products", nil, "nope") }, 401, ""},
		{"cookie", func() *http.Request { return testutil.AuthedRequest("GET", "/api/v1/products", nil, token) }, 200, "user=admin"},
		{"bearer", func() *http.Request {
			r := httptest.NewRequest("GET", "/api/v1/products", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			return r
		}, 200, "user=admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, tt.req())
			testutil.AssertStatus(t, w, tt.status)
			if tt.body != "" && w.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.body)
			}
		})
	}

	// a cookie session is refreshed on every request
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, testutil.AuthedRequest("GET", "/api/v1/products", nil, token))
	var refreshed bool
	for _, c := range w.Result().Cookies() {
		if c.Name == audit.SessionCookie && c.Value == token && c.HttpOnly {
			refreshed = true
		}
	}
	if !refreshed {
		t.Error("session cookie not refreshed")
	}
}

func TestRequireAuthInactive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	uid := insertUser(t, db, "former", "user", 0)
	token := testutil.CreateTestSession(t, db, uid)

	w := httptest.NewRecorder()
	server.RequireAuth(db, time.Hour)(okHandler()).ServeHTTP(w, testutil.AuthedRequest("GET", "/api/v1/products", nil, token))
	testutil.AssertStatus(t, w, http.StatusForbidden)
	if msg := testutil.ErrorMessage(t, w); msg != "Account deactivated" {
		t.Errorf("message = %q", msg)
	}
}

func TestRequireRBAC(t *testing.T) {
	db := testutil.SetupTestDB(t)
	handler := server.RequireAuth(db, time.Hour)(server.RequireRBAC(okHandler()))
	admin := testutil.LoginAdmin(t, db)
	staff := testutil.CreateTestSession(t, db, insertUser(t, db, "sales", "user", 1))
	viewer := testutil.CreateTestSession(t, db, insertUser(t, db, "viewer", "readonly", 1))

	tests := []struct {
		token  string
		method string
		path   string
		status int
	}{
		{viewer, "GET", "/api/v1/products", 200},
		{viewer, "POST", "/api/v1/products", 403},
		{viewer, "PATCH", "/api/v1/products/1", 403},
		{viewer, "GET", "/api/v1/users", 403},
		{staff, "POST", "/api/v1/quotations", 200},
		{staff, "DELETE", "/api/v1/customers/3", 200},
		{staff, "GET", "/api/v1/audit", 403},
		{staff, "POST", "/api/v1/backups", 403},
		{admin, "POST", "/api/v1/backups", 200},
		{admin, "PUT", "/api/v1/users/2", 200},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, testutil.AuthedRequest(tt.method, tt.path, nil, tt.token))
		if w.Code != tt.status {
			t.Errorf("%s %s: status %d, want %d", tt.method, tt.path, w.Code, tt.status)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := server.NewRateLimiter()
	handler := server.RateLimitMiddleware(rl, 2)(okHandler())

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = "10.0.0.7:5123"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		testutil.AssertStatus(t, do("/api/v1/products"), http.StatusOK)
	}
	w := do("/api/v1/products")
	testutil.AssertStatus(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("headers = %v", w.Header())
	}
	testutil.AssertStatus(t, do("/healthz"), http.StatusOK)

	for i := 0; i < 10; i++ {
		testutil.AssertStatus(t, do("/auth/login"), http.StatusOK)
	}
	testutil.AssertStatus(t, do("/auth/login"), http.StatusTooManyRequests)

	rl.Reset()
	testutil.AssertStatus(t, do("/api/v1/products"), http.StatusOK)
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	handler := server.LoggingMiddleware("http://localhost:5173")(server.SecurityHeaders(okHandler()))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	for k, v := range map[string]string{
		"X-Frame-Options":                  "DENY",
		"X-Content-Type-Options":           "nosniff",
		"Access-Control-Allow-Origin":      "http://localhost:5173",
		"Access-Control-Allow-Credentials": "true",
	} {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/v1/products", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	if w.Body.Len() != 0 {
		t.Errorf("preflight reached the handler: %q", w.Body.String())
	}
}
