package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"

	"smtparts/internal/api"
	"smtparts/internal/auth"
	"smtparts/internal/config"
	"smtparts/internal/server"
	"smtparts/internal/testutil"
	"smtparts/internal/websocket"
)

func newServer(t *testing.T) (*httptest.Server, *server.App) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := config.Defaults()
	cfg.BackupDir = t.TempDir()
	app := server.NewApp(db, websocket.NewHub(), cfg)
	srv := httptest.NewServer(api.NewRouter(app))
	t.Cleanup(srv.Close)
	return srv, app
}

func do(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func loginToken(t *testing.T, base, user, pass string) string {
	t.Helper()
	resp := do(t, "POST", base+"/auth/login", "", map[string]string{"username": user, "password": pass})
	if resp.StatusCode != 200 {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var env struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&env)
	return env.Data.Token
}

func TestRouterAuth(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, "GET", srv.URL+"/api/v1/products", "", nil)
	if resp.StatusCode != 401 {
		t.Errorf("anonymous status = %d", resp.StatusCode)
	}

	tok := loginToken(t, srv.URL, "admin", "password")
	resp = do(t, "GET", srv.URL+"/api/v1/products", tok, nil)
	if resp.StatusCode != 200 {
		t.Errorf("authed status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	resp = do(t, "GET", srv.URL+"/auth/me", tok, nil)
	if resp.StatusCode != 200 {
		t.Errorf("me status = %d", resp.StatusCode)
	}
	do(t, "POST", srv.URL+"/auth/logout", tok, nil)
	resp = do(t, "GET", srv.URL+"/api/v1/products", tok, nil)
	if resp.StatusCode != 401 {
		t.Errorf("after logout status = %d", resp.StatusCode)
	}
}

func TestRouterRBAC(t *testing.T) {
	srv, app := newServer(t)
	hash, _ := auth.HashPassword("Viewer-2026!")
	app.DB.Exec("INSERT INTO users (username, password_hash, role) VALUES ('viewer', ?, 'readonly')", hash)
	tok := loginToken(t, srv.URL, "viewer", "Viewer-2026!")

	if resp := do(t, "GET", srv.URL+"/api/v1/suppliers", tok, nil); resp.StatusCode != 200 {
		t.Errorf("readonly GET = %d", resp.StatusCode)
	}
	if resp := do(t, "POST", srv.URL+"/api/v1/suppliers", tok, map[string]string{"name": "Topsmt"}); resp.StatusCode != 403 {
		t.Errorf("readonly POST = %d", resp.StatusCode)
	}
	if resp := do(t, "GET", srv.URL+"/api/v1/users", tok, nil); resp.StatusCode != 403 {
		t.Errorf("readonly users = %d", resp.StatusCode)
	}
}

func TestRouterRoutes(t *testing.T) {
	srv, _ := newServer(t)
	tok := loginToken(t, srv.URL, "admin", "password")

	resp := do(t, "POST", srv.URL+"/api/v1/products", tok, map[string]interface{}{"code": "FDR-8", "name": "Feeder 8mm", "stock": 4})
	if resp.StatusCode != 201 {
		t.Fatalf("create product = %d", resp.StatusCode)
	}
	resp = do(t, "PATCH", srv.URL+"/api/v1/products/1", tok, map[string]interface{}{"stock": nil})
	if resp.StatusCode != 200 {
		t.Errorf("patch product = %d", resp.StatusCode)
	}
	resp = do(t, "GET", srv.URL+"/api/v1/products/categories", tok, nil)
	if resp.StatusCode != 200 {
		t.Errorf("categories = %d", resp.StatusCode)
	}
	resp = do(t, "GET", srv.URL+"/api/v1/deals/board", tok, nil)
	if resp.StatusCode != 200 {
		t.Errorf("board = %d", resp.StatusCode)
	}
	resp = do(t, "GET", srv.URL+"/api/v1/dashboard", tok, nil)
	if resp.StatusCode != 200 {
		t.Errorf("dashboard = %d", resp.StatusCode)
	}

	resp = do(t, "GET", srv.URL+"/api/v1/nothing", tok, nil)
	if resp.StatusCode != 404 {
		t.Errorf("unknown route = %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "not found" {
		t.Errorf("404 body = %v", body)
	}

	resp = do(t, "GET", srv.URL+"/healthz", "", nil)
	if resp.StatusCode != 200 {
		t.Errorf("healthz = %d", resp.StatusCode)
	}
}

func TestRouterWebSocket(t *testing.T) {
	srv, _ := newServer(t)
	tok := loginToken(t, srv.URL, "admin", "password")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	if _, _, err := ws.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("anonymous websocket should be refused")
	}
	header := http.Header{"Authorization": {"Bearer " + tok}}
	conn, _, err := ws.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// the hub registers the connection after the upgrade completes
	time.Sleep(50 * time.Millisecond)
	do(t, "POST", srv.URL+"/api/v1/suppliers", tok, map[string]string{"name": "Topsmt"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt websocket.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if evt.Resource != "suppliers" || evt.Action != "create" {
		t.Errorf("event = %+v", evt)
	}
}
