package admin_test

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"smtparts/internal/audit"
	"smtparts/internal/auth"
	"smtparts/internal/handlers/admin"
	"smtparts/internal/models"
	"smtparts/internal/testutil"
)

func newTestHandler(t *testing.T) (*admin.Handler, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return &admin.Handler{DB: db, SessionTTL: time.Hour, BackupDir: t.TempDir()}, db
}

func login(t *testing.T, h *admin.Handler, user, pass string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.Login(w, testutil.AuthedJSONRequest("POST", "/auth/login", admin.LoginRequest{Username: user, Password: pass}, ""))
	return w
}

func TestLogin(t *testing.T) {
	h, db := newTestHandler(t)

	w := login(t, h, "admin", "password")
	testutil.AssertStatus(t, w, 200)
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == audit.SessionCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("session cookie = %+v", cookie)
	}
	var resp admin.LoginResponse
	testutil.DecodeEnvelope(t, w, &resp)
	if resp.Token != cookie.Value || resp.User.Username != "admin" || resp.User.Role != "admin" {
		t.Errorf("login response = %+v", resp)
	}
	if _, err := auth.LookupSession(db, resp.Token); err != nil {
		t.Errorf("session not stored: %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	h, db := newTestHandler(t)

	w := login(t, h, "admin", "wrong")
	testutil.AssertStatus(t, w, 401)
	if msg := testutil.ErrorMessage(t, w); msg != auth.ErrBadCredentials.Error() {
		t.Errorf("message = %q", msg)
	}
	testutil.AssertStatus(t, login(t, h, "nobody", "x"), 401)
	testutil.AssertStatus(t, login(t, h, "", ""), 400)

	db.Exec("UPDATE users SET active = 0 WHERE username = 'admin'")
	testutil.AssertStatus(t, login(t, h, "admin", "password"), 403)
}

func TestLoginLockout(t *testing.T) {
	h, _ := newTestHandler(t)
	for i := 0; i < 5; i++ {
		login(t, h, "admin", "wrong")
	}
	w := login(t, h, "admin", "password")
	testutil.AssertStatus(t, w, 403)
	if msg := testutil.ErrorMessage(t, w); !strings.Contains(msg, "locked") {
		t.Errorf("message = %q", msg)
	}
}

func TestMeAndLogout(t *testing.T) {
	h, db := newTestHandler(t)
	tok := testutil.LoginAdmin(t, db)

	w := httptest.NewRecorder()
	h.Me(w, testutil.AuthedRequest("GET", "/auth/me", nil, tok))
	testutil.AssertStatus(t, w, 200)
	var me struct {
		User admin.UserResponse `json:"user"`
	}
	testutil.DecodeEnvelope(t, w, &me)
	if me.User.Username != "admin" {
		t.Errorf("me = %+v", me)
	}

	w = httptest.NewRecorder()
	h.Logout(w, testutil.AuthedRequest("POST", "/auth/logout", nil, tok))
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.Me(w, testutil.AuthedRequest("GET", "/auth/me", nil, tok))
	testutil.AssertStatus(t, w, 401)

	// bearer header works the same as the cookie
	tok = testutil.LoginAdmin(t, db)
	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	h.Me(w, req)
	testutil.AssertStatus(t, w, 200)
}

func TestChangePassword(t *testing.T) {
	h, db := newTestHandler(t)
	tok := testutil.LoginAdmin(t, db)
	other := testutil.LoginAdmin(t, db)

	w := httptest.NewRecorder()
	h.ChangePassword(w, testutil.AuthedJSONRequest("PUT", "/auth/password",
		admin.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "Feeder-8mm-2026"}, tok))
	testutil.AssertStatus(t, w, 401)

	w = httptest.NewRecorder()
	h.ChangePassword(w, testutil.AuthedJSONRequest("PUT", "/auth/password",
		admin.ChangePasswordRequest{CurrentPassword: "password", NewPassword: "short"}, tok))
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.ChangePassword(w, testutil.AuthedJSONRequest("PUT", "/auth/password",
		admin.ChangePasswordRequest{CurrentPassword: "password", NewPassword: "Feeder-8mm-2026"}, tok))
	testutil.AssertStatus(t, w, 200)

	if _, err := auth.LookupSession(db, other); err != auth.ErrNoSession {
		t.Errorf("other session survived: %v", err)
	}
	if _, err := auth.LookupSession(db, tok); err != nil {
		t.Errorf("current session ended: %v", err)
	}
	testutil.AssertStatus(t, login(t, h, "admin", "Feeder-8mm-2026"), 200)
}

func TestUsersCRUD(t *testing.T) {
	h, db := newTestHandler(t)
	tok := testutil.LoginAdmin(t, db)

	w := httptest.NewRecorder()
	h.CreateUser(w, testutil.AuthedJSONRequest("POST", "/api/v1/users",
		admin.CreateUserRequest{Username: "kho", DisplayName: "Thủ kho", Password: "Kho-SMT-2026!", Role: "user"}, tok))
	testutil.AssertStatus(t, w, 201)
	var u admin.UserFull
	testutil.DecodeEnvelope(t, w, &u)
	if u.Username != "kho" || u.Active != 1 || u.Role != "user" {
		t.Fatalf("created = %+v", u)
	}

	w = httptest.NewRecorder()
	h.CreateUser(w, testutil.AuthedJSONRequest("POST", "/api/v1/users",
		admin.CreateUserRequest{Username: "kho", Password: "Kho-SMT-2026!"}, tok))
	testutil.AssertStatus(t, w, 409)

	w = httptest.NewRecorder()
	h.CreateUser(w, testutil.AuthedJSONRequest("POST", "/api/v1/users",
		admin.CreateUserRequest{Username: "x", Password: "Kho-SMT-2026!", Role: "root"}, tok))
	testutil.AssertStatus(t, w, 400)
	if msg := testutil.ErrorMessage(t, w); !strings.Contains(msg, "role") {
		t.Errorf("message = %q", msg)
	}

	inactive := 0
	w = httptest.NewRecorder()
	h.UpdateUser(w, testutil.AuthedJSONRequest("PUT", "/api/v1/users/2",
		admin.UpdateUserRequest{DisplayName: "Kho 2", Role: "readonly", Active: &inactive}, tok), "2")
	testutil.AssertStatus(t, w, 200)
	testutil.DecodeEnvelope(t, w, &u)
	if u.Role != "readonly" || u.Active != 0 || u.DisplayName != "Kho 2" {
		t.Errorf("updated = %+v", u)
	}

	w = httptest.NewRecorder()
	h.ListUsers(w, testutil.AuthedRequest("GET", "/api/v1/users", nil, tok))
	testutil.AssertStatus(t, w, 200)
	var users []admin.UserFull
	testutil.DecodeEnvelope(t, w, &users)
	if len(users) != 2 {
		t.Errorf("users = %+v", users)
	}

	w = httptest.NewRecorder()
	h.UpdateUser(w, testutil.AuthedJSONRequest("PUT", "/api/v1/users/99", admin.UpdateUserRequest{}, tok), "99")
	testutil.AssertStatus(t, w, 404)
}

func TestUpdateSelf(t *testing.T) {
	h, db := newTestHandler(t)
	tok := testutil.LoginAdmin(t, db)

	inactive := 0
	w := httptest.NewRecorder()
	h.UpdateUser(w, testutil.AuthedJSONRequest("PUT", "/api/v1/users/1", admin.UpdateUserRequest{Active: &inactive}, tok), "1")
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.UpdateUser(w, testutil.AuthedJSONRequest("PUT", "/api/v1/users/1", admin.UpdateUserRequest{Role: "user"}, tok), "1")
	testutil.AssertStatus(t, w, 400)
}

func TestListAudit(t *testing.T) {
	h, db := newTestHandler(t)
	tok := testutil.LoginAdmin(t, db)
	audit.LogAudit(db, nil, "admin", audit.ActionCreate, "products", 1, "Created product FDR-8")
	audit.LogAudit(db, nil, "admin", audit.ActionDelete, "suppliers", 2, "Deleted supplier")

	w := httptest.NewRecorder()
	h.ListAudit(w, testutil.AuthedRequest("GET", "/api/v1/audit?module=products", nil, tok))
	testutil.AssertStatus(t, w, 200)
	var entries []models.AuditEntry
	testutil.DecodeEnvelope(t, w, &entries)
	if len(entries) != 1 || entries[0].Summary != "Created product FDR-8" {
		t.Errorf("entries = %+v", entries)
	}

	w = httptest.NewRecorder()
	h.ListAudit(w, testutil.AuthedRequest("GET", "/api/v1/audit?limit=abc", nil, tok))
	testutil.AssertStatus(t, w, 400)
}

func TestBackups(t *testing.T) {
	h, db := newTestHandler(t)
	tok := testutil.LoginAdmin(t, db)
	testutil.InsertProduct(t, db, "FDR-8", "Feeder 8mm", 3, 4500000)

	w := httptest.NewRecorder()
	h.CreateBackup(w, testutil.AuthedRequest("POST", "/api/v1/backups", nil, tok))
	testutil.AssertStatus(t, w, 201)
	var created map[string]string
	testutil.DecodeEnvelope(t, w, &created)
	name := created["filename"]

	backups, err := h.ListBackups()
	if err != nil || len(backups) != 1 || backups[0].Filename != name || backups[0].Size == 0 {
		t.Fatalf("backups = %+v, %v", backups, err)
	}

	w = httptest.NewRecorder()
	h.DownloadBackup(w, testutil.AuthedRequest("GET", "/api/v1/backups/"+name, nil, tok), name)
	testutil.AssertStatus(t, w, 200)
	if !strings.HasPrefix(w.Body.String(), "SQLite format 3") {
		t.Error("download is not a SQLite file")
	}

	w = httptest.NewRecorder()
	h.DeleteBackup(w, testutil.AuthedRequest("DELETE", "/api/v1/backups/../x.db", nil, tok), "../x.db")
	testutil.AssertStatus(t, w, 400)

	w = httptest.NewRecorder()
	h.DeleteBackup(w, testutil.AuthedRequest("DELETE", "/api/v1/backups/"+name, nil, tok), name)
	testutil.AssertStatus(t, w, 200)
	if backups, _ := h.ListBackups(); len(backups) != 0 {
		t.Errorf("backup not deleted: %+v", backups)
	}
}
