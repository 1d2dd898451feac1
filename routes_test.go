package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"stockwatch/internal/auth"
	"stockwatch/internal/config"
	"stockwatch/internal/database"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/purchasing"
	"stockwatch/internal/server"
	"stockwatch/internal/testutil"
)

type testServer struct {
	app  *server.App
	h    http.Handler
	mail *notify.RecordingMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.SetupTestDB(t)
	mail := &notify.RecordingMailer{}
	cfg := config.Default()
	app := newApp(db, cfg, &transports{
		Mailer:   mail,
		Channels: &notify.RecordingSender{},
		Docs:     &purchasing.LocalStore{Dir: t.TempDir()},
	})
	app.Auth.Cost = 4
	t.Cleanup(app.Waitlist.Wait)
	return &testServer{app: app, h: routes(app), mail: mail}
}

func (s *testServer) do(t *testing.T, method, target string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	w := s.do(t, "POST", "/api/v1/auth/login", map[string]string{"username": username, "password": password}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == server.SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestRoutes_StorefrontToRestock(t *testing.T) {
	s := newTestServer(t)
	p := testutil.SeedProduct(t, s.app.DB, "MUG-1", "Mug", "9.50", 0)
	testutil.SeedUser(t, s.app.DB, "alice", "pw", auth.RoleManager)

	w := s.do(t, "POST", "/api/v1/waitlist", map[string]any{"product_id": p.ID, "email": "jane@example.com", "name": "Jane"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("join: %d %s", w.Code, w.Body.String())
	}
	if w := s.do(t, "GET", "/api/v1/products/MUG-1", nil, nil); w.Code != http.StatusOK {
		t.Errorf("availability: %d", w.Code)
	}
	if w := s.do(t, "GET", "/api/v1/products/NOPE", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown sku: %d", w.Code)
	}

	cookie := s.login(t, "alice", "pw")
	target := "/api/v1/admin/products/" + strconv.FormatInt(p.ID, 10) + "/restock"
	if w := s.do(t, "POST", target, map[string]int{"quantity": 4}, cookie); w.Code != http.StatusOK {
		t.Fatalf("restock: %d %s", w.Code, w.Body.String())
	}
	s.app.Waitlist.Wait()
	// Signup confirmation plus the back-in-stock notice.
	if got := len(s.mail.To("jane@example.com")); got != 2 {
		t.Errorf("emails to customer = %d, want 2", got)
	}
	if got, _ := s.app.Products.Get(t.Context(), p.ID); got.StockQty != 4 || got.StockStatus != models.StockInStock {
		t.Errorf("product after restock = %+v", got)
	}
}

func TestRoutes_AccessControl(t *testing.T) {
	s := newTestServer(t)
	testutil.SeedUser(t, s.app.DB, "alice", "pw", auth.RoleManager)
	testutil.SeedUser(t, s.app.DB, "victor", "pw", auth.RoleViewer)

	if w := s.do(t, "GET", "/api/v1/admin/products", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous admin: %d", w.Code)
	}
	if w := s.do(t, "GET", "/api/v1/dashboard/summary", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous dashboard: %d", w.Code)
	}

	manager := s.login(t, "alice", "pw")
	viewer := s.login(t, "victor", "pw")

	tests := []struct {
		name           string
		cookie         *http.Cookie
		method, target string
		body           any
		want           int
	}{
		{"viewer reads products", viewer, "GET", "/api/v1/admin/products", nil, http.StatusOK},
		{"viewer cannot create", viewer, "POST", "/api/v1/admin/products", map[string]string{"sku": "A-1", "name": "A"}, http.StatusForbidden},
		{"manager creates", manager, "POST", "/api/v1/admin/products", map[string]string{"sku": "A-1", "name": "A", "price": "1.00"}, http.StatusCreated},
		{"manager cannot edit settings", manager, "PUT", "/api/v1/admin/settings", map[string]string{"site_name": "X"}, http.StatusForbidden},
		{"manager reads dashboard", manager, "GET", "/api/v1/dashboard/summary", nil, http.StatusOK},
		{"unknown admin route", manager, "GET", "/api/v1/admin/nothing", nil, http.StatusNotFound},
		{"me", viewer, "GET", "/api/v1/auth/me", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(t, tt.method, tt.target, tt.body, tt.cookie); w.Code != tt.want {
				t.Errorf("got %d %s, want %d", w.Code, w.Body.String(), tt.want)
			}
		})
	}

	if w := s.do(t, "GET", "/api/v1/auth/login", nil, nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET login: %d", w.Code)
	}
	if w := s.do(t, "GET", "/api/v1/admin/products", nil, nil); w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
}

func TestRoutes_SupplierPageNeedsToken(t *testing.T) {
	s := newTestServer(t)
	p := testutil.SeedProduct(t, s.app.DB, "MUG-1", "Mug", "9.50", 0)
	w := s.do(t, "GET", "/supplier/restock?token=nope&product_id="+strconv.FormatInt(p.ID, 10), nil, nil)
	if w.Code != http.StatusGone {
		t.Errorf("bad token: %d", w.Code)
	}
}

func TestBootstrap(t *testing.T) {
	s := newTestServer(t)
	cfg := config.Default()
	cfg.SiteName = "Corner Shop"
	cfg.LicenseKey = "SW-AB12-CD34-EF56"
	cfg.DefaultPro = false
	cfg.DBPath = filepath.Join(t.TempDir(), "stockwatch.db")
	cfg.AdminPassword = ""

	for i := 0; i < 2; i++ {
		if err := bootstrap(t.Context(), s.app, cfg); err != nil {
			t.Fatalf("bootstrap %d: %v", i, err)
		}
	}

	info, err := os.Stat(adminPasswordPath(cfg))
	if err != nil {
		t.Fatalf("generated password file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("password file mode = %v", info.Mode().Perm())
	}
	b, _ := os.ReadFile(adminPasswordPath(cfg))
	s.login(t, cfg.AdminUsername, strings.TrimSpace(string(b)))
	if n := testutil.CountRows(t, s.app.DB, "users", "role=?", auth.RoleAdmin); n != 1 {
		t.Errorf("admin users = %d", n)
	}
	if got := s.app.Settings.Get(t.Context(), database.KeySiteName, ""); got != "Corner Shop" {
		t.Errorf("site name = %q", got)
	}
	if f := s.app.License.Resolve(t.Context()); !f.Pro {
		t.Errorf("license = %+v", f)
	}

	// Settings already written are left alone.
	s.app.Settings.Set(t.Context(), database.KeySiteName, "Edited")
	bootstrap(t.Context(), s.app, cfg)
	if got := s.app.Settings.Get(t.Context(), database.KeySiteName, ""); got != "Edited" {
		t.Errorf("site name overwritten: %q", got)
	}
}
