package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockwatch/internal/auth"
	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/models"
	"stockwatch/internal/testutil"
)

func TestGzipMiddleware(t *testing.T) {
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Hello World"))
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Error("Expected Content-Encoding: gzip")
	}
	gr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("Failed to create gzip reader: %v", err)
	}
	defer gr.Close()
	body, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("Failed to read gzip body: %v", err)
	}
	if string(body) != "Hello World" {
		t.Errorf("Expected 'Hello World', got '%s'", string(body))
	}
}

func TestGzipMiddleware_SkipsWebSocket(t *testing.T) {
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("upgrade"))
	}))
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") == "gzip" {
		t.Error("websocket path must not be gzipped")
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(Username(r.Context())))
	})
}

func TestRequireSession(t *testing.T) {
	db := testutil.SetupTestDB(t)
	uid := testutil.SeedUser(t, db, "carol", "Correct-Horse-9", "viewer")
	testutil.SeedSession(t, db, uid, "sess-carol")
	h := RequireSession(auth.NewManager(db))(okHandler())

	req := httptest.NewRequest("GET", "/api/v1/admin/products", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no cookie: status %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/v1/admin/products", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "sess-carol"})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "carol" {
		t.Errorf("cookie: status %d body %q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest("GET", "/api/v1/admin/products", nil)
	req.Header.Set("Authorization", "Bearer sess-carol")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("bearer: status %d", w.Code)
	}
}

func TestRequireRBAC(t *testing.T) {
	tests := []struct {
		role, method, path string
		want               int
	}{
		{"viewer", "GET", "/api/v1/admin/products", 200},
		{"viewer", "POST", "/api/v1/admin/restock", 403},
		{"manager", "POST", "/api/v1/admin/restock", 200},
		{"manager", "PUT", "/api/v1/admin/settings", 403},
		{"manager", "POST", "/api/v1/admin/license/activate", 403},
		{"admin", "PUT", "/api/v1/admin/templates/customer_restock", 200},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		req = req.WithContext(WithUser(req.Context(), &models.User{Username: "u", Role: tt.role}))
		w := httptest.NewRecorder()
		RequireRBAC(okHandler()).ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s %s %s = %d, want %d", tt.role, tt.method, tt.path, w.Code, tt.want)
		}
	}
}

func TestLicenseMiddleware(t *testing.T) {
	db := testutil.SetupTestDB(t)
	settings := &database.Settings{DB: db}
	m := license.NewManager(settings, true)

	var got license.Features
	h := LicenseMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = Features(r)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if !got.Pro {
		t.Error("default build should resolve Pro")
	}

	m.Deactivate(t.Context())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if got.Pro {
		t.Error("deactivated license should close the gate")
	}

	if Features(httptest.NewRequest("GET", "/", nil)).Pro {
		t.Error("request without middleware must be Free")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := RateLimitMiddleware(rl, func(*http.Request) string { return "10.0.0.1" })(okHandler())

	codes := []int{}
	for i := 0; i < 6; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/auth/login", nil))
		codes = append(codes, w.Code)
	}
	if codes[4] != 200 || codes[5] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/static/app.css", nil))
	if w.Code != 200 || w.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("non-api paths are not limited")
	}

	now = now.Add(2 * time.Minute)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/auth/login", nil))
	if w.Code != 200 {
		t.Errorf("window should have reset, got %d", w.Code)
	}
}
