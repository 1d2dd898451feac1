package admin_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"stockwatch/internal/auth"
	"stockwatch/internal/database"
	"stockwatch/internal/handlers/admin"
	"stockwatch/internal/license"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/purchasing"
	"stockwatch/internal/server"
	"stockwatch/internal/supplier"
	"stockwatch/internal/testutil"
	"stockwatch/internal/tokens"
	"stockwatch/internal/waitlist"
)

type fixture struct {
	db   *sql.DB
	h    *admin.Handler
	mail *notify.RecordingMailer
	sms  *notify.RecordingSender
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	settings := &database.Settings{DB: db}
	products := database.NewProductStore(db)
	mail := &notify.RecordingMailer{}
	sms := &notify.RecordingSender{}
	n := notify.New(mail, settings)
	tok := tokens.New(db, "http://shop.test")
	lic := license.NewManager(settings, true)
	sup := supplier.New(db, products, settings, n, sms, tok, lic, nil)
	products.Subscribe(sup)
	po := purchasing.New(db, products, sup, settings, n, nil, nil)
	sup.PO = po
	wl := waitlist.New(db, products, n, nil, sup, "http://shop.test")
	am := auth.NewManager(db)
	am.Cost = 4

	h := &admin.Handler{
		DB:         db,
		Settings:   settings,
		Products:   products,
		Waitlist:   wl,
		Suppliers:  sup,
		Purchasing: po,
		Tokens:     tok,
		Notifier:   n,
		License:    lic,
		Auth:       am,
	}
	t.Cleanup(wl.Wait)
	return &fixture{db: db, h: h, mail: mail, sms: sms}
}

// call runs fn as the logged-in manager "alice" with the given gate.
func call(fn http.HandlerFunc, method, path string, body any, feat license.Features) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		var buf bytes.Buffer
		json.NewEncoder(&buf).Encode(body)
		rd = &buf
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	ctx := server.WithUser(req.Context(), &models.User{ID: 1, Username: "alice", Role: auth.RoleManager})
	ctx = license.WithFeatures(ctx, feat)
	w := httptest.NewRecorder()
	fn(w, req.WithContext(ctx))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp.Data
}

func id(n int64) string { return strconv.FormatInt(n, 10) }

func withID(fn func(http.ResponseWriter, *http.Request, string), idStr string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { fn(w, r, idStr) }
}
