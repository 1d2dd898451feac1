// Package admin serves the store manager API under /api/v1/admin and the
// session endpoints under /api/v1/auth.
package admin

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"

	"stockwatch/internal/auth"
	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/notify"
	"stockwatch/internal/purchasing"
	"stockwatch/internal/response"
	"stockwatch/internal/supplier"
	"stockwatch/internal/tokens"
	"stockwatch/internal/validation"
	"stockwatch/internal/waitlist"
	"stockwatch/internal/websocket"
)

// Handler holds dependencies for admin handlers.
type Handler struct {
	DB         *sql.DB
	Hub        *websocket.Hub
	Settings   *database.Settings
	Products   *database.ProductStore
	Waitlist   *waitlist.Service
	Suppliers  *supplier.Service
	Purchasing *purchasing.Service
	Tokens     *tokens.Service
	Notifier   *notify.Notifier
	License    *license.Manager
	Auth       *auth.Manager
}

// IDParam parses a numeric path segment.
func IDParam(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func badID(w http.ResponseWriter) {
	response.Err(w, "invalid id", http.StatusBadRequest)
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var ve *validation.ValidationErrors
	switch {
	case errors.As(err, &ve):
		response.Err(w, ve.Error(), http.StatusBadRequest)
	case errors.Is(err, license.ErrProRequired):
		response.Err(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, supplier.ErrNotFound),
		errors.Is(err, purchasing.ErrNotFound),
		errors.Is(err, waitlist.ErrProductNotFound),
		errors.Is(err, waitlist.ErrEntryNotFound):
		response.Err(w, err.Error(), http.StatusNotFound)
	default:
		log.Printf("admin: %v", err)
		response.Err(w, "internal error", http.StatusInternalServerError)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
