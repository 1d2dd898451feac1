package server

import (
	"context"
	"database/sql"

	"stockwatch/internal/analytics"
	"stockwatch/internal/auth"
	"stockwatch/internal/csvupload"
	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/purchasing"
	"stockwatch/internal/supplier"
	"stockwatch/internal/tokens"
	"stockwatch/internal/waitlist"
	"stockwatch/internal/websocket"
)

// ContextKey is the type used for request context keys.
type ContextKey string

const (
	CtxUserID   ContextKey = "userID"
	CtxUsername ContextKey = "username"
	CtxRole     ContextKey = "role"
)

// SessionCookie is the name of the manager session cookie.
const SessionCookie = "stockwatch_session"

// App holds shared dependencies for the application.
type App struct {
	DB         *sql.DB
	Hub        *websocket.Hub
	Settings   *database.Settings
	Products   *database.ProductStore
	License    *license.Manager
	Auth       *auth.Manager
	Notifier   *notify.Notifier
	Channels   notify.ChannelSender
	Tokens     *tokens.Service
	Waitlist   *waitlist.Service
	Suppliers  *supplier.Service
	Purchasing *purchasing.Service
	CSV        *csvupload.Processor
	Analytics  *analytics.Service
}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, u *models.User) context.Context {
	ctx = context.WithValue(ctx, CtxUserID, u.ID)
	ctx = context.WithValue(ctx, CtxUsername, u.Username)
	return context.WithValue(ctx, CtxRole, u.Role)
}

// Username returns the logged-in username, or "system".
func Username(ctx context.Context) string {
	if u, ok := ctx.Value(CtxUsername).(string); ok && u != "" {
		return u
	}
	return "system"
}

// Role returns the logged-in role, or "".
func Role(ctx context.Context) string {
	r, _ := ctx.Value(CtxRole).(string)
	return r
}
