package server

import (
	"context"
	"database/sql"

	"smtparts/internal/config"
	"smtparts/internal/websocket"
)

// ContextKey is the type used for request context keys.
type ContextKey string

const (
	CtxUserID   ContextKey = "userID"
	CtxUsername ContextKey = "username"
	CtxRole     ContextKey = "role"
)

// App holds shared dependencies for the application.
type App struct {
	DB      *sql.DB
	Hub     *websocket.Hub
	Cfg     *config.Config
	Limiter *RateLimiter
}

// NewApp wires the shared dependencies.
func NewApp(db *sql.DB, hub *websocket.Hub, cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.Defaults()
	}
	return &App{DB: db, Hub: hub, Cfg: cfg, Limiter: NewRateLimiter()}
}

// Username returns the authenticated username stored by RequireAuth.
func Username(ctx context.Context) string {
	if u, ok := ctx.Value(CtxUsername).(string); ok {
		return u
	}
	return ""
}
