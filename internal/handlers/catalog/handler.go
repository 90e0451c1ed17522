package catalog

import (
	"database/sql"
	"net/http"

	"smtparts/internal/audit"
	"smtparts/internal/websocket"
)

// Handler holds dependencies for catalog handlers.
type Handler struct {
	DB  *sql.DB
	Hub *websocket.Hub

	// LowStock is the stock level at or below which a product is flagged.
	LowStock float64
}

func (h *Handler) logAudit(r *http.Request, action string, id int64, summary string) {
	audit.LogAudit(h.DB, h.Hub, audit.GetUsername(h.DB, r), action, "products", id, summary)
}
