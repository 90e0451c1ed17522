package sales

import (
	"database/sql"
	"net/http"

	"smtparts/internal/audit"
	"smtparts/internal/config"
	"smtparts/internal/server"
	"smtparts/internal/websocket"
)

// Handler holds dependencies for quotation, order and deal handlers.
type Handler struct {
	DB  *sql.DB
	Hub *websocket.Hub

	Company config.CompanyConfig
	Sales   config.SalesConfig
}

// username prefers the name RequireAuth put in the context and only falls
// back to a session lookup. Call it outside any open transaction.
func (h *Handler) username(r *http.Request) string {
	if u := server.Username(r.Context()); u != "" {
		return u
	}
	return audit.GetUsername(h.DB, r)
}

func (h *Handler) logAudit(r *http.Request, action, module string, id int64, summary string) {
	audit.LogAudit(h.DB, h.Hub, h.username(r), action, module, id, summary)
}

func (h *Handler) defaultVAT() float64 {
	if h.Sales.DefaultVATRate > 0 {
		return h.Sales.DefaultVATRate
	}
	return 10
}
