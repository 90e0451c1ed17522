package partners

import (
	"database/sql"
	"net/http"
	"strings"

	"smtparts/internal/audit"
	"smtparts/internal/search"
	"smtparts/internal/websocket"
)

// Handler holds dependencies for supplier and customer handlers.
type Handler struct {
	DB  *sql.DB
	Hub *websocket.Hub
}

func (h *Handler) logAudit(r *http.Request, action, module string, id int64, summary string) {
	audit.LogAudit(h.DB, h.Hub, audit.GetUsername(h.DB, r), action, module, id, summary)
}

// rank filters items by q (best match first) when q is set.
func rank[T any](items []T, q string, text func(T) string) []T {
	q = strings.TrimSpace(q)
	if q == "" {
		return items
	}
	idx := search.Rank(q, len(items), func(i int) string { return text(items[i]) })
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = items[j]
	}
	return out
}
