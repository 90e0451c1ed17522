package admin

import (
	"net/http"
	"strconv"

	"smtparts/internal/audit"
	"smtparts/internal/response"
)

// ListAudit handles GET /api/v1/audit?module=&limit=.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.Err(w, "limit must be a positive integer", 400)
			return
		}
		limit = min(n, 1000)
	}
	entries, err := audit.List(h.DB, r.URL.Query().Get("module"), limit)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, entries)
}
