package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"smtparts/internal/audit"
	"smtparts/internal/models"
	"smtparts/internal/response"
)

// BulkUpdateRequest applies one partial field set to many products.
type BulkUpdateRequest struct {
	IDs     []int64                    `json:"ids"`
	Updates map[string]json.RawMessage `json:"updates"`
}

// BulkUpdateProducts handles POST /api/v1/products/bulk-update.
func (h *Handler) BulkUpdateProducts(w http.ResponseWriter, r *http.Request) {
	var req BulkUpdateRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if len(req.IDs) == 0 {
		response.Err(w, "ids required", 400)
		return
	}
	if len(req.IDs) > 1000 {
		response.Err(w, "too many ids (max 1000)", 400)
		return
	}
	sets, args, err := h.patchAssignments(req.Updates)
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}

	resp := models.BulkResponse{Errors: []string{}}
	for _, id := range req.IDs {
		err := h.applyPatch(id, sets, append([]any(nil), args...))
		switch {
		case err == sql.ErrNoRows:
			resp.Failed++
			resp.Errors = append(resp.Errors, fmt.Sprintf("%d: not found", id))
		case isUniqueViolation(err):
			resp.Failed++
			resp.Errors = append(resp.Errors, fmt.Sprintf("%d: product code already exists", id))
		case err != nil:
			resp.Failed++
			resp.Errors = append(resp.Errors, fmt.Sprintf("%d: %v", id, err))
		default:
			resp.Success++
			h.logAudit(r, audit.ActionUpdate, id, "Bulk update")
		}
	}
	response.JSON(w, resp)
}
