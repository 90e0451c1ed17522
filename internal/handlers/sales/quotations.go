package sales

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smtparts/internal/audit"
	"smtparts/internal/database"
	"smtparts/internal/models"
	"smtparts/internal/pricing"
	"smtparts/internal/response"
	"smtparts/internal/search"
	"smtparts/internal/validation"
)

const quotationSelect = `SELECT q.id, q.code, q.customer_id, COALESCE(c.name,''), q.status, COALESCE(q.valid_until,''),
	q.vat_rate, COALESCE(q.notes,''), q.subtotal, q.vat_amount, q.total, COALESCE(q.created_by,''), q.created_at, q.updated_at
	FROM quotations q LEFT JOIN customers c ON q.customer_id = c.id`

// quotationRequest is the create/update body. VATRate is a pointer so an
// explicit 0% is distinguishable from "use the default".
type quotationRequest struct {
	CustomerID int64             `json:"customer_id"`
	Status     string            `json:"status"`
	ValidUntil string            `json:"valid_until"`
	VATRate    *float64          `json:"vat_rate"`
	Notes      string            `json:"notes"`
	Items      []models.LineItem `json:"items"`
}

func scanQuotation(row interface{ Scan(...any) error }) (models.Quotation, error) {
	var q models.Quotation
	err := row.Scan(&q.ID, &q.Code, &q.CustomerID, &q.CustomerName, &q.Status, &q.ValidUntil,
		&q.VATRate, &q.Notes, &q.Subtotal, &q.VATAmount, &q.Total, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

// LoadQuotation fetches a quotation with its items and converted order.
func LoadQuotation(db *sql.DB, id int64) (models.Quotation, error) {
	q, err := scanQuotation(db.QueryRow(quotationSelect+" WHERE q.id = ?", id))
	if err != nil {
		return q, err
	}
	if q.Items, err = loadItems(db, quotationItems, id); err != nil {
		return q, err
	}
	var orderID int64
	if db.QueryRow("SELECT id FROM orders WHERE quotation_id=?", id).Scan(&orderID) == nil {
		q.OrderID = &orderID
	}
	return q, nil
}

func (h *Handler) validateQuotation(ve *validation.ValidationErrors, req *quotationRequest) {
	validation.RequireID(ve, "customer_id", req.CustomerID)
	validation.ValidateForeignKey(ve, h.DB, "customer_id", "customers", req.CustomerID)
	validation.ValidateEnum(ve, "status", req.Status, validation.ValidQuotationStatuses)
	validation.ValidateDate(ve, "valid_until", req.ValidUntil)
	validation.ValidateMaxLength(ve, "notes", req.Notes, validation.MaxStringLength)
	if req.VATRate == nil {
		v := h.defaultVAT()
		req.VATRate = &v
	}
	validation.ValidateVATRate(ve, "vat_rate", *req.VATRate)
	prepareItems(h.DB, ve, req.Items)
}

// ListQuotations handles GET /api/v1/quotations?status=&customer_id=&q=.
func (h *Handler) ListQuotations(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()
	var (
		conds []string
		args  []any
	)
	if s := qp.Get("status"); s != "" {
		conds = append(conds, "q.status = ?")
		args = append(args, s)
	}
	if c := qp.Get("customer_id"); c != "" {
		cid, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			response.Err(w, "invalid customer_id", 400)
			return
		}
		conds = append(conds, "q.customer_id = ?")
		args = append(args, cid)
	}
	query := quotationSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY q.created_at DESC, q.id DESC"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.Quotation{}
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		q.Items = []models.LineItem{}
		items = append(items, q)
	}
	if s := strings.TrimSpace(qp.Get("q")); s != "" {
		idx := search.Rank(s, len(items), func(i int) string { return items[i].Code + " " + items[i].CustomerName })
		ranked := make([]models.Quotation, len(idx))
		for i, j := range idx {
			ranked[i] = items[j]
		}
		items = ranked
	}
	response.JSON(w, items)
}

// GetQuotation handles GET /api/v1/quotations/{id}.
func (h *Handler) GetQuotation(w http.ResponseWriter, r *http.Request, id string) {
	qid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	q, err := LoadQuotation(h.DB, qid)
	if err == sql.ErrNoRows {
		response.Err(w, "quotation not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, q)
}

// CreateQuotation handles POST /api/v1/quotations.
func (h *Handler) CreateQuotation(w http.ResponseWriter, r *http.Request) {
	var req quotationRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	h.validateQuotation(ve, &req)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if req.Status == "" {
		req.Status = "draft"
	}
	if req.ValidUntil == "" && h.Sales.QuoteValidityDays > 0 {
		req.ValidUntil = time.Now().AddDate(0, 0, h.Sales.QuoteValidityDays).Format("2006-01-02")
	}
	totals := pricing.Compute(req.Items, *req.VATRate)
	user := h.username(r)
	now := database.Now()

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	code := database.NextCodeTx(tx, "BG", "quotations")
	res, err := tx.Exec(`INSERT INTO quotations (code,customer_id,status,valid_until,vat_rate,notes,subtotal,vat_amount,total,created_by,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		code, req.CustomerID, req.Status, req.ValidUntil, *req.VATRate, req.Notes,
		totals.Subtotal, totals.VATAmount, totals.Total, user, now, now)
	if isUniqueViolation(err) {
		response.Err(w, "quotation code "+code+" already taken, retry", 409)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()
	if err := insertItems(tx, quotationItems, id, req.Items); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionCreate, "quotations", id, fmt.Sprintf("Created quotation %s (%d items)", code, len(req.Items)))

	q, err := LoadQuotation(h.DB, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.Created(w, q)
}

// convertedOrderCode returns the code of the order made from the quotation,
// or "" when it has not been converted.
func convertedOrderCode(db rowQuerier, quotationID int64) string {
	var code string
	db.QueryRow("SELECT code FROM orders WHERE quotation_id=?", quotationID).Scan(&code)
	return code
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// UpdateQuotation handles PUT /api/v1/quotations/{id}: the header is
// rewritten and the items replaced.
func (h *Handler) UpdateQuotation(w http.ResponseWriter, r *http.Request, id string) {
	qid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var code string
	if err := h.DB.QueryRow("SELECT code FROM quotations WHERE id=?", qid).Scan(&code); err != nil {
		response.Err(w, "quotation not found", 404)
		return
	}
	if oc := convertedOrderCode(h.DB, qid); oc != "" {
		response.Err(w, fmt.Sprintf("quotation already converted to order %s", oc), 409)
		return
	}
	var req quotationRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	h.validateQuotation(ve, &req)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if req.Status == "" {
		req.Status = "draft"
	}
	totals := pricing.Compute(req.Items, *req.VATRate)

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	_, err = tx.Exec(`UPDATE quotations SET customer_id=?,status=?,valid_until=?,vat_rate=?,notes=?,subtotal=?,vat_amount=?,total=?,updated_at=?
		WHERE id=?`,
		req.CustomerID, req.Status, req.ValidUntil, *req.VATRate, req.Notes,
		totals.Subtotal, totals.VATAmount, totals.Total, database.Now(), qid)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := replaceItems(tx, quotationItems, qid, req.Items); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionUpdate, "quotations", qid, "Updated quotation "+code+": status="+req.Status)
	h.GetQuotation(w, r, id)
}

// DeleteQuotation handles DELETE /api/v1/quotations/{id}. Only drafts can
// be deleted.
func (h *Handler) DeleteQuotation(w http.ResponseWriter, r *http.Request, id string) {
	qid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var code, status string
	if err := h.DB.QueryRow("SELECT code, status FROM quotations WHERE id=?", qid).Scan(&code, &status); err != nil {
		response.Err(w, "quotation not found", 404)
		return
	}
	if status != "draft" {
		response.Err(w, fmt.Sprintf("only draft quotations can be deleted (%s is %s)", code, status), 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM quotations WHERE id=?", qid); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionDelete, "quotations", qid, "Deleted quotation "+code)
	response.JSON(w, map[string]any{"deleted": qid})
}

// ConvertQuotation handles POST /api/v1/quotations/{id}/convert. An
// accepted quotation becomes a pending order carrying the same items and
// totals; a quotation converts at most once.
func (h *Handler) ConvertQuotation(w http.ResponseWriter, r *http.Request, id string) {
	qid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	q, err := LoadQuotation(h.DB, qid)
	if err == sql.ErrNoRows {
		response.Err(w, "quotation not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if q.Status != "accepted" {
		response.Err(w, "quotation must be in 'accepted' status to convert", 400)
		return
	}

	user := h.username(r)
	now := database.Now()
	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	if oc := convertedOrderCode(tx, qid); oc != "" {
		response.Err(w, fmt.Sprintf("quotation already converted to order %s", oc), 409)
		return
	}
	code := database.NextCodeTx(tx, "DH", "orders")
	res, err := tx.Exec(`INSERT INTO orders (code,quotation_id,customer_id,status,payment_status,vat_rate,notes,subtotal,vat_amount,total,created_by,created_at,updated_at)
		VALUES (?,?,?,'pending','unpaid',?,?,?,?,?,?,?,?)`,
		code, qid, q.CustomerID, q.VATRate, q.Notes, q.Subtotal, q.VATAmount, q.Total, user, now, now)
	if isUniqueViolation(err) {
		response.Err(w, fmt.Sprintf("quotation %s is already being converted", q.Code), 409)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	orderID, _ := res.LastInsertId()
	if err := insertItems(tx, orderItems, orderID, q.Items); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionCreate, "orders", orderID, fmt.Sprintf("Converted quotation %s to order %s", q.Code, code))

	o, err := LoadOrder(h.DB, orderID)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.Created(w, o)
}
