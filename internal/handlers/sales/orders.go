package sales

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"smtparts/internal/audit"
	"smtparts/internal/database"
	"smtparts/internal/format"
	"smtparts/internal/models"
	"smtparts/internal/pricing"
	"smtparts/internal/response"
	"smtparts/internal/validation"
)

const orderSelect = `SELECT o.id, o.code, o.quotation_id, o.customer_id, COALESCE(c.name,''), o.status, o.payment_status,
	COALESCE(o.delivery_date,''), o.vat_rate, COALESCE(o.notes,''), o.subtotal, o.vat_amount, o.total,
	COALESCE(o.created_by,''), o.created_at, o.updated_at
	FROM orders o LEFT JOIN customers c ON o.customer_id = c.id`

type orderRequest struct {
	CustomerID    int64             `json:"customer_id"`
	PaymentStatus string            `json:"payment_status"`
	DeliveryDate  string            `json:"delivery_date"`
	VATRate       *float64          `json:"vat_rate"`
	Notes         string            `json:"notes"`
	Items         []models.LineItem `json:"items"`
}

func scanOrder(row interface{ Scan(...any) error }) (models.Order, error) {
	var (
		o   models.Order
		qid sql.NullInt64
	)
	err := row.Scan(&o.ID, &o.Code, &qid, &o.CustomerID, &o.CustomerName, &o.Status, &o.PaymentStatus,
		&o.DeliveryDate, &o.VATRate, &o.Notes, &o.Subtotal, &o.VATAmount, &o.Total, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	o.QuotationID = database.IntPtr(qid)
	return o, err
}

// LoadOrder fetches an order with its items.
func LoadOrder(db *sql.DB, id int64) (models.Order, error) {
	o, err := scanOrder(db.QueryRow(orderSelect+" WHERE o.id = ?", id))
	if err != nil {
		return o, err
	}
	o.Items, err = loadItems(db, orderItems, id)
	return o, err
}

func (h *Handler) validateOrder(ve *validation.ValidationErrors, req *orderRequest) {
	validation.RequireID(ve, "customer_id", req.CustomerID)
	validation.ValidateForeignKey(ve, h.DB, "customer_id", "customers", req.CustomerID)
	validation.ValidateEnum(ve, "payment_status", req.PaymentStatus, validation.ValidPaymentStatuses)
	validation.ValidateDate(ve, "delivery_date", req.DeliveryDate)
	validation.ValidateMaxLength(ve, "notes", req.Notes, validation.MaxStringLength)
	if req.VATRate == nil {
		v := h.defaultVAT()
		req.VATRate = &v
	}
	validation.ValidateVATRate(ve, "vat_rate", *req.VATRate)
	prepareItems(h.DB, ve, req.Items)
}

// ListOrders handles GET /api/v1/orders?status=&payment_status=&customer_id=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()
	var (
		conds []string
		args  []any
	)
	if s := qp.Get("status"); s != "" {
		conds = append(conds, "o.status = ?")
		args = append(args, s)
	}
	if s := qp.Get("payment_status"); s != "" {
		conds = append(conds, "o.payment_status = ?")
		args = append(args, s)
	}
	if c := qp.Get("customer_id"); c != "" {
		cid, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			response.Err(w, "invalid customer_id", 400)
			return
		}
		conds = append(conds, "o.customer_id = ?")
		args = append(args, cid)
	}
	query := orderSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY o.created_at DESC, o.id DESC"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		o.Items = []models.LineItem{}
		items = append(items, o)
	}
	response.JSON(w, items)
}

// GetOrder handles GET /api/v1/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request, id string) {
	oid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	o, err := LoadOrder(h.DB, oid)
	if err == sql.ErrNoRows {
		response.Err(w, "order not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, o)
}

// CreateOrder handles POST /api/v1/orders. New orders start pending.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	h.validateOrder(ve, &req)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if req.PaymentStatus == "" {
		req.PaymentStatus = "unpaid"
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
	code := database.NextCodeTx(tx, "DH", "orders")
	res, err := tx.Exec(`INSERT INTO orders (code,customer_id,status,payment_status,delivery_date,vat_rate,notes,subtotal,vat_amount,total,created_by,created_at,updated_at)
		VALUES (?,?,'pending',?,?,?,?,?,?,?,?,?,?)`,
		code, req.CustomerID, req.PaymentStatus, req.DeliveryDate, *req.VATRate, req.Notes,
		totals.Subtotal, totals.VATAmount, totals.Total, user, now, now)
	if isUniqueViolation(err) {
		response.Err(w, "order code "+code+" already taken, retry", 409)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()
	if err := insertItems(tx, orderItems, id, req.Items); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionCreate, "orders", id, fmt.Sprintf("Created order %s (%d items)", code, len(req.Items)))

	o, err := LoadOrder(h.DB, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.Created(w, o)
}

// UpdateOrder handles PUT /api/v1/orders/{id}. Items can only be replaced
// while the order is pending, since confirming moves stock; the status
// changes through UpdateOrderStatus.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request, id string) {
	oid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var code, status string
	if err := h.DB.QueryRow("SELECT code, status FROM orders WHERE id=?", oid).Scan(&code, &status); err != nil {
		response.Err(w, "order not found", 404)
		return
	}
	if status == "delivered" || status == "cancelled" {
		response.Err(w, fmt.Sprintf("order %s is %s and can no longer be edited", code, status), 409)
		return
	}
	var req orderRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	h.validateOrder(ve, &req)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if req.PaymentStatus == "" {
		req.PaymentStatus = "unpaid"
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	if status == "pending" {
		totals := pricing.Compute(req.Items, *req.VATRate)
		_, err = tx.Exec(`UPDATE orders SET customer_id=?,payment_status=?,delivery_date=?,vat_rate=?,notes=?,subtotal=?,vat_amount=?,total=?,updated_at=?
			WHERE id=?`,
			req.CustomerID, req.PaymentStatus, req.DeliveryDate, *req.VATRate, req.Notes,
			totals.Subtotal, totals.VATAmount, totals.Total, database.Now(), oid)
		if err == nil {
			err = replaceItems(tx, orderItems, oid, req.Items)
		}
	} else {
		_, err = tx.Exec("UPDATE orders SET payment_status=?,delivery_date=?,notes=?,updated_at=? WHERE id=?",
			req.PaymentStatus, req.DeliveryDate, req.Notes, database.Now(), oid)
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionUpdate, "orders", oid, "Updated order "+code)
	h.GetOrder(w, r, id)
}

// stockError reports a product that cannot cover an order line.
type stockError struct {
	code         string
	need, onHand float64
}

func (e *stockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: need %s, available %s", e.code, format.Number(e.need), format.Number(e.onHand))
}

// moveStock adds sign × qty to the stock of every product on the order.
// Taking stock fails when any product cannot cover its line.
func moveStock(tx *sql.Tx, orderID int64, sign float64) error {
	rows, err := tx.Query(`SELECT i.product_id, p.code, COALESCE(p.stock,0), SUM(i.qty)
		FROM order_items i JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ? GROUP BY i.product_id`, orderID)
	if err != nil {
		return err
	}
	type line struct {
		id         int64
		code       string
		stock, qty float64
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.id, &l.code, &l.stock, &l.qty); err != nil {
			rows.Close()
			return err
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := database.Now()
	for _, l := range lines {
		if sign < 0 && l.stock < l.qty {
			return &stockError{code: l.code, need: l.qty, onHand: l.stock}
		}
		if _, err := tx.Exec("UPDATE products SET stock = COALESCE(stock,0) + ?, updated_at = ? WHERE id = ?",
			sign*l.qty, now, l.id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateOrderStatus handles PUT /api/v1/orders/{id}/status {status}.
// Confirming takes the items out of stock; cancelling a confirmed or
// shipping order puts them back.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request, id string) {
	oid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "status", body.Status)
	validation.ValidateEnum(ve, "status", body.Status, validation.ValidOrderStatuses)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	var code, from string
	if err := tx.QueryRow("SELECT code, status FROM orders WHERE id=?", oid).Scan(&code, &from); err != nil {
		response.Err(w, "order not found", 404)
		return
	}
	if !validation.CanTransitionOrder(from, body.Status) {
		response.Err(w, fmt.Sprintf("cannot change order status from '%s' to '%s'", from, body.Status), 400)
		return
	}

	switch {
	case body.Status == "confirmed":
		err = moveStock(tx, oid, -1)
	case body.Status == "cancelled" && (from == "confirmed" || from == "shipping"):
		err = moveStock(tx, oid, 1)
	}
	var se *stockError
	if errors.As(err, &se) {
		response.Err(w, se.Error(), 409)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if _, err := tx.Exec("UPDATE orders SET status=?, updated_at=? WHERE id=?", body.Status, database.Now(), oid); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionUpdate, "orders", oid, fmt.Sprintf("Order %s: %s → %s", code, from, body.Status))
	if body.Status == "confirmed" || body.Status == "cancelled" {
		if h.Hub != nil {
			h.Hub.BroadcastChange("products", audit.ActionUpdate, 0)
		}
	}
	h.GetOrder(w, r, id)
}

// DeleteOrder handles DELETE /api/v1/orders/{id}. Only pending or
// cancelled orders hold no stock and may be deleted.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request, id string) {
	oid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var code, status string
	if err := h.DB.QueryRow("SELECT code, status FROM orders WHERE id=?", oid).Scan(&code, &status); err != nil {
		response.Err(w, "order not found", 404)
		return
	}
	if status != "pending" && status != "cancelled" {
		response.Err(w, fmt.Sprintf("order %s is %s and cannot be deleted", code, status), 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM orders WHERE id=?", oid); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionDelete, "orders", oid, "Deleted order "+code)
	response.JSON(w, map[string]any{"deleted": oid})
}
