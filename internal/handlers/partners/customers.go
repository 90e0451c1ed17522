package partners

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"smtparts/internal/audit"
	"smtparts/internal/models"
	"smtparts/internal/response"
	"smtparts/internal/validation"
)

const customerSelect = `SELECT id, name, COALESCE(company,''), COALESCE(contact_name,''), COALESCE(phone,''),
	COALESCE(email,''), COALESCE(address,''), COALESCE(tax_code,''), COALESCE(notes,''), created_at FROM customers`

func scanCustomer(row interface{ Scan(...any) error }) (models.Customer, error) {
	var c models.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Company, &c.ContactName, &c.Phone, &c.Email, &c.Address, &c.TaxCode, &c.Notes, &c.CreatedAt)
	return c, err
}

func validateCustomer(ve *validation.ValidationErrors, c *models.Customer) {
	c.Name = strings.TrimSpace(c.Name)
	validation.RequireField(ve, "name", c.Name)
	validation.ValidateMaxLength(ve, "name", c.Name, 255)
	validation.ValidateMaxLength(ve, "company", c.Company, 255)
	validation.ValidateMaxLength(ve, "contact_name", c.ContactName, 255)
	validation.ValidateMaxLength(ve, "address", c.Address, 500)
	validation.ValidateMaxLength(ve, "notes", c.Notes, validation.MaxStringLength)
	validation.ValidatePhone(ve, "phone", c.Phone)
	validation.ValidateEmail(ve, "email", c.Email)
	validation.ValidateTaxCode(ve, "tax_code", c.TaxCode)
}

// ListCustomers handles GET /api/v1/customers?q=.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query(customerSelect + " ORDER BY name")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		items = append(items, c)
	}
	items = rank(items, r.URL.Query().Get("q"), func(c models.Customer) string {
		return c.Name + " " + c.Company + " " + c.ContactName + " " + c.Phone + " " + c.TaxCode
	})
	response.JSON(w, items)
}

// GetCustomer handles GET /api/v1/customers/{id}.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request, id string) {
	cid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	c, err := scanCustomer(h.DB.QueryRow(customerSelect+" WHERE id=?", cid))
	if err == sql.ErrNoRows {
		response.Err(w, "customer not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, c)
}

// CreateCustomer handles POST /api/v1/customers.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var c models.Customer
	if err := response.DecodeBody(r, &c); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validateCustomer(ve, &c)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	res, err := h.DB.Exec("INSERT INTO customers (name,company,contact_name,phone,email,address,tax_code,notes) VALUES (?,?,?,?,?,?,?,?)",
		c.Name, c.Company, c.ContactName, c.Phone, c.Email, c.Address, c.TaxCode, c.Notes)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	c.ID, _ = res.LastInsertId()
	h.logAudit(r, audit.ActionCreate, "customers", c.ID, "Created customer "+c.Name)

	created, err := scanCustomer(h.DB.QueryRow(customerSelect+" WHERE id=?", c.ID))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.Created(w, created)
}

// UpdateCustomer handles PUT /api/v1/customers/{id}.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request, id string) {
	cid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var c models.Customer
	if err := response.DecodeBody(r, &c); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validateCustomer(ve, &c)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	res, err := h.DB.Exec("UPDATE customers SET name=?,company=?,contact_name=?,phone=?,email=?,address=?,tax_code=?,notes=? WHERE id=?",
		c.Name, c.Company, c.ContactName, c.Phone, c.Email, c.Address, c.TaxCode, c.Notes, cid)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "customer not found", 404)
		return
	}
	h.logAudit(r, audit.ActionUpdate, "customers", cid, "Updated customer "+c.Name)
	h.GetCustomer(w, r, id)
}

// DeleteCustomer handles DELETE /api/v1/customers/{id}. Customers with
// quotations, orders or deals are kept.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request, id string) {
	cid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var name string
	if err := h.DB.QueryRow("SELECT name FROM customers WHERE id=?", cid).Scan(&name); err != nil {
		response.Err(w, "customer not found", 404)
		return
	}
	for _, table := range []string{"quotations", "orders", "deals"} {
		var n int
		h.DB.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE customer_id=?", cid).Scan(&n)
		if n > 0 {
			response.Err(w, fmt.Sprintf("cannot delete customer: %d %s reference it", n, table), 409)
			return
		}
	}
	if _, err := h.DB.Exec("DELETE FROM customers WHERE id=?", cid); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionDelete, "customers", cid, "Deleted customer "+name)
	response.JSON(w, map[string]any{"deleted": cid})
}
