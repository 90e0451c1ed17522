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

const supplierSelect = `SELECT id, name, COALESCE(contact_name,''), COALESCE(phone,''), COALESCE(email,''),
	COALESCE(address,''), COALESCE(tax_code,''), COALESCE(country,''), COALESCE(notes,''), created_at FROM suppliers`

func scanSupplier(row interface{ Scan(...any) error }) (models.Supplier, error) {
	var s models.Supplier
	err := row.Scan(&s.ID, &s.Name, &s.ContactName, &s.Phone, &s.Email, &s.Address, &s.TaxCode, &s.Country, &s.Notes, &s.CreatedAt)
	return s, err
}

func validateSupplier(ve *validation.ValidationErrors, s *models.Supplier) {
	s.Name = strings.TrimSpace(s.Name)
	validation.RequireField(ve, "name", s.Name)
	validation.ValidateMaxLength(ve, "name", s.Name, 255)
	validation.ValidateMaxLength(ve, "contact_name", s.ContactName, 255)
	validation.ValidateMaxLength(ve, "address", s.Address, 500)
	validation.ValidateMaxLength(ve, "notes", s.Notes, validation.MaxStringLength)
	validation.ValidatePhone(ve, "phone", s.Phone)
	validation.ValidateEmail(ve, "email", s.Email)
	validation.ValidateTaxCode(ve, "tax_code", s.TaxCode)
}

// ListSuppliers handles GET /api/v1/suppliers?q=.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query(supplierSelect + " ORDER BY name")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	items := []models.Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		items = append(items, s)
	}
	items = rank(items, r.URL.Query().Get("q"), func(s models.Supplier) string {
		return s.Name + " " + s.ContactName + " " + s.Country + " " + s.TaxCode
	})
	response.JSON(w, items)
}

// GetSupplier handles GET /api/v1/suppliers/{id}.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request, id string) {
	sid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	s, err := scanSupplier(h.DB.QueryRow(supplierSelect+" WHERE id=?", sid))
	if err == sql.ErrNoRows {
		response.Err(w, "supplier not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, s)
}

// CreateSupplier handles POST /api/v1/suppliers.
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var s models.Supplier
	if err := response.DecodeBody(r, &s); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validateSupplier(ve, &s)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	res, err := h.DB.Exec("INSERT INTO suppliers (name,contact_name,phone,email,address,tax_code,country,notes) VALUES (?,?,?,?,?,?,?,?)",
		s.Name, s.ContactName, s.Phone, s.Email, s.Address, s.TaxCode, s.Country, s.Notes)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	s.ID, _ = res.LastInsertId()
	h.logAudit(r, audit.ActionCreate, "suppliers", s.ID, "Created supplier "+s.Name)

	created, err := scanSupplier(h.DB.QueryRow(supplierSelect+" WHERE id=?", s.ID))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.Created(w, created)
}

// UpdateSupplier handles PUT /api/v1/suppliers/{id}.
func (h *Handler) UpdateSupplier(w http.ResponseWriter, r *http.Request, id string) {
	sid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var s models.Supplier
	if err := response.DecodeBody(r, &s); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validateSupplier(ve, &s)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	res, err := h.DB.Exec("UPDATE suppliers SET name=?,contact_name=?,phone=?,email=?,address=?,tax_code=?,country=?,notes=? WHERE id=?",
		s.Name, s.ContactName, s.Phone, s.Email, s.Address, s.TaxCode, s.Country, s.Notes, sid)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "supplier not found", 404)
		return
	}
	h.logAudit(r, audit.ActionUpdate, "suppliers", sid, "Updated supplier "+s.Name)
	h.GetSupplier(w, r, id)
}

// DeleteSupplier handles DELETE /api/v1/suppliers/{id}.
func (h *Handler) DeleteSupplier(w http.ResponseWriter, r *http.Request, id string) {
	sid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var name string
	if err := h.DB.QueryRow("SELECT name FROM suppliers WHERE id=?", sid).Scan(&name); err != nil {
		response.Err(w, "supplier not found", 404)
		return
	}
	var n int
	h.DB.QueryRow("SELECT COUNT(*) FROM products WHERE supplier_id=?", sid).Scan(&n)
	if n > 0 {
		response.Err(w, fmt.Sprintf("cannot delete supplier: %d products reference it", n), 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM suppliers WHERE id=?", sid); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionDelete, "suppliers", sid, "Deleted supplier "+name)
	response.JSON(w, map[string]any{"deleted": sid})
}
