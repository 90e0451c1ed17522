package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"smtparts/internal/audit"
	"smtparts/internal/auth"
	"smtparts/internal/database"
	"smtparts/internal/models"
	"smtparts/internal/response"
	"smtparts/internal/search"
	"smtparts/internal/validation"
)

const productSelect = `SELECT p.id, p.code, p.name, COALESCE(p.brand,''), COALESCE(p.machine_model,''),
	COALESCE(p.category,''), COALESCE(p.unit,''), p.stock, p.cost_price, p.sale_price, p.supplier_id,
	COALESCE(s.name,''), COALESCE(p.location,''), COALESCE(p.notes,''), p.created_at, p.updated_at
	FROM products p LEFT JOIN suppliers s ON p.supplier_id = s.id`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (models.Product, error) {
	var (
		p                 models.Product
		stock, cost, sale sql.NullFloat64
		supplierID        sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Brand, &p.MachineModel, &p.Category, &p.Unit,
		&stock, &cost, &sale, &supplierID, &p.SupplierName, &p.Location, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Stock = database.FloatPtr(stock)
	p.CostPrice = database.FloatPtr(cost)
	p.SalePrice = database.FloatPtr(sale)
	p.SupplierID = database.IntPtr(supplierID)
	return p, nil
}

// LoadProduct fetches one product by id.
func LoadProduct(db *sql.DB, id int64) (models.Product, error) {
	return scanProduct(db.QueryRow(productSelect+" WHERE p.id = ?", id))
}

func queryProducts(db *sql.DB, where string, args ...any) ([]models.Product, error) {
	q := productSelect
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY p.code"
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// LowStockProducts lists products whose known stock is at or below
// threshold, lowest first.
func LowStockProducts(db *sql.DB, threshold float64) ([]models.Product, error) {
	items, err := queryProducts(db, "p.stock IS NOT NULL AND p.stock <= ?", threshold)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return *items[i].Stock < *items[j].Stock })
	return items, nil
}

// productText is the text the catalog search ranks against.
func productText(p models.Product) string {
	return strings.Join([]string{p.Code, p.Name, p.Brand, p.MachineModel, p.Category, p.SupplierName}, " ")
}

// ListProducts handles GET /api/v1/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	qp := r.URL.Query()
	var (
		conds []string
		args  []any
	)
	if c := qp.Get("category"); c != "" {
		conds = append(conds, "p.category = ?")
		args = append(args, c)
	}
	if b := qp.Get("brand"); b != "" {
		conds = append(conds, "p.brand = ?")
		args = append(args, b)
	}
	if s := qp.Get("supplier_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			response.Err(w, "invalid supplier_id", 400)
			return
		}
		conds = append(conds, "p.supplier_id = ?")
		args = append(args, id)
	}
	if qp.Get("low_stock") == "true" {
		conds = append(conds, "p.stock IS NOT NULL AND p.stock <= ?")
		args = append(args, h.LowStock)
	}

	items, err := queryProducts(h.DB, strings.Join(conds, " AND "), args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if q := strings.TrimSpace(qp.Get("q")); q != "" {
		idx := search.Rank(q, len(items), func(i int) string { return productText(items[i]) })
		ranked := make([]models.Product, len(idx))
		for i, j := range idx {
			ranked[i] = items[j]
		}
		items = ranked
	}

	page, limit := response.Paging(r, 200)
	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := min(start+limit, total)
	response.JSONMeta(w, items[start:end], total, page, limit)
}

// GetProduct handles GET /api/v1/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request, id string) {
	pid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	p, err := LoadProduct(h.DB, pid)
	if err == sql.ErrNoRows {
		response.Err(w, "product not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, p)
}

// maxLength is the length cap for a product text column; create, PUT and
// PATCH share it.
func maxLength(col string) int {
	switch col {
	case "code":
		return 64
	case "name":
		return 255
	}
	return validation.MaxStringLength
}

func (h *Handler) validateProduct(ve *validation.ValidationErrors, p *models.Product) {
	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	validation.RequireField(ve, "code", p.Code)
	validation.ValidateCode(ve, "code", p.Code)
	validation.ValidateMaxLength(ve, "code", p.Code, maxLength("code"))
	validation.RequireField(ve, "name", p.Name)
	validation.ValidateMaxLength(ve, "name", p.Name, maxLength("name"))
	validation.ValidateMaxLength(ve, "notes", p.Notes, maxLength("notes"))
	validation.ValidateOptionalNonNegative(ve, "stock", p.Stock)
	validation.ValidateOptionalNonNegative(ve, "cost_price", p.CostPrice)
	validation.ValidateOptionalNonNegative(ve, "sale_price", p.SalePrice)
	if p.Stock != nil {
		validation.ValidateMaxQuantity(ve, "stock", *p.Stock)
	}
	if p.CostPrice != nil {
		validation.ValidateMaxPrice(ve, "cost_price", *p.CostPrice)
	}
	if p.SalePrice != nil {
		validation.ValidateMaxPrice(ve, "sale_price", *p.SalePrice)
	}
	if p.SupplierID != nil {
		validation.ValidateForeignKey(ve, h.DB, "supplier_id", "suppliers", *p.SupplierID)
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateProduct handles POST /api/v1/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	h.validateProduct(ve, &p)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	if p.Unit == "" {
		p.Unit = "cái"
	}

	now := database.Now()
	res, err := h.DB.Exec(`INSERT INTO products (code,name,brand,machine_model,category,unit,stock,cost_price,sale_price,supplier_id,location,notes,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.Code, p.Name, p.Brand, p.MachineModel, p.Category, p.Unit,
		database.NullFloat(p.Stock), database.NullFloat(p.CostPrice), database.NullFloat(p.SalePrice),
		database.NullInt(p.SupplierID), p.Location, p.Notes, now, now)
	if isUniqueViolation(err) {
		response.Err(w, fmt.Sprintf("product code %s already exists", p.Code), 409)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	id, _ := res.LastInsertId()
	h.logAudit(r, audit.ActionCreate, id, "Created product "+p.Code)

	created, err := LoadProduct(h.DB, id)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.Created(w, created)
}

// UpdateProduct handles PUT /api/v1/products/{id} with the full field set.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request, id string) {
	pid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var p models.Product
	if err := response.DecodeBody(r, &p); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	h.validateProduct(ve, &p)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	res, err := h.DB.Exec(`UPDATE products SET code=?,name=?,brand=?,machine_model=?,category=?,unit=?,stock=?,cost_price=?,sale_price=?,supplier_id=?,location=?,notes=?,updated_at=?
		WHERE id=?`,
		p.Code, p.Name, p.Brand, p.MachineModel, p.Category, p.Unit,
		database.NullFloat(p.Stock), database.NullFloat(p.CostPrice), database.NullFloat(p.SalePrice),
		database.NullInt(p.SupplierID), p.Location, p.Notes, database.Now(), pid)
	if isUniqueViolation(err) {
		response.Err(w, fmt.Sprintf("product code %s already exists", p.Code), 409)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		response.Err(w, "product not found", 404)
		return
	}
	h.logAudit(r, audit.ActionUpdate, pid, "Updated product "+p.Code)
	h.GetProduct(w, r, id)
}

// patchAssignments turns a partial field set into SET clauses. A JSON null
// clears numeric and reference fields; text fields are cleared to "".
func (h *Handler) patchAssignments(fields map[string]json.RawMessage) ([]string, []any, error) {
	ve := &validation.ValidationErrors{}
	var (
		sets []string
		args []any
	)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, col := range keys {
		raw := fields[col]
		if err := auth.ValidateColumnName(col); err != nil {
			ve.Add(col, err.Error())
			continue
		}
		isNull := string(raw) == "null"
		switch auth.ProductColumns[col] {
		case "number":
			if isNull {
				sets, args = append(sets, col+"=?"), append(args, nil)
				continue
			}
			var f float64
			if err := json.Unmarshal(raw, &f); err != nil {
				ve.Add(col, "must be a number")
				continue
			}
			validation.ValidateNonNegativeFloat(ve, col, f)
			if col == "stock" {
				validation.ValidateMaxQuantity(ve, col, f)
			} else {
				validation.ValidateMaxPrice(ve, col, f)
			}
			sets, args = append(sets, col+"=?"), append(args, f)
		case "id":
			if isNull {
				sets, args = append(sets, col+"=?"), append(args, nil)
				continue
			}
			var id int64
			if err := json.Unmarshal(raw, &id); err != nil {
				ve.Add(col, "must be an id")
				continue
			}
			validation.ValidateForeignKey(ve, h.DB, col, "suppliers", id)
			sets, args = append(sets, col+"=?"), append(args, database.NullInt(&id))
		default:
			var s string
			if !isNull {
				if err := json.Unmarshal(raw, &s); err != nil {
					ve.Add(col, "must be a string")
					continue
				}
			}
			s = strings.TrimSpace(s)
			switch col {
			case "code":
				validation.RequireField(ve, col, s)
				validation.ValidateCode(ve, col, s)
			case "name":
				validation.RequireField(ve, col, s)
			}
			validation.ValidateMaxLength(ve, col, s, maxLength(col))
			sets, args = append(sets, col+"=?"), append(args, s)
		}
	}
	if ve.HasErrors() {
		return nil, nil, ve
	}
	if len(sets) == 0 {
		return nil, nil, fmt.Errorf("no fields to update")
	}
	return sets, args, nil
}

func (h *Handler) applyPatch(id int64, sets []string, args []any) error {
	q := "UPDATE products SET " + strings.Join(sets, ", ") + ", updated_at=? WHERE id=?"
	res, err := h.DB.Exec(q, append(args, database.Now(), id)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PatchProduct handles PATCH /api/v1/products/{id}: only the supplied
// fields change. This is the bulk editor's row update.
func (h *Handler) PatchProduct(w http.ResponseWriter, r *http.Request, id string) {
	pid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var fields map[string]json.RawMessage
	if err := response.DecodeBody(r, &fields); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	sets, args, err := h.patchAssignments(fields)
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}
	err = h.applyPatch(pid, sets, args)
	switch {
	case err == sql.ErrNoRows:
		response.Err(w, "product not found", 404)
		return
	case isUniqueViolation(err):
		response.Err(w, "product code already exists", 409)
		return
	case err != nil:
		response.Err(w, err.Error(), 500)
		return
	}

	changed := make([]string, 0, len(fields))
	for k := range fields {
		changed = append(changed, k)
	}
	sort.Strings(changed)
	h.logAudit(r, audit.ActionUpdate, pid, "Updated "+strings.Join(changed, ", "))
	h.GetProduct(w, r, id)
}

// DeleteProduct handles DELETE /api/v1/products/{id}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request, id string) {
	pid, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var code string
	if err := h.DB.QueryRow("SELECT code FROM products WHERE id=?", pid).Scan(&code); err != nil {
		response.Err(w, "product not found", 404)
		return
	}
	if validation.HasReferences(h.DB, pid, []struct{ Table, Col string }{
		{"quotation_items", "product_id"},
		{"order_items", "product_id"},
	}) {
		response.Err(w, fmt.Sprintf("product %s is used by quotations or orders and cannot be deleted", code), 409)
		return
	}
	if _, err := h.DB.Exec("DELETE FROM products WHERE id=?", pid); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionDelete, pid, "Deleted product "+code)
	response.JSON(w, map[string]any{"deleted": pid})
}

// ListCategories handles GET /api/v1/products/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query("SELECT category, COUNT(*) FROM products WHERE COALESCE(category,'') != '' GROUP BY category ORDER BY category")
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()
	type cat struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	cats := []cat{}
	for rows.Next() {
		var c cat
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, cats)
}
