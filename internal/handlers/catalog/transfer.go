package catalog

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smtparts/internal/audit"
	"smtparts/internal/database"
	"smtparts/internal/response"
	"smtparts/internal/spreadsheet"
	"smtparts/internal/validation"
)

// productSheetColumns is the export layout, also the import header set.
var productSheetColumns = []struct {
	key, label string
}{
	{"code", "Mã"},
	{"name", "Tên sản phẩm"},
	{"brand", "Hãng"},
	{"machine_model", "Model máy"},
	{"category", "Danh mục"},
	{"unit", "Đơn vị"},
	{"stock", "Tồn kho"},
	{"cost_price", "Giá vốn"},
	{"sale_price", "Giá bán"},
	{"supplier", "Nhà cung cấp"},
	{"location", "Vị trí"},
	{"notes", "Ghi chú"},
}

// ImportAliases maps canonical keys to the header spellings accepted on
// import.
var ImportAliases = map[string][]string{
	"code":          {"Mã", "Mã hàng", "Mã SP", "Part number", "P/N"},
	"name":          {"Tên sản phẩm", "Tên", "Tên hàng", "Description"},
	"brand":         {"Hãng", "Hãng sản xuất", "Brand"},
	"machine_model": {"Model máy", "Model", "Machine"},
	"category":      {"Danh mục", "Loại", "Category"},
	"unit":          {"Đơn vị", "ĐVT", "Unit"},
	"stock":         {"Tồn kho", "Số lượng", "SL", "Stock", "Qty"},
	"cost_price":    {"Giá vốn", "Giá nhập", "Cost"},
	"sale_price":    {"Giá bán", "Đơn giá", "Price"},
	"supplier":      {"Nhà cung cấp", "NCC", "Supplier"},
	"location":      {"Vị trí", "Kệ", "Location"},
	"notes":         {"Ghi chú", "Notes"},
}

func numberCell(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func numberText(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// ExportProducts handles GET /api/v1/products/export?format=csv|xlsx.
func (h *Handler) ExportProducts(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "csv" {
		response.Err(w, "format must be csv or xlsx", 400)
		return
	}
	var (
		where string
		args  []any
	)
	if c := r.URL.Query().Get("category"); c != "" {
		where, args = "p.category = ?", []any{c}
	}
	items, err := queryProducts(h.DB, where, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}

	headers := make([]string, len(productSheetColumns))
	for i, c := range productSheetColumns {
		headers[i] = c.label
	}
	h.logAudit(r, audit.ActionExport, 0, fmt.Sprintf("Exported %d products as %s", len(items), format))

	name := "san-pham-" + time.Now().Format("20060102")
	if format == "csv" {
		data := make([][]string, len(items))
		for i, p := range items {
			data[i] = []string{p.Code, p.Name, p.Brand, p.MachineModel, p.Category, p.Unit,
				numberText(p.Stock), numberText(p.CostPrice), numberText(p.SalePrice),
				p.SupplierName, p.Location, p.Notes}
		}
		spreadsheet.ServeCSV(w, name+".csv", headers, data)
		return
	}

	data := make([][]any, len(items))
	for i, p := range items {
		data[i] = []any{p.Code, p.Name, p.Brand, p.MachineModel, p.Category, p.Unit,
			numberCell(p.Stock), numberCell(p.CostPrice), numberCell(p.SalePrice),
			p.SupplierName, p.Location, p.Notes}
	}
	f, err := spreadsheet.NewWorkbook("Sản phẩm", headers, data)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer f.Close()
	spreadsheet.ServeWorkbook(w, name+".xlsx", f)
}

// ImportResult summarises a catalog import.
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

func parseOptionalNumber(s string) (*float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ImportProducts upserts products keyed by code from spreadsheet records.
// Cells that are blank in the sheet leave the stored value alone on update.
// Unknown supplier names are created.
func ImportProducts(db *sql.DB, recs []spreadsheet.Record) (ImportResult, error) {
	res := ImportResult{Errors: []string{}}
	tx, err := db.Begin()
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	suppliers := make(map[string]int64)
	supplierID := func(name string) (*int64, error) {
		if name == "" {
			return nil, nil
		}
		if id, ok := suppliers[name]; ok {
			return &id, nil
		}
		var id int64
		err := tx.QueryRow("SELECT id FROM suppliers WHERE name = ?", name).Scan(&id)
		if err == sql.ErrNoRows {
			r, err := tx.Exec("INSERT INTO suppliers (name) VALUES (?)", name)
			if err != nil {
				return nil, err
			}
			id, _ = r.LastInsertId()
		} else if err != nil {
			return nil, err
		}
		suppliers[name] = id
		return &id, nil
	}

	now := database.Now()
	for _, rec := range recs {
		v := rec.Values
		code := strings.TrimSpace(v["code"])
		ve := &validation.ValidationErrors{}
		validation.RequireField(ve, "code", code)
		validation.ValidateCode(ve, "code", code)

		nums := make(map[string]*float64)
		for _, k := range []string{"stock", "cost_price", "sale_price"} {
			n, err := parseOptionalNumber(v[k])
			if err != nil {
				ve.Add(k, "must be a number")
				continue
			}
			validation.ValidateOptionalNonNegative(ve, k, n)
			nums[k] = n
		}
		if ve.HasErrors() {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %s", rec.Line, ve.Error()))
			continue
		}
		sid, err := supplierID(strings.TrimSpace(v["supplier"]))
		if err != nil {
			return res, fmt.Errorf("row %d supplier: %w", rec.Line, err)
		}

		var id int64
		err = tx.QueryRow("SELECT id FROM products WHERE code = ?", code).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
			if strings.TrimSpace(v["name"]) == "" {
				res.Skipped++
				res.Errors = append(res.Errors, fmt.Sprintf("row %d: name: is required", rec.Line))
				continue
			}
			unit := v["unit"]
			if unit == "" {
				unit = "cái"
			}
			_, err = tx.Exec(`INSERT INTO products (code,name,brand,machine_model,category,unit,stock,cost_price,sale_price,supplier_id,location,notes,created_at,updated_at)
				VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				code, v["name"], v["brand"], v["machine_model"], v["category"], unit,
				database.NullFloat(nums["stock"]), database.NullFloat(nums["cost_price"]), database.NullFloat(nums["sale_price"]),
				database.NullInt(sid), v["location"], v["notes"], now, now)
			if err != nil {
				return res, fmt.Errorf("row %d insert: %w", rec.Line, err)
			}
			res.Created++
		case err != nil:
			return res, err
		default:
			var (
				sets []string
				args []any
			)
			for _, k := range []string{"name", "brand", "machine_model", "category", "unit", "location", "notes"} {
				if s, ok := v[k]; ok && s != "" {
					sets, args = append(sets, k+"=?"), append(args, s)
				}
			}
			for _, k := range []string{"stock", "cost_price", "sale_price"} {
				if nums[k] != nil {
					sets, args = append(sets, k+"=?"), append(args, *nums[k])
				}
			}
			if sid != nil {
				sets, args = append(sets, "supplier_id=?"), append(args, *sid)
			}
			if len(sets) == 0 {
				res.Skipped++
				continue
			}
			args = append(args, now, id)
			if _, err := tx.Exec("UPDATE products SET "+strings.Join(sets, ", ")+", updated_at=? WHERE id=?", args...); err != nil {
				return res, fmt.Errorf("row %d update: %w", rec.Line, err)
			}
			res.Updated++
		}
	}
	return res, tx.Commit()
}

// ImportProductsUpload handles POST /api/v1/products/import (multipart
// field "file", xlsx).
func (h *Handler) ImportProductsUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxImportSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		response.Err(w, "file is required", 400)
		return
	}
	defer file.Close()

	ve := &validation.ValidationErrors{}
	validation.ValidateImportUpload(ve, header.Filename, header.Size)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	recs, err := spreadsheet.ReadRecords(file, ImportAliases)
	if err != nil {
		response.Err(w, err.Error(), 400)
		return
	}
	result, err := ImportProducts(h.DB, recs)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionImport, 0, fmt.Sprintf("Imported %s: %d created, %d updated, %d skipped",
		header.Filename, result.Created, result.Updated, result.Skipped))
	response.JSON(w, result)
}
