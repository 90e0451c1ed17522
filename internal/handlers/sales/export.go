package sales

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"

	"smtparts/internal/audit"
	"smtparts/internal/config"
	"smtparts/internal/format"
	"smtparts/internal/models"
	"smtparts/internal/response"
	"smtparts/internal/spreadsheet"
)

const quoteSheet = "Báo giá"

// QuotationWorkbook lays out a printable quotation: company header,
// customer block, item table and totals.
func QuotationWorkbook(co config.CompanyConfig, q models.Quotation) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", quoteSheet); err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	title, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
		Border: []excelize.Border{{Type: "bottom", Color: "#000000", Style: 1}},
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 3}) // #,##0
	if err != nil {
		f.Close()
		return nil, err
	}

	set := func(cell string, v any, style int) {
		f.SetCellValue(quoteSheet, cell, v)
		if style != 0 {
			f.SetCellStyle(quoteSheet, cell, cell, style)
		}
	}

	set("A1", co.Name, bold)
	set("A2", co.Address, 0)
	if co.TaxCode != "" {
		set("A3", "MST: "+co.TaxCode, 0)
	}
	if co.Phone != "" || co.Email != "" {
		set("A4", fmt.Sprintf("ĐT: %s  Email: %s", co.Phone, co.Email), 0)
	}

	f.MergeCell(quoteSheet, "A6", "G6")
	set("A6", "BÁO GIÁ", title)
	set("A7", "Số: "+q.Code, 0)
	set("E7", "Ngày: "+format.Date(q.CreatedAt), 0)
	set("A8", "Khách hàng: "+q.CustomerName, bold)
	set("E8", "Hiệu lực đến: "+format.Date(q.ValidUntil), 0)
	set("A9", "Trạng thái: "+format.Status(q.Status), 0)

	headers := []string{"STT", "Mã hàng", "Diễn giải", "SL", "Đơn giá", "CK (%)", "Thành tiền"}
	widths := []float64{6, 16, 40, 8, 14, 8, 16}
	const first = 10
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, first)
		set(cell, h, header)
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(quoteSheet, col, col, widths[i])
	}
	row := first + 1
	for i, it := range q.Items {
		values := []any{i + 1, it.ProductCode, it.Description, it.Qty, it.UnitPrice, it.Discount, it.LineTotal}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			style := 0
			if c == 4 || c == 6 {
				style = money
			}
			set(cell, v, style)
		}
		row++
	}

	row++
	for _, t := range []struct {
		label string
		value float64
	}{
		{"Cộng tiền hàng", q.Subtotal},
		{fmt.Sprintf("Thuế GTGT (%s)", format.Percent(q.VATRate)), q.VATAmount},
		{"Tổng cộng", q.Total},
	} {
		set(fmt.Sprintf("E%d", row), t.label, bold)
		set(fmt.Sprintf("G%d", row), t.value, money)
		row++
	}
	if q.Notes != "" {
		set(fmt.Sprintf("A%d", row+1), "Ghi chú: "+q.Notes, 0)
	}
	return f, nil
}

// ExportQuotation handles GET /api/v1/quotations/{id}/export?format=xlsx.
func (h *Handler) ExportQuotation(w http.ResponseWriter, r *http.Request, id string) {
	if f := r.URL.Query().Get("format"); f != "" && f != "xlsx" {
		response.Err(w, "format must be xlsx", 400)
		return
	}
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
	f, err := QuotationWorkbook(h.Company, q)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer f.Close()
	h.logAudit(r, audit.ActionExport, "quotations", qid, "Exported quotation "+q.Code)
	spreadsheet.ServeWorkbook(w, q.Code+".xlsx", f)
}
