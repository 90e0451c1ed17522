package dashboard

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"smtparts/internal/pricing"
	"smtparts/internal/response"
	"smtparts/internal/spreadsheet"
)

// ValuationItem is one product line of the stock valuation.
type ValuationItem struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Stock     float64 `json:"stock"`
	CostPrice float64 `json:"cost_price"`
	Subtotal  float64 `json:"subtotal"`
}

// ValuationGroup groups valuation items by category.
type ValuationGroup struct {
	Category string          `json:"category"`
	Items    []ValuationItem `json:"items"`
	Subtotal float64         `json:"subtotal"`
}

// ValuationReport values stock on hand at cost.
type ValuationReport struct {
	Groups     []ValuationGroup `json:"groups"`
	GrandTotal float64          `json:"grand_total"`
}

// StockValuation handles GET /api/v1/reports/stock-value?format=csv.
// Products without a stock figure are left out; a missing cost counts as 0.
func (h *Handler) StockValuation(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.Query(`SELECT code, name, COALESCE(NULLIF(category,''),'Khác'), stock, COALESCE(cost_price,0)
		FROM products WHERE stock IS NOT NULL AND stock > 0 ORDER BY category, code`)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer rows.Close()

	groups := map[string][]ValuationItem{}
	var order []string
	for rows.Next() {
		var it ValuationItem
		if err := rows.Scan(&it.Code, &it.Name, &it.Category, &it.Stock, &it.CostPrice); err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
		it.Subtotal = pricing.Round(it.Stock * it.CostPrice)
		if _, ok := groups[it.Category]; !ok {
			order = append(order, it.Category)
		}
		groups[it.Category] = append(groups[it.Category], it)
	}

	report := ValuationReport{Groups: []ValuationGroup{}}
	for _, cat := range order {
		g := ValuationGroup{Category: cat, Items: groups[cat]}
		for _, it := range g.Items {
			g.Subtotal += it.Subtotal
		}
		report.GrandTotal += g.Subtotal
		report.Groups = append(report.Groups, g)
	}

	if r.URL.Query().Get("format") == "csv" {
		var data [][]string
		num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
		for _, g := range report.Groups {
			for _, it := range g.Items {
				data = append(data, []string{g.Category, it.Code, it.Name, num(it.Stock), num(it.CostPrice), num(it.Subtotal)})
			}
		}
		data = append(data, []string{"", "", "Tổng cộng", "", "", num(report.GrandTotal)})
		spreadsheet.ServeCSV(w, fmt.Sprintf("gia-tri-ton-kho-%s.csv", time.Now().Format("20060102")),
			[]string{"Danh mục", "Mã", "Tên sản phẩm", "Tồn kho", "Giá vốn", "Thành tiền"}, data)
		return
	}
	response.JSON(w, report)
}
