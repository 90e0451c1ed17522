package dashboard

import (
	"database/sql"
	"net/http"
	"time"

	"smtparts/internal/handlers/catalog"
	"smtparts/internal/handlers/sales"
	"smtparts/internal/models"
	"smtparts/internal/response"
)

// Handler holds dependencies for the dashboard and reports.
type Handler struct {
	DB       *sql.DB
	LowStock float64
}

// Build gathers the dashboard figures. now fixes the month boundary.
func Build(db *sql.DB, lowStock float64, now time.Time) (models.DashboardData, error) {
	var d models.DashboardData
	for _, c := range []struct {
		dst   *int
		query string
	}{
		{&d.Products, "SELECT COUNT(*) FROM products"},
		{&d.Suppliers, "SELECT COUNT(*) FROM suppliers"},
		{&d.Customers, "SELECT COUNT(*) FROM customers"},
	} {
		if err := db.QueryRow(c.query).Scan(c.dst); err != nil {
			return d, err
		}
	}

	err := db.QueryRow("SELECT COUNT(*), COALESCE(SUM(total),0) FROM quotations WHERE status IN ('draft','sent')").
		Scan(&d.OpenQuotations, &d.OpenQuoteValue)
	if err != nil {
		return d, err
	}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format("2006-01-02 15:04:05")
	err = db.QueryRow("SELECT COUNT(*), COALESCE(SUM(total),0) FROM orders WHERE status != 'cancelled' AND created_at >= ?", monthStart).
		Scan(&d.OrdersThisMonth, &d.RevenueMonth)
	if err != nil {
		return d, err
	}

	if d.LowStock, err = catalog.LowStockProducts(db, lowStock); err != nil {
		return d, err
	}
	if d.Pipeline, err = sales.Board(db); err != nil {
		return d, err
	}
	// the board carries the deals; the dashboard only needs the totals
	for i := range d.Pipeline {
		d.Pipeline[i].Deals = []models.Deal{}
	}
	return d, nil
}

// GetDashboard handles GET /api/v1/dashboard.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := Build(h.DB, h.LowStock, time.Now())
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, d)
}
