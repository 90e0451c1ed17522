package dashboard_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"smtparts/internal/handlers/dashboard"
	"smtparts/internal/models"
	"smtparts/internal/testutil"
)

func TestBuild(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cust := testutil.InsertCustomer(t, db, "Canon VN")
	testutil.InsertSupplier(t, db, "Topsmt")
	testutil.InsertProduct(t, db, "FDR-8", "Feeder", 2, 4500000)
	testutil.InsertProduct(t, db, "NZ-72A", "Nozzle", 40, 750000)
	testutil.InsertProduct(t, db, "BLT-1", "Belt", 0, 320000)

	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local)
	db.Exec(`INSERT INTO quotations (code, customer_id, status, total) VALUES
		('BG-2026-0001', ?, 'draft', 1000000), ('BG-2026-0002', ?, 'sent', 2000000), ('BG-2026-0003', ?, 'rejected', 9000000)`, cust, cust, cust)
	db.Exec(`INSERT INTO orders (code, customer_id, status, total, created_at) VALUES
		('DH-2026-0001', ?, 'confirmed', 5000000, '2026-10-02 10:00:00'),
		('DH-2026-0002', ?, 'cancelled', 7000000, '2026-10-03 10:00:00'),
		('DH-2026-0003', ?, 'delivered', 8000000, '2026-09-28 10:00:00')`, cust, cust, cust)
	db.Exec(`INSERT INTO deals (title, value, stage) VALUES ('A', 100, 'lead'), ('B', 50, 'lead'), ('C', 70, 'won')`)

	d, err := dashboard.Build(db, 5, now)
	if err != nil {
		t.Fatal(err)
	}
	if d.Products != 3 || d.Suppliers != 1 || d.Customers != 1 {
		t.Errorf("counts = %d/%d/%d", d.Products, d.Suppliers, d.Customers)
	}
	if d.OpenQuotations != 2 || d.OpenQuoteValue != 3000000 {
		t.Errorf("open quotations = %d (%v)", d.OpenQuotations, d.OpenQuoteValue)
	}
	if d.OrdersThisMonth != 1 || d.RevenueMonth != 5000000 {
		t.Errorf("month = %d (%v)", d.OrdersThisMonth, d.RevenueMonth)
	}
	if len(d.LowStock) != 2 || d.LowStock[0].Code != "BLT-1" {
		t.Errorf("low stock = %+v", d.LowStock)
	}
	if len(d.Pipeline) != 6 || d.Pipeline[0].TotalValue != 150 || d.Pipeline[4].TotalValue != 70 {
		t.Errorf("pipeline = %+v", d.Pipeline)
	}
	if len(d.Pipeline[0].Deals) != 0 {
		t.Error("dashboard pipeline should not carry deals")
	}
}

func TestStockValuation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	tok := testutil.LoginAdmin(t, db)
	db.Exec(`INSERT INTO products (code, name, category, stock, cost_price) VALUES
		('FDR-8', 'Feeder', 'Feeder', 2, 4000000),
		('FDR-12', 'Feeder 12', 'Feeder', 1, 4200000),
		('NZ-1', 'Nozzle', 'Nozzle', 10, 500000),
		('X-1', 'Unknown stock', 'Nozzle', NULL, 1),
		('Y-1', 'No cost', '', 3, NULL)`)
	h := &dashboard.Handler{DB: db}

	w := httptest.NewRecorder()
	h.StockValuation(w, testutil.AuthedRequest("GET", "/api/v1/reports/stock-value", nil, tok))
	testutil.AssertStatus(t, w, 200)
	var rep dashboard.ValuationReport
	testutil.DecodeEnvelope(t, w, &rep)
	if rep.GrandTotal != 17200000 {
		t.Errorf("grand total = %v", rep.GrandTotal)
	}
	if len(rep.Groups) != 3 {
		t.Fatalf("groups = %+v", rep.Groups)
	}

	w = httptest.NewRecorder()
	h.StockValuation(w, testutil.AuthedRequest("GET", "/api/v1/reports/stock-value?format=csv", nil, tok))
	testutil.AssertStatus(t, w, 200)
	if body := w.Body.String(); !strings.Contains(body, "Tổng cộng,,,17200000") {
		t.Errorf("csv = %q", body)
	}
}

func TestGetDashboard(t *testing.T) {
	db := testutil.SetupTestDB(t)
	tok := testutil.LoginAdmin(t, db)
	h := &dashboard.Handler{DB: db, LowStock: 5}
	w := httptest.NewRecorder()
	h.GetDashboard(w, testutil.AuthedRequest("GET", "/api/v1/dashboard", nil, tok))
	testutil.AssertStatus(t, w, 200)
	var d models.DashboardData
	testutil.DecodeEnvelope(t, w, &d)
	if d.LowStock == nil || len(d.Pipeline) != 6 {
		t.Errorf("empty dashboard = %+v", d)
	}
}
