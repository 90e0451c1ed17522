package dbcheck_test

import (
	"bytes"
	"database/sql"
	"log"
	"strings"
	"testing"

	"smtparts/internal/dbcheck"
	"smtparts/internal/testutil"
)

// seedProblems writes one instance of every problem. Foreign keys are off
// so orphans can exist, as they would after a manual edit.
func seedProblems(t *testing.T, db *sql.DB) {
	t.Helper()
	cust := testutil.InsertCustomer(t, db, "Canon VN")
	sup := testutil.InsertSupplier(t, db, "Topsmt")
	testutil.InsertProduct(t, db, "FDR-8", "Feeder 8mm", -2, 4500000)
	testutil.InsertProduct(t, db, "FDR-8B", "FEEDER  8MM", 1, 4500000)
	testutil.InsertProduct(t, db, "NZ-1", "Đầu hút", 5, 100)
	testutil.InsertProduct(t, db, "NZ-2", "dau hut", 5, 100)

	if _, err := db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		t.Fatal(err)
	}
	mustExec(t, db, "UPDATE products SET supplier_id = ? WHERE code = 'NZ-1'", sup+100)
	mustExec(t, db, `INSERT INTO quotations (id, code, customer_id, vat_rate, subtotal, vat_amount, total)
		VALUES (1, 'BG-2026-0001', ?, 10, 1000, 100, 1100)`, cust)
	mustExec(t, db, "INSERT INTO quotation_items (quotation_id, product_id, description, qty, unit_price) VALUES (1, 3, 'x', 3, 1000)")
	mustExec(t, db, "INSERT INTO order_items (order_id, description, qty, unit_price) VALUES (77, 'lost', 1, 10)")
}

func mustExec(t *testing.T, db *sql.DB, q string, args ...any) {
	t.Helper()
	if _, err := db.Exec(q, args...); err != nil {
		t.Fatalf("%s: %v", q, err)
	}
}

func TestDryRun(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedProblems(t, db)

	var buf bytes.Buffer
	c := &dbcheck.Checker{DB: db, Logger: log.New(&buf, "", 0)}
	rep, err := c.Run()
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]int{
		dbcheck.CheckNegativeStock:   1,
		dbcheck.CheckOrphanItem:      1,
		dbcheck.CheckMissingSupplier: 1,
		dbcheck.CheckTotalsDrift:     1,
		dbcheck.CheckDuplicateName:   2,
	}
	for check, n := range want {
		if got := rep.Count(check); got != n {
			t.Errorf("%s = %d, want %d", check, got, n)
		}
	}
	if rep.Fixed() != 0 {
		t.Errorf("dry run fixed %d", rep.Fixed())
	}
	if !strings.Contains(buf.String(), "BG-2026-0001 total 1100, items give 3300") {
		t.Errorf("log = %s", buf.String())
	}

	var total float64
	db.QueryRow("SELECT total FROM quotations WHERE id = 1").Scan(&total)
	if total != 1100 {
		t.Errorf("dry run changed total to %v", total)
	}
}

func TestFix(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedProblems(t, db)

	c := &dbcheck.Checker{DB: db, Fix: true}
	rep, err := c.Run()
	if err != nil {
		t.Fatal(err)
	}
	if rep.Fixed() != 2 {
		t.Errorf("fixed = %d", rep.Fixed())
	}

	var (
		total    float64
		lineSum  float64
		supplier sql.NullInt64
	)
	db.QueryRow("SELECT total FROM quotations WHERE id = 1").Scan(&total)
	db.QueryRow("SELECT SUM(line_total) FROM quotation_items WHERE quotation_id = 1").Scan(&lineSum)
	db.QueryRow("SELECT supplier_id FROM products WHERE code = 'NZ-1'").Scan(&supplier)
	if total != 3300 || lineSum != 3000 {
		t.Errorf("totals = %v / %v", total, lineSum)
	}
	if supplier.Valid {
		t.Errorf("supplier ref not cleared: %v", supplier.Int64)
	}

	rep, err = (&dbcheck.Checker{DB: db}).Run()
	if err != nil {
		t.Fatal(err)
	}
	if rep.Count(dbcheck.CheckTotalsDrift) != 0 || rep.Count(dbcheck.CheckMissingSupplier) != 0 {
		t.Errorf("second run = %+v", rep.Findings)
	}
}
