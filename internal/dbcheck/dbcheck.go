// Package dbcheck finds data inconsistencies the schema cannot prevent and
// repairs the ones that have an unambiguous fix.
package dbcheck

import (
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"

	"smtparts/internal/database"
	"smtparts/internal/models"
	"smtparts/internal/pricing"
	"smtparts/internal/search"
)

// Check names.
const (
	CheckNegativeStock   = "negative_stock"
	CheckOrphanItem      = "orphan_item"
	CheckMissingSupplier = "missing_supplier"
	CheckTotalsDrift     = "totals_drift"
	CheckDuplicateName   = "duplicate_name"
)

// Finding is one problem found.
type Finding struct {
	Check  string
	Table  string
	ID     int64
	Detail string
	Fixed  bool
}

func (f Finding) String() string {
	s := fmt.Sprintf("[%s] %s #%d: %s", f.Check, f.Table, f.ID, f.Detail)
	if f.Fixed {
		s += " (fixed)"
	}
	return s
}

// Report collects the findings of a run.
type Report struct {
	Findings []Finding
}

// Count returns the number of findings for check.
func (r *Report) Count(check string) int {
	n := 0
	for _, f := range r.Findings {
		if f.Check == check {
			n++
		}
	}
	return n
}

// Fixed returns the number of repaired findings.
func (r *Report) Fixed() int {
	n := 0
	for _, f := range r.Findings {
		if f.Fixed {
			n++
		}
	}
	return n
}

// Checker runs the checks. With Fix unset nothing is written.
type Checker struct {
	DB     *sql.DB
	Logger *log.Logger
	Fix    bool
}

func (c *Checker) add(rep *Report, f Finding) {
	rep.Findings = append(rep.Findings, f)
	if c.Logger != nil {
		c.Logger.Println(f.String())
	}
}

// Run executes every check in order.
func (c *Checker) Run() (*Report, error) {
	rep := &Report{}
	for _, step := range []struct {
		name string
		fn   func(*Report) error
	}{
		{CheckNegativeStock, c.negativeStock},
		{CheckOrphanItem, c.orphanItems},
		{CheckMissingSupplier, c.missingSuppliers},
		{CheckTotalsDrift, c.totalsDrift},
		{CheckDuplicateName, c.duplicateNames},
	} {
		if c.Logger != nil {
			c.Logger.Printf("running %s", step.name)
		}
		if err := step.fn(rep); err != nil {
			return rep, fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return rep, nil
}

func (c *Checker) negativeStock(rep *Report) error {
	rows, err := c.DB.Query("SELECT id, code, stock FROM products WHERE stock < 0 ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    int64
			code  string
			stock float64
		)
		if err := rows.Scan(&id, &code, &stock); err != nil {
			return err
		}
		// no safe repair: the real count has to come from a stocktake
		c.add(rep, Finding{Check: CheckNegativeStock, Table: "products", ID: id, Detail: fmt.Sprintf("%s has stock %g", code, stock)})
	}
	return rows.Err()
}

func (c *Checker) orphanItems(rep *Report) error {
	queries := []struct{ table, query, detail string }{
		{"quotation_items", "SELECT id, quotation_id FROM quotation_items WHERE quotation_id NOT IN (SELECT id FROM quotations)", "quotation %d does not exist"},
		{"order_items", "SELECT id, order_id FROM order_items WHERE order_id NOT IN (SELECT id FROM orders)", "order %d does not exist"},
		{"quotation_items", "SELECT id, product_id FROM quotation_items WHERE product_id IS NOT NULL AND product_id NOT IN (SELECT id FROM products)", "product %d does not exist"},
		{"order_items", "SELECT id, product_id FROM order_items WHERE product_id IS NOT NULL AND product_id NOT IN (SELECT id FROM products)", "product %d does not exist"},
	}
	for _, q := range queries {
		found, err := pairs(c.DB, q.query)
		if err != nil {
			return err
		}
		for _, p := range found {
			c.add(rep, Finding{Check: CheckOrphanItem, Table: q.table, ID: p[0], Detail: fmt.Sprintf(q.detail, p[1])})
		}
	}
	return nil
}

func (c *Checker) missingSuppliers(rep *Report) error {
	found, err := pairs(c.DB, "SELECT id, supplier_id FROM products WHERE supplier_id IS NOT NULL AND supplier_id NOT IN (SELECT id FROM suppliers) ORDER BY id")
	if err != nil {
		return err
	}
	for _, p := range found {
		f := Finding{Check: CheckMissingSupplier, Table: "products", ID: p[0], Detail: fmt.Sprintf("supplier %d does not exist", p[1])}
		if c.Fix {
			if _, err := c.DB.Exec("UPDATE products SET supplier_id = NULL, updated_at = ? WHERE id = ?", database.Now(), p[0]); err != nil {
				return err
			}
			f.Fixed = true
		}
		c.add(rep, f)
	}
	return nil
}

// pairs reads a two-integer-column result fully before returning.
func pairs(db *sql.DB, query string) ([][2]int64, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][2]int64
	for rows.Next() {
		var p [2]int64
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type document struct {
	id     int64
	code   string
	vat    float64
	stored pricing.Totals
}

func (c *Checker) totalsDrift(rep *Report) error {
	for _, t := range []struct{ table, items, fk string }{
		{"quotations", "quotation_items", "quotation_id"},
		{"orders", "order_items", "order_id"},
	} {
		docs, err := loadDocuments(c.DB, t.table)
		if err != nil {
			return err
		}
		for _, d := range docs {
			items, err := loadItems(c.DB, t.items, t.fk, d.id)
			if err != nil {
				return err
			}
			computed := pricing.Compute(items, d.vat)
			if !pricing.Drift(d.stored, computed) {
				continue
			}
			f := Finding{Check: CheckTotalsDrift, Table: t.table, ID: d.id,
				Detail: fmt.Sprintf("%s total %.0f, items give %.0f", d.code, d.stored.Total, computed.Total)}
			if c.Fix {
				if err := c.rewriteTotals(t.table, t.items, d.id, items, computed); err != nil {
					return err
				}
				f.Fixed = true
			}
			c.add(rep, f)
		}
	}
	return nil
}

func loadDocuments(db *sql.DB, table string) ([]document, error) {
	rows, err := db.Query("SELECT id, code, vat_rate, subtotal, vat_amount, total FROM " + table + " ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []document
	for rows.Next() {
		var d document
		if err := rows.Scan(&d.id, &d.code, &d.vat, &d.stored.Subtotal, &d.stored.VATAmount, &d.stored.Total); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func loadItems(db *sql.DB, table, fk string, parent int64) ([]models.LineItem, error) {
	rows, err := db.Query("SELECT id, qty, unit_price, discount FROM "+table+" WHERE "+fk+" = ? ORDER BY id", parent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.LineItem
	for rows.Next() {
		it := models.LineItem{ParentID: parent}
		if err := rows.Scan(&it.ID, &it.Qty, &it.UnitPrice, &it.Discount); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (c *Checker) rewriteTotals(table, itemTable string, id int64, items []models.LineItem, t pricing.Totals) error {
	tx, err := c.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, it := range items {
		if _, err := tx.Exec("UPDATE "+itemTable+" SET line_total = ? WHERE id = ?", it.LineTotal, it.ID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec("UPDATE "+table+" SET subtotal = ?, vat_amount = ?, total = ?, updated_at = ? WHERE id = ?",
		t.Subtotal, t.VATAmount, t.Total, database.Now(), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *Checker) duplicateNames(rep *Report) error {
	rows, err := c.DB.Query("SELECT id, code, name FROM products ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()
	type entry struct {
		id   int64
		code string
	}
	groups := map[string][]entry{}
	for rows.Next() {
		var (
			e    entry
			name string
		)
		if err := rows.Scan(&e.id, &e.code, &name); err != nil {
			return err
		}
		key := search.Fold(name)
		groups[key] = append(groups[key], e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	keys := make([]string, 0, len(groups))
	for k, g := range groups {
		if len(g) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		g := groups[k]
		codes := make([]string, len(g))
		for i, e := range g {
			codes[i] = e.code
		}
		// merging duplicates needs a human decision
		c.add(rep, Finding{Check: CheckDuplicateName, Table: "products", ID: g[0].id,
			Detail: fmt.Sprintf("%q shared by %s", k, strings.Join(codes, ", "))})
	}
	return nil
}
