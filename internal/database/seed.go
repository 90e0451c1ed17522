package database

import (
	"database/sql"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"

	"smtparts/internal/models"
	"smtparts/internal/pricing"
)

// EnsureAdmin creates the admin user if it does not exist yet.
func EnsureAdmin(db *sql.DB, password string) error {
	var count int
	db.QueryRow("SELECT COUNT(*) FROM users WHERE username = 'admin'").Scan(&count)
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	_, err = db.Exec("INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)",
		"admin", string(hash), "Quản trị viên", "admin")
	return err
}

// Reset deletes all business data, keeping users and sessions.
func Reset(db *sql.DB) error {
	for _, t := range BusinessTables {
		if _, err := db.Exec("DELETE FROM " + t); err != nil {
			return fmt.Errorf("reset %s: %w", t, err)
		}
	}
	return nil
}

type sampleProduct struct {
	code, name, brand, model, category, unit string
	stock, cost, sale                        float64
	supplier                                 int
	location                                 string
}

var sampleProducts = []sampleProduct{
	{"KW1-M1200-100", "Feeder CL 8x2mm", "Yamaha", "YV100XG", "Feeder", "cái", 12, 3500000, 4800000, 1, "Kệ A1"},
	{"KHY-M7710-A0", "Nozzle 72A", "Yamaha", "YS24", "Nozzle", "cái", 40, 450000, 750000, 1, "Hộp N3"},
	{"AA8LT00", "Nozzle H08 1.0", "Fuji", "NXT III", "Nozzle", "cái", 25, 600000, 980000, 2, "Hộp N1"},
	{"W08F-8MM", "Feeder W08f NXT", "Fuji", "NXT", "Feeder", "cái", 6, 9800000, 13500000, 2, "Kệ A2"},
	{"N610071334AA", "Belt CM402 conveyor", "Panasonic", "CM402", "Belt", "sợi", 30, 180000, 320000, 3, "Kệ C4"},
	{"KXFW1KS5A00", "Sensor vacuum NPM", "Panasonic", "NPM-D3", "Sensor", "cái", 4, 2100000, 3400000, 3, "Tủ S1"},
	{"E3600-729-0A0", "Nozzle 503 Juki", "Juki", "RS-1", "Nozzle", "cái", 0, 380000, 620000, 1, "Hộp N2"},
	{"40044535", "Filter head Juki", "Juki", "KE-2070", "Filter", "cái", 200, 15000, 35000, 1, "Hộp F1"},
}

// SeedSample populates an empty catalog with sample suppliers, customers,
// products, a quotation, an order and pipeline deals.
func SeedSample(db *sql.DB) error {
	var count int
	db.QueryRow("SELECT COUNT(*) FROM products").Scan(&count)
	if count > 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	suppliers := []models.Supplier{
		{Name: "Shenzhen Topsmt Co.", ContactName: "Lily Chen", Phone: "+86 755 2345 6789", Email: "sales@topsmt.example", Country: "China"},
		{Name: "Fuji Parts Japan", ContactName: "Tanaka", Phone: "+81 52 123 4567", Email: "parts@fuji.example", Country: "Japan"},
		{Name: "Công ty TNHH Linh kiện SMT Sài Gòn", ContactName: "Anh Minh", Phone: "028 3812 3456", Email: "minh@smtsg.example", TaxCode: "0312345678", Country: "Việt Nam"},
	}
	supplierIDs := make([]int64, len(suppliers))
	for i, s := range suppliers {
		res, err := tx.Exec("INSERT INTO suppliers (name,contact_name,phone,email,tax_code,country) VALUES (?,?,?,?,?,?)",
			s.Name, s.ContactName, s.Phone, s.Email, s.TaxCode, s.Country)
		if err != nil {
			return fmt.Errorf("seed supplier: %w", err)
		}
		supplierIDs[i], _ = res.LastInsertId()
	}

	customers := []models.Customer{
		{Name: "Nguyễn Văn An", Company: "Công ty CP Điện tử Bắc Ninh", Phone: "0912 345 678", Email: "an.nguyen@dtbn.example", TaxCode: "2300123456", Address: "KCN Quế Võ, Bắc Ninh"},
		{Name: "Trần Thị Bình", Company: "Samtech Vina", Phone: "0987 654 321", Email: "binh@samtech.example", Address: "KCN Yên Phong, Bắc Ninh"},
		{Name: "Lê Quốc Cường", Company: "EMS Hải Phòng", Phone: "0903 111 222", Email: "cuong@emshp.example", Address: "KCN Tràng Duệ, Hải Phòng"},
	}
	customerIDs := make([]int64, len(customers))
	for i, c := range customers {
		res, err := tx.Exec("INSERT INTO customers (name,company,phone,email,tax_code,address) VALUES (?,?,?,?,?,?)",
			c.Name, c.Company, c.Phone, c.Email, c.TaxCode, c.Address)
		if err != nil {
			return fmt.Errorf("seed customer: %w", err)
		}
		customerIDs[i], _ = res.LastInsertId()
	}

	productIDs := make([]int64, len(sampleProducts))
	for i, p := range sampleProducts {
		res, err := tx.Exec(`INSERT INTO products (code,name,brand,machine_model,category,unit,stock,cost_price,sale_price,supplier_id,location)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			p.code, p.name, p.brand, p.model, p.category, p.unit, p.stock, p.cost, p.sale, supplierIDs[p.supplier-1], p.location)
		if err != nil {
			return fmt.Errorf("seed product %s: %w", p.code, err)
		}
		productIDs[i], _ = res.LastInsertId()
	}

	items := []models.LineItem{
		{ProductID: &productIDs[0], Description: sampleProducts[0].name, Qty: 4, UnitPrice: sampleProducts[0].sale},
		{ProductID: &productIDs[1], Description: sampleProducts[1].name, Qty: 10, UnitPrice: sampleProducts[1].sale, Discount: 5},
	}
	totals := pricing.Compute(items, 10)
	now := Now()
	code := NextCodeTx(tx, "BG", "quotations")
	res, err := tx.Exec(`INSERT INTO quotations (code,customer_id,status,valid_until,vat_rate,notes,subtotal,vat_amount,total,created_by,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		code, customerIDs[0], "sent", "2026-12-31", 10, "Báo giá feeder và nozzle Yamaha", totals.Subtotal, totals.VATAmount, totals.Total, "admin", now, now)
	if err != nil {
		return fmt.Errorf("seed quotation: %w", err)
	}
	quoteID, _ := res.LastInsertId()
	for _, it := range items {
		if _, err := tx.Exec("INSERT INTO quotation_items (quotation_id,product_id,description,qty,unit_price,discount,line_total) VALUES (?,?,?,?,?,?,?)",
			quoteID, *it.ProductID, it.Description, it.Qty, it.UnitPrice, it.Discount, it.LineTotal); err != nil {
			return fmt.Errorf("seed quotation item: %w", err)
		}
	}

	orderItems := []models.LineItem{
		{ProductID: &productIDs[4], Description: sampleProducts[4].name, Qty: 6, UnitPrice: sampleProducts[4].sale},
	}
	ot := pricing.Compute(orderItems, 8)
	res, err = tx.Exec(`INSERT INTO orders (code,customer_id,status,payment_status,vat_rate,subtotal,vat_amount,total,created_by,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		NextCodeTx(tx, "DH", "orders"), customerIDs[1], "pending", "unpaid", 8, ot.Subtotal, ot.VATAmount, ot.Total, "admin", now, now)
	if err != nil {
		return fmt.Errorf("seed order: %w", err)
	}
	orderID, _ := res.LastInsertId()
	for _, it := range orderItems {
		if _, err := tx.Exec("INSERT INTO order_items (order_id,product_id,description,qty,unit_price,discount,line_total) VALUES (?,?,?,?,?,?,?)",
			orderID, *it.ProductID, it.Description, it.Qty, it.UnitPrice, it.Discount, it.LineTotal); err != nil {
			return fmt.Errorf("seed order item: %w", err)
		}
	}

	deals := []struct {
		title    string
		customer int
		value    float64
		stage    string
		prob     int
	}{
		{"Thay nozzle line SMT 3", 0, 25000000, "proposal", 50},
		{"Bảo trì feeder NXT quý 4", 2, 80000000, "negotiation", 70},
		{"Belt băng tải CM402", 1, 12000000, "lead", 10},
		{"Sensor vacuum NPM", 2, 18000000, "won", 100},
	}
	for i, d := range deals {
		if _, err := tx.Exec("INSERT INTO deals (title,customer_id,value,stage,probability,position) VALUES (?,?,?,?,?,?)",
			d.title, customerIDs[d.customer], d.value, d.stage, d.prob, i); err != nil {
			return fmt.Errorf("seed deal: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("seed: %d suppliers, %d customers, %d products, 1 quotation, 1 order, %d deals",
		len(suppliers), len(customers), len(sampleProducts), len(deals))
	return nil
}

// NextCodeTx is NextCode inside a transaction.
func NextCodeTx(tx *sql.Tx, prefix, table string) string {
	return nextCode(tx, prefix, table)
}
