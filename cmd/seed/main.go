// Command seed fills a database with the sample SMT catalog and, optionally,
// imports products from an Excel workbook.
package main

import (
	"flag"
	"log"
	"os"

	"smtparts/internal/audit"
	"smtparts/internal/config"
	"smtparts/internal/database"
	"smtparts/internal/handlers/catalog"
	"smtparts/internal/spreadsheet"
)

func main() {
	configPath := flag.String("config", "smtparts.yaml", "path to config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	reset := flag.Bool("reset", false, "delete all business data first")
	xlsx := flag.String("xlsx", "", "import products from this workbook")
	sample := flag.Bool("sample", true, "insert sample data into an empty catalog")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("DB init failed: %v", err)
	}
	defer db.Close()

	if err := database.EnsureAdmin(db, cfg.AdminPassword); err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	if *reset {
		if err := database.Reset(db); err != nil {
			log.Fatalf("reset: %v", err)
		}
		log.Printf("seed: business tables cleared")
	}
	if *sample {
		if err := database.SeedSample(db); err != nil {
			log.Fatalf("sample data: %v", err)
		}
	}

	if *xlsx != "" {
		f, err := os.Open(*xlsx)
		if err != nil {
			log.Fatalf("open %s: %v", *xlsx, err)
		}
		recs, err := spreadsheet.ReadRecords(f, catalog.ImportAliases)
		f.Close()
		if err != nil {
			log.Fatalf("read %s: %v", *xlsx, err)
		}
		res, err := catalog.ImportProducts(db, recs)
		if err != nil {
			log.Fatalf("import: %v", err)
		}
		for _, e := range res.Errors {
			log.Printf("seed: %s", e)
		}
		audit.LogAudit(db, nil, "seed", audit.ActionImport, "products", 0, "Imported "+*xlsx)
		log.Printf("seed: %s: %d created, %d updated, %d skipped", *xlsx, res.Created, res.Updated, res.Skipped)
	}

	var products, suppliers, customers int
	db.QueryRow("SELECT COUNT(*) FROM products").Scan(&products)
	db.QueryRow("SELECT COUNT(*) FROM suppliers").Scan(&suppliers)
	db.QueryRow("SELECT COUNT(*) FROM customers").Scan(&customers)
	log.Printf("seed: %s has %d products, %d suppliers, %d customers", cfg.DatabasePath, products, suppliers, customers)
}
