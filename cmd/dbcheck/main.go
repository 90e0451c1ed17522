// Command dbcheck reports data inconsistencies. It is a dry run unless -fix
// is given; every finding goes to a timestamped log file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"smtparts/internal/config"
	"smtparts/internal/database"
	"smtparts/internal/dbcheck"
)

// setupLogger opens an append-mode log file.
func setupLogger(path string) (*log.Logger, *os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, err
	}
	return log.New(file, "", log.LstdFlags), file, nil
}

func main() {
	configPath := flag.String("config", "smtparts.yaml", "path to config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	fix := flag.Bool("fix", false, "repair what is safe to repair")
	logPath := flag.String("log", fmt.Sprintf("dbcheck-%s.log", time.Now().Format("20060102-150405")), "log file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Error loading configuration:", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	logger, logFile, err := setupLogger(*logPath)
	if err != nil {
		log.Fatal("Failed to setup logger:", err)
	}
	defer logFile.Close()
	logger.Printf("dbcheck on %s, fix=%v", cfg.DatabasePath, *fix)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	fmt.Printf("Database: %s\n", cfg.DatabasePath)
	fmt.Printf("Fix mode: %v\n", *fix)
	fmt.Printf("Log file: %s\n", *logPath)

	rep, err := (&dbcheck.Checker{DB: db, Logger: logger, Fix: *fix}).Run()
	if err != nil {
		logger.Printf("aborted: %v", err)
		log.Fatal("Check failed:", err)
	}

	for _, check := range []string{
		dbcheck.CheckNegativeStock,
		dbcheck.CheckOrphanItem,
		dbcheck.CheckMissingSupplier,
		dbcheck.CheckTotalsDrift,
		dbcheck.CheckDuplicateName,
	} {
		fmt.Printf("  %-18s %d\n", check, rep.Count(check))
	}
	for _, f := range rep.Findings {
		fmt.Println(" ", f)
	}
	if !*fix && len(rep.Findings) > 0 {
		fmt.Println("\n=== DRY RUN - rerun with -fix to repair totals and supplier references ===")
	}
	logger.Printf("done: %d findings, %d fixed", len(rep.Findings), rep.Fixed())
	fmt.Printf("\n%d findings, %d fixed\n", len(rep.Findings), rep.Fixed())
}
