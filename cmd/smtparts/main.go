package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smtparts/internal/api"
	"smtparts/internal/auth"
	"smtparts/internal/config"
	"smtparts/internal/database"
	"smtparts/internal/server"
	"smtparts/internal/websocket"
)

func main() {
	configPath := flag.String("config", "smtparts.yaml", "path to config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	writeConfig := flag.Bool("write-config", false, "write the effective config to -config and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *port != 0 {
		cfg.Web.Port = *port
	}
	if *writeConfig {
		if err := cfg.Save(*configPath); err != nil {
			log.Fatalf("write config: %v", err)
		}
		log.Printf("smtparts: config written to %s", *configPath)
		return
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("DB init failed: %v", err)
	}
	defer db.Close()

	if err := database.EnsureAdmin(db, cfg.AdminPassword); err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	if cfg.SeedSample {
		if err := database.SeedSample(db); err != nil {
			log.Printf("smtparts: sample data: %v", err)
		}
	}

	hub := websocket.NewHub()
	app := server.NewApp(db, hub, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := auth.PurgeExpiredSessions(db); err != nil {
					log.Printf("smtparts: purge sessions: %v", err)
				} else if n > 0 {
					log.Printf("smtparts: purged %d expired sessions", n)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("smtparts: listening on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("smtparts: shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("smtparts: shutdown: %v", err)
	}
	log.Printf("smtparts: stopped")
	os.Exit(0)
}
