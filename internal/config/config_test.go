package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Web.Port != 8080 || cfg.Sales.DefaultVATRate != 10 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smt.yaml")
	yml := "database_path: /var/lib/smt.db\nweb:\n  port: 9000\ncompany:\n  name: SMT Hà Nội\n"
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SMT_PORT", "9100")
	t.Setenv("SMT_SESSION_TTL", "2h")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabasePath != "/var/lib/smt.db" {
		t.Errorf("database_path = %q", cfg.DatabasePath)
	}
	if cfg.Company.Name != "SMT Hà Nội" {
		t.Errorf("company = %q", cfg.Company.Name)
	}
	if cfg.Web.Port != 9100 {
		t.Errorf("env should override file, port = %d", cfg.Web.Port)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Errorf("ttl = %v", cfg.SessionTTL)
	}
	if cfg.Addr() != "0.0.0.0:9100" {
		t.Errorf("addr = %q", cfg.Addr())
	}
}

func TestApplyEnvRejectsBadPort(t *testing.T) {
	t.Setenv("SMT_PORT", "eighty")
	if err := Defaults().ApplyEnv(); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.Sales.LowStockThreshold = 3
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Sales.LowStockThreshold != 3 {
		t.Errorf("threshold = %v", got.Sales.LowStockThreshold)
	}
}
