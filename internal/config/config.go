// Package config loads service settings from a YAML file, a .env file and
// SMT_* environment variables, in that order of increasing precedence.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	DatabasePath  string        `yaml:"database_path"`
	AdminPassword string        `yaml:"admin_password"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SeedSample    bool          `yaml:"seed_sample"`
	BackupDir     string        `yaml:"backup_dir"`

	Web     WebConfig     `yaml:"web"`
	Company CompanyConfig `yaml:"company"`
	Sales   SalesConfig   `yaml:"sales"`
	Client  ClientConfig  `yaml:"client"`
}

// WebConfig defines the HTTP server settings.
type WebConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	RateLimit  int    `yaml:"rate_limit"` // requests per minute per client, 0 disables
}

// CompanyConfig is printed on exported quotations.
type CompanyConfig struct {
	Name    string `yaml:"name"`
	TaxCode string `yaml:"tax_code"`
	Address string `yaml:"address"`
	Phone   string `yaml:"phone"`
	Email   string `yaml:"email"`
}

type SalesConfig struct {
	DefaultVATRate    float64 `yaml:"default_vat_rate"`
	QuoteValidityDays int     `yaml:"quote_validity_days"`
	LowStockThreshold float64 `yaml:"low_stock_threshold"`
}

// ClientConfig is used by the terminal tools to reach the API.
type ClientConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		DatabasePath:  "smtparts.db",
		AdminPassword: "changeme",
		SessionTTL:    24 * time.Hour,
		SeedSample:    true,
		BackupDir:     "backups",
		Web: WebConfig{
			Host:       "0.0.0.0",
			Port:       8080,
			CORSOrigin: "*",
			RateLimit:  600,
		},
		Company: CompanyConfig{
			Name:    "Công ty TNHH Linh kiện SMT",
			Address: "Bắc Ninh, Việt Nam",
		},
		Sales: SalesConfig{
			DefaultVATRate:    10,
			QuoteValidityDays: 15,
			LowStockThreshold: 5,
		},
		Client: ClientConfig{
			BaseURL:  "http://localhost:8080",
			Username: "admin",
		},
	}
}

// Load reads a YAML config file, then applies .env and environment
// overrides. A missing file means defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}
	LoadDotEnv()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from .env files without overriding ones that
// are already set.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env: %v", err)
	}
}

// ApplyEnv overrides fields from SMT_* environment variables.
func (c *Config) ApplyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("SMT_DB", &c.DatabasePath)
	str("SMT_ADMIN_PASSWORD", &c.AdminPassword)
	str("SMT_BACKUP_DIR", &c.BackupDir)
	str("SMT_HOST", &c.Web.Host)
	str("SMT_CORS_ORIGIN", &c.Web.CORSOrigin)
	str("SMT_COMPANY_NAME", &c.Company.Name)
	str("SMT_COMPANY_TAX_CODE", &c.Company.TaxCode)
	str("SMT_API_URL", &c.Client.BaseURL)
	str("SMT_API_USER", &c.Client.Username)
	str("SMT_API_PASSWORD", &c.Client.Password)

	if v := os.Getenv("SMT_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMT_PORT: %w", err)
		}
		c.Web.Port = n
	}
	if v := os.Getenv("SMT_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMT_RATE_LIMIT: %w", err)
		}
		c.Web.RateLimit = n
	}
	if v := os.Getenv("SMT_LOW_STOCK"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SMT_LOW_STOCK: %w", err)
		}
		c.Sales.LowStockThreshold = f
	}
	if v := os.Getenv("SMT_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SMT_SESSION_TTL: %w", err)
		}
		c.SessionTTL = d
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
