package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("inventory-service", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.Name != "inventory-service" {
		t.Errorf("expected service name inventory-service, got %s", cfg.Service.Name)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.HTTP.Addr)
	}
	if cfg.Redis.CacheTTL != 10*time.Minute {
		t.Errorf("expected 10m cache ttl, got %v", cfg.Redis.CacheTTL)
	}
	if !strings.Contains(cfg.MySQL.DSN, "clientFoundRows=true") {
		t.Errorf("expected clientFoundRows in dsn, got %s", cfg.MySQL.DSN)
	}
	if !strings.Contains(cfg.MySQL.DSN, "parseTime=true") {
		t.Errorf("expected parseTime in dsn, got %s", cfg.MySQL.DSN)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
http:
  addr: ":9090"
  shutdown_timeout: 3s
mongo:
  database: shop
redis:
  cache_ttl: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("SHUTDOWN_TIMEOUT", "7")

	cfg, err := Load("catalog-service", path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Errorf("env should override file, got %s", cfg.HTTP.Addr)
	}
	if cfg.HTTP.ShutdownTimeout != 7*time.Second {
		t.Errorf("expected 7s, got %v", cfg.HTTP.ShutdownTimeout)
	}
	if cfg.Mongo.Database != "shop" {
		t.Errorf("expected database shop, got %s", cfg.Mongo.Database)
	}
	if cfg.Redis.CacheTTL != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.Redis.CacheTTL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("x", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("REDIS_CACHE_TTL", "soon")
	cfg, err := Load("x", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.CacheTTL != 10*time.Minute {
		t.Errorf("invalid duration should keep default, got %v", cfg.Redis.CacheTTL)
	}
}

func TestNormalizeMySQLDSN(t *testing.T) {
	dsn, err := NormalizeMySQLDSN("user:pw@tcp(db:3306)/inventory")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	for _, want := range []string{"clientFoundRows=true", "parseTime=true", "tcp(db:3306)/inventory"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("expected %q in %s", want, dsn)
		}
	}

	if _, err := NormalizeMySQLDSN("::not a dsn"); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default("inventory-service")
	if err := cfg.ValidateInventory(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if err := cfg.ValidateCatalog(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	cfg.MySQL.DSN = ""
	cfg.RabbitMQ.URL = ""
	err := cfg.ValidateInventory()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "mysql.dsn") || !strings.Contains(err.Error(), "rabbitmq.url") {
		t.Errorf("expected both failures reported, got %v", err)
	}
}
