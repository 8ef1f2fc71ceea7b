package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected base path %s", cfg.Server.BasePath)
	}
	if cfg.Audit.ListLimit != 100 {
		t.Fatalf("unexpected audit limit %d", cfg.Audit.ListLimit)
	}
	if len(cfg.Seed.Users) != 3 {
		t.Fatalf("expected three seed users, got %d", len(cfg.Seed.Users))
	}
}

func TestTokenTTL(t *testing.T) {
	cfg := Default()
	if cfg.TokenTTL() != 24*time.Hour {
		t.Fatalf("expected 24h default, got %s", cfg.TokenTTL())
	}
	cfg.Auth.TokenTTL = "90m"
	if cfg.TokenTTL() != 90*time.Minute {
		t.Fatalf("expected 90m, got %s", cfg.TokenTTL())
	}
	cfg.Auth.TokenTTL = "bogus"
	if cfg.TokenTTL() != 24*time.Hour {
		t.Fatalf("bad duration should fall back to 24h, got %s", cfg.TokenTTL())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr == "" {
		t.Fatal("expected defaulted addr")
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "taskdeck.yml"), []byte("server: [broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFromYAMLOverrides(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  addr: 0.0.0.0:9000\naudit:\n  list_limit: 25\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("unexpected addr %s", cfg.Server.Addr)
	}
	if cfg.Audit.ListLimit != 25 {
		t.Fatalf("unexpected limit %d", cfg.Audit.ListLimit)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatal("defaults should fill missing fields")
	}
}

func TestFromYAMLKeepsExplicitZeroListLimit(t *testing.T) {
	cfg, err := FromYAML([]byte("audit:\n  list_limit: 0\n"))
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if cfg.Audit.ListLimit != 0 {
		t.Fatalf("explicit 0 should survive, got %d", cfg.Audit.ListLimit)
	}
}
