package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Errorf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.StoreDriver != "pebble" {
		t.Errorf("expected pebble driver, got %q", cfg.StoreDriver)
	}
	if cfg.NotificationCap != 50 {
		t.Errorf("expected notification cap 50, got %d", cfg.NotificationCap)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("expected 5m cache ttl, got %v", cfg.CacheTTL)
	}
	if cfg.VisibilityPolicy != "strict" {
		t.Errorf("expected strict visibility, got %q", cfg.VisibilityPolicy)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("FRIEND_CACHE_TTL_SECONDS", "5")
	t.Setenv("STORE_DRIVER", " Postgres ")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("DRINKWISE_ADMIN_USERS", " ops-1, ,ops-2 ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("expected env addr, got %q", cfg.Addr)
	}
	if cfg.FriendCacheTTL != 5*time.Second {
		t.Errorf("expected 5s friend ttl, got %v", cfg.FriendCacheTTL)
	}
	if cfg.StoreDriver != "postgres" {
		t.Errorf("expected normalized driver, got %q", cfg.StoreDriver)
	}
	if !cfg.MinioUseSSL {
		t.Errorf("expected MINIO_USE_SSL to be true")
	}
	if len(cfg.AdminUsers) != 2 || cfg.AdminUsers[0] != "ops-1" || cfg.AdminUsers[1] != "ops-2" {
		t.Errorf("unexpected admin users %q", cfg.AdminUsers)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drinkwise.yaml")
	if err := os.WriteFile(path, []byte("drinkwise_app_id: party-app\nnotification_cap: 10\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DRINKWISE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppID != "party-app" {
		t.Errorf("expected app id from file, got %q", cfg.AppID)
	}
	if cfg.NotificationCap != 10 {
		t.Errorf("expected cap from file, got %d", cfg.NotificationCap)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("DRINKWISE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
