package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `addr: "0.0.0.0:9000"
db: /tmp/game.db
autosave_seconds: 5
cors_origins:
  - http://localhost:5173
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("IDLEFORGE_DB", "/data/override.db")
	t.Setenv("IDLEFORGE_TOKEN", "secret")
	t.Setenv("IDLEFORGE_AUTH_DISABLED", "true")
	t.Setenv("IDLEFORGE_REDIS_ADDR", "cache:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != "0.0.0.0:9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.DBPath != "/data/override.db" {
		t.Errorf("env did not override db: %q", cfg.DBPath)
	}
	if cfg.Token != "secret" || !cfg.AuthDisabled {
		t.Errorf("token/auth env not applied: %+v", cfg)
	}
	if cfg.Autosave() != 5*time.Second || cfg.RequestTimeout() != 60*time.Second {
		t.Errorf("durations: %v %v", cfg.Autosave(), cfg.RequestTimeout())
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:5173" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.RedisAddr != "cache:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("addr: [unterminated"), 0o600)
	negative := filepath.Join(dir, "negative.yaml")
	os.WriteFile(negative, []byte("autosave_seconds: -1"), 0o600)

	tests := []struct {
		name string
		path string
		env  map[string]string
	}{
		{"missing explicit file", filepath.Join(dir, "nope.yaml"), nil},
		{"bad yaml", bad, nil},
		{"negative autosave", negative, nil},
		{"bad bool", "", map[string]string{"IDLEFORGE_AUTH_DISABLED": "maybe"}},
		{"bad int", "", map[string]string{"IDLEFORGE_TIMEOUT_SECONDS": "soon"}},
		{"zero timeout", "", map[string]string{"IDLEFORGE_TIMEOUT_SECONDS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", dir)
			t.Setenv("XDG_CONFIG_HOME", dir)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(tt.path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8077" || cfg.AuthDisabled {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if filepath.Base(cfg.DBPath) != dbFileName {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		t.Errorf("EnsureDataDir: %v", err)
	}
}
