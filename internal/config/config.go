// Package config loads server settings from an optional YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appConfigDirName = "idleforge"
	dbFileName       = "idleforge.db"
	configFileName   = "config.yaml"
	secretsFileName  = "secrets.json"
)

// Build metadata, set at build time via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config holds everything the server needs to start.
type Config struct {
	Addr            string   `yaml:"addr"`
	DBPath          string   `yaml:"db"`
	Token           string   `yaml:"token"`
	AuthDisabled    bool     `yaml:"auth_disabled"`
	CORSOrigins     []string `yaml:"cors_origins"`
	AutosaveSeconds int      `yaml:"autosave_seconds"`
	TimeoutSeconds  int      `yaml:"request_timeout_seconds"`
	KeyringService  string   `yaml:"keyring_service"`
	SecretsFile     string   `yaml:"secrets_file"`
	// RedisAddr, when set, shares rendered exports between instances.
	RedisAddr string `yaml:"redis_addr"`
}

// Default returns the built-in settings rooted in the OS app-data directory.
func Default() *Config {
	dir := AppDataDir()
	return &Config{
		Addr:            "127.0.0.1:8077",
		DBPath:          filepath.Join(dir, dbFileName),
		CORSOrigins:     []string{"*"},
		AutosaveSeconds: 30,
		TimeoutSeconds:  60,
		KeyringService:  "idleforge",
		SecretsFile:     filepath.Join(dir, secretsFileName),
	}
}

// Load applies, in order: defaults, the YAML file at path, and IDLEFORGE_*
// environment variables. An empty path reads config.yaml from the app-data
// directory when it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(AppDataDir(), configFileName)
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("IDLEFORGE_ADDR", &c.Addr)
	str("IDLEFORGE_DB", &c.DBPath)
	str("IDLEFORGE_TOKEN", &c.Token)
	str("IDLEFORGE_KEYRING_SERVICE", &c.KeyringService)
	str("IDLEFORGE_SECRETS_FILE", &c.SecretsFile)
	str("IDLEFORGE_REDIS_ADDR", &c.RedisAddr)

	if v, ok := lookup("IDLEFORGE_CORS_ORIGINS"); ok && v != "" {
		c.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}
	if v, ok := lookup("IDLEFORGE_AUTH_DISABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: IDLEFORGE_AUTH_DISABLED: %w", err)
		}
		c.AuthDisabled = b
	}
	for key, dst := range map[string]*int{
		"IDLEFORGE_AUTOSAVE_SECONDS": &c.AutosaveSeconds,
		"IDLEFORGE_TIMEOUT_SECONDS":  &c.TimeoutSeconds,
	} {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("config: addr is required")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("config: db path is required")
	}
	if c.AutosaveSeconds < 0 {
		return fmt.Errorf("config: autosave_seconds must not be negative")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: request_timeout_seconds must be positive")
	}
	return nil
}

// Autosave is the interval between background session saves. Zero disables
// periodic saving.
func (c *Config) Autosave() time.Duration {
	return time.Duration(c.AutosaveSeconds) * time.Second
}

// RequestTimeout bounds each HTTP request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EnsureDataDir creates the directory holding the database file.
func (c *Config) EnsureDataDir() error {
	dir := filepath.Dir(c.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", dir, err)
	}
	return nil
}

// AppDataDir returns an OS-appropriate writable directory.
func AppDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appConfigDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appConfigDirName)
	}
	return "."
}
