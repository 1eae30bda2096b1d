package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix marks environment variables that override file values.
const envPrefix = "ORDERLYFLOW_"

// SubscriptionConfig describes one iCalendar feed imported into a home's
// calendar on a schedule.
type SubscriptionConfig struct {
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// OwnerID receives the imported events.
	OwnerID string `yaml:"owner_id" json:"owner_id"`
	// HomeID optionally links imported events to a home.
	HomeID string `yaml:"home_id,omitempty" json:"home_id,omitempty"`
	// Color applied to imported events. Defaults to gray.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn" json:"dsn"`
	// MaxOpenConns bounds the connection pool. Zero keeps the driver default.
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to interpret date-only input
	// such as recurrence end dates and all-day events.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DefaultOwner is used when a request carries no owner identity.
	DefaultOwner string `yaml:"default_owner" json:"default_owner"`

	// MaxInstances lowers the per-series instance cap (at most 100).
	MaxInstances int `yaml:"max_instances" json:"max_instances"`

	Database DatabaseConfig `yaml:"database" json:"database"`

	// SyncCron is a cron-style schedule string (e.g. "*/30 * * * *")
	// used for subscription imports.
	SyncCron string `yaml:"sync_cron" json:"sync_cron"`

	// CacheDir holds fetched subscription bodies and HTTP cache metadata.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "UTC",
		LogLevel:     "info",
		DefaultOwner: "local",
		MaxInstances: 100,
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "./var/orderlyflow.db",
		},
		SyncCron:      "*/30 * * * *",
		CacheDir:      "./var/ics-cache",
		Subscriptions: []SubscriptionConfig{},
		BasicAuth:     nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.DefaultOwner == "" {
		c.DefaultOwner = def.DefaultOwner
	}
	if c.MaxInstances <= 0 || c.MaxInstances > 100 {
		c.MaxInstances = def.MaxInstances
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "sqlite", "postgres":
		// ok
	case "sqlite3":
		c.Database.Driver = "sqlite"
	case "postgresql", "pg":
		c.Database.Driver = "postgres"
	default:
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = def.Database.DSN
	}

	if c.SyncCron == "" {
		c.SyncCron = def.SyncCron
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Subscriptions == nil {
		c.Subscriptions = []SubscriptionConfig{}
	}
	for i := range c.Subscriptions {
		s := &c.Subscriptions[i]
		if s.ID == "" {
			s.ID = s.URL
		}
		if s.OwnerID == "" {
			s.OwnerID = c.DefaultOwner
		}
		if s.Color == "" {
			s.Color = "gray"
		}
	}
}

// Validate reports configuration values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database.dsn is required for driver %q", c.Database.Driver)
	}
	for _, s := range c.Subscriptions {
		if s.URL == "" {
			return fmt.Errorf("config: subscription %q has no url", s.ID)
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//   - In both cases a .env file next to the working directory (if any) is
//     loaded and ORDERLYFLOW_* variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	// Missing .env is the normal case.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			cfg.ApplyEnv(os.LookupEnv)
			cfg.Normalize()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.Normalize()

	return &cfg, nil
}

// ApplyEnv overrides scalar settings from environment variables such as
// ORDERLYFLOW_LISTEN or ORDERLYFLOW_DATABASE_DSN. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("LISTEN", &c.Listen)
	str("TIMEZONE", &c.Timezone)
	str("LOG_LEVEL", &c.LogLevel)
	str("DEFAULT_OWNER", &c.DefaultOwner)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("SYNC_CRON", &c.SyncCron)
	str("CACHE_DIR", &c.CacheDir)

	if v, ok := lookup(envPrefix + "MAX_INSTANCES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxInstances = n
		}
	}

	user, uok := lookup(envPrefix + "BASIC_AUTH_USERNAME")
	pass, pok := lookup(envPrefix + "BASIC_AUTH_PASSWORD")
	if uok && pok && user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".orderlyflow-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
