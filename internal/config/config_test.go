package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 100, cfg.MaxInstances)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen: ":9000"
max_instances: 250
database:
  driver: PostgreSQL
  dsn: postgres://localhost/orderlyflow
subscriptions:
  - url: https://example.com/trash.ics
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, 100, cfg.MaxInstances)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "UTC", cfg.Timezone)
	require.Len(t, cfg.Subscriptions, 1)
	assert.Equal(t, "https://example.com/trash.ics", cfg.Subscriptions[0].ID)
	assert.Equal(t, "local", cfg.Subscriptions[0].OwnerID)
	assert.Equal(t, "gray", cfg.Subscriptions[0].Color)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	cfg.Subscriptions = []SubscriptionConfig{{ID: "trash", URL: "https://example.com/t.ics", OwnerID: "o1"}}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.BasicAuth)
	assert.Equal(t, "admin", loaded.BasicAuth.Username)
	assert.Equal(t, "trash", loaded.Subscriptions[0].ID)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ORDERLYFLOW_LISTEN":              ":7000",
		"ORDERLYFLOW_DATABASE_DSN":        "/tmp/x.db",
		"ORDERLYFLOW_MAX_INSTANCES":       "12",
		"ORDERLYFLOW_BASIC_AUTH_USERNAME": "u",
		"ORDERLYFLOW_BASIC_AUTH_PASSWORD": "p",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv(lookup)
	cfg.Normalize()

	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "/tmp/x.db", cfg.Database.DSN)
	assert.Equal(t, 12, cfg.MaxInstances)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "u", cfg.BasicAuth.Username)
}

func TestValidateRequiresSubscriptionURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Subscriptions = []SubscriptionConfig{{ID: "broken"}}
	assert.Error(t, cfg.Validate())
}
