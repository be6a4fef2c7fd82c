package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendSurrealDB, cfg.Storage.Backend)
	assert.Equal(t, ZeroQuantityError, cfg.Ledger.ZeroQuantityPolicy)
	assert.Equal(t, 2*time.Hour, cfg.Refresh.GetStalenessWindow())
	assert.Equal(t, 60*time.Second, cfg.Refresh.GetTimeout())
	assert.Equal(t, 30*time.Minute, cfg.Refresh.GetScheduleInterval())
	assert.Equal(t, 5*time.Second, cfg.Events.GetPublishTimeout())
}

func TestConfig_DurationFallbacks(t *testing.T) {
	r := RefreshConfig{StalenessWindow: "not-a-duration", Timeout: "-5s", ScheduleInterval: "0"}

	assert.Equal(t, StalenessWindow, r.GetStalenessWindow())
	assert.Equal(t, 60*time.Second, r.GetTimeout())
	assert.Equal(t, time.Duration(0), r.GetScheduleInterval())

	e := EODHDConfig{Timeout: "bogus"}
	assert.Equal(t, 30*time.Second, e.GetTimeout())

	c := PriceCacheConfig{TTL: ""}
	assert.Equal(t, 30*time.Second, c.GetTTL())

	ev := EventsConfig{PublishTimeout: "250ms"}
	assert.Equal(t, 250*time.Millisecond, ev.GetPublishTimeout())
}

func TestLoadConfig_FileLayering(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "folio.toml")
	override := filepath.Join(dir, "folio.local.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
environment = "production"

[server]
port = 9000

[storage]
backend = "memory"

[refresh]
staleness_window = "90m"
`), 0o644))
	require.NoError(t, os.WriteFile(override, []byte(`
[server]
port = 9100
`), 0o644))

	cfg, err := LoadConfig(base, override, filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 90*time.Minute, cfg.Refresh.GetStalenessWindow())
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("FOLIO_SERVER_PORT", "9090")
	t.Setenv("FOLIO_STORAGE_BACKEND", "POSTGRES")
	t.Setenv("FOLIO_CLIENTS_EODHD_API_KEY", "from-env")
	t.Setenv("FOLIO_LEDGER_ZERO_QUANTITY_POLICY", "delete")
	t.Setenv("FOLIO_EVENTS_ENABLED", "true")
	t.Setenv("FOLIO_EVENTS_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "from-env", cfg.Clients.EODHD.APIKey)
	assert.Equal(t, ZeroQuantityDelete, cfg.Ledger.ZeroQuantityPolicy)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Brokers)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, true},
		{"unknown policy", func(c *Config) { c.Ledger.ZeroQuantityPolicy = "ignore" }, true},
		{"empty policy defaults", func(c *Config) { c.Ledger.ZeroQuantityPolicy = "" }, false},
		{"events without brokers", func(c *Config) { c.Events.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsFresh_Boundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, IsFresh(now.Add(-119*time.Minute), now, StalenessWindow))
	assert.True(t, IsFresh(now.Add(-StalenessWindow), now, StalenessWindow))
	assert.False(t, IsFresh(now.Add(-121*time.Minute), now, StalenessWindow))
	assert.False(t, IsFresh(time.Time{}, now, StalenessWindow))
}
