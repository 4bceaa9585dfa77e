package viewplane

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "file", cfg.Overrides.Source)
	assert.Equal(t, "screenoptions", cfg.Overrides.Directory)
	assert.True(t, cfg.Session.EnableHeartbeat)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "zero session timeout",
			mutate:    func(c *Config) { c.Session.Timeout = 0 },
			wantField: "session.timeout",
		},
		{
			name:      "negative sweep interval",
			mutate:    func(c *Config) { c.Session.SweepInterval = -1 },
			wantField: "session.sweepInterval",
		},
		{
			name: "file source without directory",
			mutate: func(c *Config) {
				c.Overrides.Source = "file"
				c.Overrides.Directory = ""
			},
			wantField: "overrides.directory",
		},
		{
			name: "postgres source without table",
			mutate: func(c *Config) {
				c.Overrides.Source = "postgres"
				c.Overrides.TableName = ""
			},
			wantField: "overrides.tableName",
		},
		{
			name:      "unknown source",
			mutate:    func(c *Config) { c.Overrides.Source = "s3" },
			wantField: "overrides.source",
		},
		{
			name:      "port out of range",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantField: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantField, ce.Field)
		})
	}
}

func TestConfigValidate_PostgresSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Overrides.Source = "postgres"
	assert.NoError(t, cfg.Validate(), "the default table name must satisfy the postgres source")
}
