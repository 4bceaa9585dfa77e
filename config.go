package viewplane

import (
	"time"
)

// Config consolidates engine and server settings
type Config struct {
	Session   SessionConfig   `json:"session"`
	Overrides OverridesConfig `json:"overrides"`
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
}

// SessionConfig controls node liveness tracking
type SessionConfig struct {
	// Timeout is the client session timeout; a node is considered stale
	// once its heartbeat age exceeds twice this value.
	Timeout time.Duration `json:"timeout"`
	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration `json:"sweepInterval"`
	// EnableHeartbeat globally toggles heartbeat bookkeeping. When false,
	// UpdateHeartbeat is a no-op and nodes are never swept.
	EnableHeartbeat bool `json:"enableHeartbeat"`
}

// OverridesConfig controls where persisted layout overrides are loaded from
type OverridesConfig struct {
	// Source selects the storage backend: "file" or "postgres".
	Source string `json:"source"`
	// Directory holds .cdeFOR records when Source is "file".
	Directory string `json:"directory"`
	// TableName is the override table when Source is "postgres".
	TableName string `json:"tableName"`
}

// ServerConfig contains HTTP/websocket server settings
type ServerConfig struct {
	Port           int           `json:"port"`
	AllowedOrigins []string      `json:"allowedOrigins"`
	WriteTimeout   time.Duration `json:"writeTimeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			Timeout:         90 * time.Second,
			SweepInterval:   30 * time.Second,
			EnableHeartbeat: true,
		},
		Overrides: OverridesConfig{
			Source:    "file",
			Directory: "screenoptions",
			TableName: "layout_overrides",
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
			WriteTimeout:   10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Session.Timeout <= 0 {
		return &ConfigError{Field: "session.timeout", Message: "must be greater than 0"}
	}
	if c.Session.SweepInterval <= 0 {
		return &ConfigError{Field: "session.sweepInterval", Message: "must be greater than 0"}
	}
	switch c.Overrides.Source {
	case "file":
		if c.Overrides.Directory == "" {
			return &ConfigError{Field: "overrides.directory", Message: "required when source is 'file'"}
		}
	case "postgres":
		if c.Overrides.TableName == "" {
			return &ConfigError{Field: "overrides.tableName", Message: "required when source is 'postgres'"}
		}
	default:
		return &ConfigError{Field: "overrides.source", Message: "must be 'file' or 'postgres'"}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be a valid TCP port"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
