package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the system-wide settings tree. Precedence: defaults, then
// environment, then JSON file.
type Config struct {
	Database *DatabaseConfig `json:"database"`
	HTTP     *HTTPConfig     `json:"http"`
	Session  *SessionConfig  `json:"session"`
}

// DatabaseConfig covers the sqlite archive.
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// HTTPConfig covers the API and websocket listener.
type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// SessionConfig carries the lifecycle tunables. The defaults reproduce the
// product behavior: 55-minute sessions ticking by the minute, group
// countdowns gated on a quorum of 3, completion credited from 50 minutes.
type SessionConfig struct {
	Duration            time.Duration `json:"duration"`
	TickInterval        time.Duration `json:"tick_interval"`
	Quorum              int           `json:"quorum"`
	CompletionThreshold time.Duration `json:"completion_threshold"`
	RetentionWindow     time.Duration `json:"retention_window"`
	SweepInterval       time.Duration `json:"sweep_interval"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./studyhall.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Session: &SessionConfig{
			Duration:            55 * time.Minute,
			TickInterval:        time.Minute,
			Quorum:              3,
			CompletionThreshold: 50 * time.Minute,
			RetentionWindow:     time.Hour,
			SweepInterval:       5 * time.Minute,
		},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.Session == nil {
		return fmt.Errorf("session configuration is required")
	}
	if c.Session.Duration <= 0 {
		return fmt.Errorf("session duration must be positive")
	}
	if c.Session.TickInterval <= 0 || c.Session.TickInterval > c.Session.Duration {
		return fmt.Errorf("tick interval must be positive and no longer than the session duration")
	}
	if c.Session.Quorum < 1 {
		return fmt.Errorf("quorum must be at least 1")
	}
	if c.Session.CompletionThreshold <= 0 || c.Session.CompletionThreshold > c.Session.Duration {
		return fmt.Errorf("completion threshold must be positive and no longer than the session duration")
	}
	if c.Session.RetentionWindow <= 0 {
		return fmt.Errorf("retention window must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	return nil
}

// LoadFromEnv overlays STUDYHALL_* environment variables on the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if host := os.Getenv("STUDYHALL_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("STUDYHALL_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if dbPath := os.Getenv("STUDYHALL_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	setDuration := func(key string, dst *time.Duration) {
		if raw := os.Getenv(key); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil {
				*dst = d
			}
		}
	}
	setDuration("STUDYHALL_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	setDuration("STUDYHALL_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	setDuration("STUDYHALL_DATABASE_TIMEOUT", &config.Database.Timeout)
	setDuration("STUDYHALL_SESSION_DURATION", &config.Session.Duration)
	setDuration("STUDYHALL_SESSION_TICK_INTERVAL", &config.Session.TickInterval)
	setDuration("STUDYHALL_SESSION_COMPLETION_THRESHOLD", &config.Session.CompletionThreshold)
	setDuration("STUDYHALL_SESSION_RETENTION_WINDOW", &config.Session.RetentionWindow)
	setDuration("STUDYHALL_SESSION_SWEEP_INTERVAL", &config.Session.SweepInterval)

	if quorum := os.Getenv("STUDYHALL_SESSION_QUORUM"); quorum != "" {
		if q, err := strconv.Atoi(quorum); err == nil {
			config.Session.Quorum = q
		}
	}

	return config
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	Database *struct {
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	Session *struct {
		Duration            string `json:"duration"`
		TickInterval        string `json:"tick_interval"`
		Quorum              int    `json:"quorum"`
		CompletionThreshold string `json:"completion_threshold"`
		RetentionWindow     string `json:"retention_window"`
		SweepInterval       string `json:"sweep_interval"`
	} `json:"session"`
}

// LoadFromFile overlays a JSON config file on top of the env-derived
// configuration and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config := LoadFromEnv()

	parse := func(raw string, dst *time.Duration) {
		if raw == "" {
			return
		}
		if d, err := time.ParseDuration(raw); err == nil {
			*dst = d
		}
	}

	if file.Database != nil {
		if file.Database.Path != "" {
			config.Database.Path = file.Database.Path
		}
		parse(file.Database.Timeout, &config.Database.Timeout)
	}
	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		parse(file.HTTP.ReadTimeout, &config.HTTP.ReadTimeout)
		parse(file.HTTP.WriteTimeout, &config.HTTP.WriteTimeout)
	}
	if file.Session != nil {
		parse(file.Session.Duration, &config.Session.Duration)
		parse(file.Session.TickInterval, &config.Session.TickInterval)
		if file.Session.Quorum > 0 {
			config.Session.Quorum = file.Session.Quorum
		}
		parse(file.Session.CompletionThreshold, &config.Session.CompletionThreshold)
		parse(file.Session.RetentionWindow, &config.Session.RetentionWindow)
		parse(file.Session.SweepInterval, &config.Session.SweepInterval)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}

	return config, nil
}

// Load resolves the effective configuration: defaults, then environment,
// then the optional JSON file named by path.
func Load(path string) *Config {
	config := LoadFromEnv()

	if path != "" {
		if fileConfig, err := LoadFromFile(path); err == nil {
			config = fileConfig
		}
		// File errors are non-fatal; env/defaults still apply.
	}

	return config
}
