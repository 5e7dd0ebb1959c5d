package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Session.Duration != 55*time.Minute {
		t.Errorf("expected 55m session duration, got %v", cfg.Session.Duration)
	}
	if cfg.Session.Quorum != 3 {
		t.Errorf("expected quorum 3, got %d", cfg.Session.Quorum)
	}
	if cfg.Session.CompletionThreshold != 50*time.Minute {
		t.Errorf("expected 50m completion threshold, got %v", cfg.Session.CompletionThreshold)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero port", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"negative read timeout", func(c *Config) { c.HTTP.ReadTimeout = -1 }},
		{"zero session duration", func(c *Config) { c.Session.Duration = 0 }},
		{"tick longer than session", func(c *Config) { c.Session.TickInterval = 2 * c.Session.Duration }},
		{"zero quorum", func(c *Config) { c.Session.Quorum = 0 }},
		{"threshold beyond duration", func(c *Config) { c.Session.CompletionThreshold = 2 * c.Session.Duration }},
		{"zero retention", func(c *Config) { c.Session.RetentionWindow = 0 }},
		{"zero sweep interval", func(c *Config) { c.Session.SweepInterval = 0 }},
		{"nil session section", func(c *Config) { c.Session = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("STUDYHALL_HTTP_PORT", "9090")
	t.Setenv("STUDYHALL_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("STUDYHALL_SESSION_DURATION", "25m")
	t.Setenv("STUDYHALL_SESSION_QUORUM", "5")

	cfg := LoadFromEnv()
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("expected overridden path, got %s", cfg.Database.Path)
	}
	if cfg.Session.Duration != 25*time.Minute {
		t.Errorf("expected 25m duration, got %v", cfg.Session.Duration)
	}
	if cfg.Session.Quorum != 5 {
		t.Errorf("expected quorum 5, got %d", cfg.Session.Quorum)
	}
}

func TestLoadFromEnvIgnoresMalformed(t *testing.T) {
	t.Setenv("STUDYHALL_HTTP_PORT", "not-a-number")
	t.Setenv("STUDYHALL_SESSION_DURATION", "garbage")

	cfg := LoadFromEnv()
	if cfg.HTTP.Port != 8080 {
		t.Errorf("malformed port must keep default, got %d", cfg.HTTP.Port)
	}
	if cfg.Session.Duration != 55*time.Minute {
		t.Errorf("malformed duration must keep default, got %v", cfg.Session.Duration)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"http": {"port": 9999, "host": "127.0.0.1"},
		"session": {"duration": "30m", "quorum": 2}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.HTTP.Port != 9999 || cfg.HTTP.Host != "127.0.0.1" {
		t.Errorf("unexpected HTTP config: %+v", cfg.HTTP)
	}
	if cfg.Session.Duration != 30*time.Minute || cfg.Session.Quorum != 2 {
		t.Errorf("unexpected session config: %+v", cfg.Session)
	}
	// Untouched fields keep their defaults.
	if cfg.Session.TickInterval != time.Minute {
		t.Errorf("expected default tick interval, got %v", cfg.Session.TickInterval)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("expected error for missing file")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestLoadFallsBackOnFileError(t *testing.T) {
	cfg := Load("/nonexistent/config.json")
	if err := cfg.Validate(); err != nil {
		t.Errorf("fallback config must validate: %v", err)
	}
}
