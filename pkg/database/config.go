package database

import "time"

// Config holds connection settings for the sqlite archive.
type Config struct {
	DatabasePath    string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns settings suitable for a single-process deployment.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./studyhall.db",
		MaxConnections:  10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}
