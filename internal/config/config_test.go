package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "soft", cfg.Enrollment.CancelMode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, 25, cfg.DB.MaxOpenConns)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_TYPE", " SQLite ")
	t.Setenv("SQLITE_PATH", "/tmp/events.db")
	t.Setenv("ENROLLMENT_CANCEL_MODE", "HARD")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_PORT", "6543")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "/tmp/events.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "hard", cfg.Enrollment.CancelMode)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "6543", cfg.DB.Port)
	assert.True(t, cfg.IsProduction())
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"storage type", "STORAGE_TYPE", "mongo"},
		{"cancel mode", "ENROLLMENT_CANCEL_MODE", "archive"},
		{"log level", "LOG_LEVEL", "verbose"},
		{"pool size", "DB_MAX_OPEN_CONNS", "0"},
		{"not a number", "DB_MAX_IDLE_CONNS", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	cfg := &Config{DB: DBConfig{
		Host: "db", Port: "5432", User: "app", Password: "p@ss", Name: "events", SSLMode: "require",
	}}

	assert.Equal(t, "postgres://app:p%40ss@db:5432/events?sslmode=require", cfg.GetDatabaseURL())
}
