package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	DB         DBConfig
	Storage    StorageConfig
	Log        LogConfig
	Enrollment EnrollmentConfig
	Seed       SeedConfig
}

// DBConfig holds the PostgreSQL connection settings
type DBConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"eventhub"`
	Password string `env:"DB_PASSWORD" envDefault:"eventhub_password"`
	Name     string `env:"DB_NAME" envDefault:"eventhub_db"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	MaxOpenConns int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
}

// StorageConfig selects the storage backend
type StorageConfig struct {
	Type       string `env:"STORAGE_TYPE" envDefault:"postgres"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"eventhub.db"`
}

// LogConfig controls the global logger
type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// EnrollmentConfig controls how withdrawals are stored
type EnrollmentConfig struct {
	CancelMode string `env:"ENROLLMENT_CANCEL_MODE" envDefault:"soft"`
}

// SeedConfig holds the bootstrap admin identity used by cmd/seed
type SeedConfig struct {
	AdminEmail     string `env:"SEED_ADMIN_EMAIL" envDefault:"admin@eventhub.local"`
	AdminFirstName string `env:"SEED_ADMIN_FIRST_NAME" envDefault:"Event"`
	AdminLastName  string `env:"SEED_ADMIN_LAST_NAME" envDefault:"Admin"`
}

var (
	storageTypes = []string{"postgres", "sqlite", "memory"}
	cancelModes  = []string{"soft", "hard"}
	logLevels    = []string{"debug", "info", "warn", "warning", "error", "fatal"}
)

// Load reads an optional .env file, then parses the environment
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv parses the process environment without touching .env files
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))
	c.Enrollment.CancelMode = strings.ToLower(strings.TrimSpace(c.Enrollment.CancelMode))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// Validate checks the enumerated settings
func (c *Config) Validate() error {
	if !slices.Contains(storageTypes, c.Storage.Type) {
		return fmt.Errorf("invalid STORAGE_TYPE %q, supported: %v", c.Storage.Type, storageTypes)
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORAGE_TYPE is sqlite")
	}
	if !slices.Contains(cancelModes, c.Enrollment.CancelMode) {
		return fmt.Errorf("invalid ENROLLMENT_CANCEL_MODE %q, supported: %v", c.Enrollment.CancelMode, cancelModes)
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		return fmt.Errorf("invalid LOG_LEVEL %q", c.Log.Level)
	}
	if c.DB.MaxOpenConns < 1 || c.DB.MaxIdleConns < 0 || c.DB.MaxIdleConns > c.DB.MaxOpenConns {
		return fmt.Errorf("invalid connection pool size: open=%d idle=%d", c.DB.MaxOpenConns, c.DB.MaxIdleConns)
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// GetDatabaseURL returns the database connection URL
func (c *Config) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     c.DB.Host + ":" + c.DB.Port,
		Path:     "/" + c.DB.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.DB.SSLMode),
	}
	return u.String()
}
