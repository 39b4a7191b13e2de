package postgres

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"

	"github.com/gravadigital/eventhub-api/internal/config"
	"github.com/gravadigital/eventhub-api/internal/logger"
	"github.com/gravadigital/eventhub-api/internal/storage"
)

// Store persists events, participations and users in PostgreSQL through GORM
type Store struct {
	db  *gorm.DB
	log *log.Logger
}

var _ storage.Backend = (*Store)(nil)

// Open connects to PostgreSQL, applies pending migrations and checks every table
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	log := logger.Repository("postgres")
	log.Info("Initializing PostgreSQL store...")

	db, err := Connect(ctx, cfg)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := AutoMigrate(ctx, db); err != nil {
		_ = closeDB(db)
		log.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := NewWithDB(db)
	if err := s.Health(ctx); err != nil {
		_ = closeDB(db)
		log.Error("Store health check failed", "error", err)
		return nil, fmt.Errorf("store health check failed: %w", err)
	}

	log.Info("PostgreSQL store initialized successfully")
	return s, nil
}

// NewWithDB wraps an existing, migrated connection
func NewWithDB(db *gorm.DB) *Store {
	return &Store{
		db:  db,
		log: logger.Repository("postgres"),
	}
}

// DB returns the underlying database connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Health pings the database and runs a trivial query on every table
func (s *Store) Health(ctx context.Context) error {
	s.log.Debug("Performing store health check...")

	if err := HealthCheck(ctx, s.db); err != nil {
		s.log.Error("Database health check failed", "error", err)
		return fmt.Errorf("database health check failed: %w", err)
	}

	metrics := GetDatabaseMetrics(s.db)
	s.log.Debug("Database connection metrics",
		"open_connections", metrics.OpenConnections,
		"in_use_connections", metrics.InUseConnections,
		"idle_connections", metrics.IdleConnections)

	for _, table := range []string{"users", "events", "participations"} {
		var count int64
		if err := s.db.WithContext(ctx).Table(table).Limit(1).Count(&count).Error; err != nil {
			s.log.Error("Table health check failed", "table", table, "error", err)
			return fmt.Errorf("table %s health check failed: %w", table, err)
		}
	}

	s.log.Debug("Store health check completed successfully")
	return nil
}

// Close shuts down the connection pool
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.log.Info("Closing PostgreSQL store...")

	if err := closeDB(s.db); err != nil {
		return err
	}
	s.db = nil
	return nil
}
