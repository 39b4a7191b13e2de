package migrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/gravadigital/eventhub-api/internal/logger"
	"gorm.io/gorm"
)

// ErrNothingToRollback is returned by RollbackMigration on an empty history
var ErrNothingToRollback = errors.New("no migrations to rollback")

// Migration represents a database migration
type Migration struct {
	ID   string
	Name string
	Up   func(*gorm.DB) error
	Down func(*gorm.DB) error
}

// GetMigrations returns all available migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			ID:   "001",
			Name: "create_extensions_and_types",
			Up:   migration001Up,
			Down: migration001Down,
		},
		{
			ID:   "002",
			Name: "create_core_tables",
			Up:   migration002Up,
			Down: migration002Down,
		},
		{
			ID:   "003",
			Name: "create_indexes",
			Up:   migration003Up,
			Down: migration003Down,
		},
		{
			ID:   "004",
			Name: "create_check_constraints",
			Up:   migration004Up,
			Down: migration004Down,
		},
	}
}

// RunMigrations executes all pending migrations and returns the IDs it applied
func RunMigrations(ctx context.Context, db *gorm.DB) ([]string, error) {
	log := logger.Migration()
	db = db.WithContext(ctx)

	if err := createMigrationsTable(db); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var applied []string
	for _, migration := range GetMigrations() {
		done, err := hasBeenRun(db, migration.ID)
		if err != nil {
			return applied, fmt.Errorf("failed to check migration %s: %w", migration.ID, err)
		}
		if done {
			log.Debug("Migration already applied, skipping", "id", migration.ID, "name", migration.Name)
			continue
		}

		log.Info("Running migration", "id", migration.ID, "name", migration.Name)

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return fmt.Errorf("failed to run migration %s: %w", migration.ID, err)
			}

			return recordMigration(tx, migration.ID, migration.Name)
		})
		if err != nil {
			return applied, err
		}

		applied = append(applied, migration.ID)
		log.Info("Successfully applied migration", "id", migration.ID)
	}

	log.Info("All migrations completed successfully", "applied", len(applied))
	return applied, nil
}

// createMigrationsTable creates the migrations tracking table
func createMigrationsTable(db *gorm.DB) error {
	return db.Exec(`
        CREATE TABLE IF NOT EXISTS schema_migrations (
            id VARCHAR(10) PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        )
    `).Error
}

// hasBeenRun checks if a migration has already been applied
func hasBeenRun(db *gorm.DB, migrationID string) (bool, error) {
	var count int64
	err := db.Raw("SELECT COUNT(*) FROM schema_migrations WHERE id = ?", migrationID).Scan(&count).Error
	return count > 0, err
}

// recordMigration records that a migration has been applied
func recordMigration(db *gorm.DB, migrationID, name string) error {
	return db.Exec("INSERT INTO schema_migrations (id, name) VALUES (?, ?)", migrationID, name).Error
}

// RollbackMigration rolls back the last applied migration and returns its ID
func RollbackMigration(ctx context.Context, db *gorm.DB) (string, error) {
	log := logger.Migration()
	db = db.WithContext(ctx)

	if err := createMigrationsTable(db); err != nil {
		return "", fmt.Errorf("failed to create migrations table: %w", err)
	}

	var lastMigration struct {
		ID   string
		Name string
	}

	// IDs are zero-padded so the highest one is the latest
	err := db.Raw(`
        SELECT id, name FROM schema_migrations
        ORDER BY id DESC
        LIMIT 1
    `).Scan(&lastMigration).Error
	if err != nil {
		return "", fmt.Errorf("failed to get last migration: %w", err)
	}

	if lastMigration.ID == "" {
		return "", ErrNothingToRollback
	}

	var targetMigration *Migration
	for _, migration := range GetMigrations() {
		if migration.ID == lastMigration.ID {
			targetMigration = &migration
			break
		}
	}

	if targetMigration == nil {
		return "", fmt.Errorf("migration %s not found", lastMigration.ID)
	}

	log.Info("Rolling back migration", "id", targetMigration.ID, "name", targetMigration.Name)

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := targetMigration.Down(tx); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", targetMigration.ID, err)
		}

		return tx.Exec("DELETE FROM schema_migrations WHERE id = ?", targetMigration.ID).Error
	})
	if err != nil {
		return "", err
	}

	log.Info("Successfully rolled back migration", "id", targetMigration.ID)
	return targetMigration.ID, nil
}
