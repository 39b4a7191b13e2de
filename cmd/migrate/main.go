package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravadigital/eventhub-api/internal/config"
	"github.com/gravadigital/eventhub-api/internal/logger"
	"github.com/gravadigital/eventhub-api/internal/storage/factory"
	"github.com/gravadigital/eventhub-api/internal/storage/migrations"
	"github.com/gravadigital/eventhub-api/internal/storage/postgres"
	"github.com/gravadigital/eventhub-api/internal/storage/sqlite"
	sqlitemigrations "github.com/gravadigital/eventhub-api/internal/storage/sqlite/migrations"
	"github.com/gravadigital/eventhub-api/internal/storage/sqlitemigrate"
)

func main() {
	rollback := flag.Bool("rollback", false, "Rollback the last migration")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger.Initialize(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *rollback); err != nil {
		logger.Migration().Error("Migration failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("Migration process completed!")
}

// run applies pending migrations, or rolls back the latest one, on the
// configured backend
func run(ctx context.Context, cfg *config.Config, rollback bool) error {
	log := logger.Command("migrate")
	log.Info("Starting migration process", "storage", cfg.Storage.Type, "rollback", rollback)

	st, err := factory.ValidateStorageType(cfg.Storage.Type)
	if err != nil {
		return err
	}

	switch st {
	case factory.StorageTypePostgres:
		return migratePostgres(ctx, cfg, rollback)
	case factory.StorageTypeSQLite:
		return migrateSQLite(ctx, cfg, rollback)
	default:
		log.Info("Storage type has no schema, nothing to do", "storage", st)
		return nil
	}
}

func migratePostgres(ctx context.Context, cfg *config.Config, rollback bool) error {
	log := logger.Migration()

	db, err := postgres.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	if rollback {
		log.Info("Rolling back migrations...")
		id, err := migrations.RollbackMigration(ctx, db)
		if errors.Is(err, migrations.ErrNothingToRollback) {
			log.Info("No migration to roll back")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("Migration rollback completed successfully", "id", id)
		return nil
	}

	log.Info("Running migrations...")
	applied, err := migrations.RunMigrations(ctx, db)
	if err != nil {
		return err
	}
	log.Info("Migrations completed successfully", "applied", applied)
	return nil
}

func migrateSQLite(ctx context.Context, cfg *config.Config, rollback bool) error {
	log := logger.Migration()

	db, err := sqlite.OpenDB(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if rollback {
		name, err := sqlitemigrate.Rollback(ctx, db, sqlitemigrations.FS, ".")
		if err != nil {
			return err
		}
		if name == "" {
			log.Info("No migration to roll back")
			return nil
		}
		log.Info("Migration rollback completed successfully", "name", name)
		return nil
	}

	applied, err := sqlitemigrate.Apply(ctx, db, sqlitemigrations.FS, ".")
	if err != nil {
		return err
	}
	log.Info("Migrations completed successfully", "applied", applied, "path", cfg.Storage.SQLitePath)
	return nil
}
