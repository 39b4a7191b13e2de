// Package sqlitemigrate applies embedded SQL migration files to a SQLite
// database, recording each applied file in schema_migrations.
package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/gravadigital/eventhub-api/internal/logger"
)

const (
	migrationTable = "schema_migrations"
	upMarker       = "-- +migrate Up"
	downMarker     = "-- +migrate Down"
)

// Apply runs every .sql file under root that is not yet recorded, in name
// order, each in its own transaction. It returns the names it applied.
func Apply(ctx context.Context, db *sql.DB, migrationFS fs.FS, root string) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	log := logger.Migration()

	files, err := listFiles(migrationFS, root)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	var applied []string
	for _, name := range files {
		done, err := isApplied(ctx, db, name)
		if err != nil {
			return applied, fmt.Errorf("check migration %s: %w", name, err)
		}
		if done {
			continue
		}

		content, err := fs.ReadFile(migrationFS, path.Join(root, name))
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}
		up, _ := Split(string(content))

		err = inTx(ctx, db, func(tx *sql.Tx) error {
			if strings.TrimSpace(up) != "" {
				if _, err := tx.ExecContext(ctx, up); err != nil {
					return fmt.Errorf("exec migration %s: %w", name, err)
				}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
				name, time.Now().UTC().UnixMilli())
			if err != nil {
				return fmt.Errorf("record migration %s: %w", name, err)
			}
			return nil
		})
		if err != nil {
			return applied, err
		}

		log.Info("Applied migration", "name", name)
		applied = append(applied, name)
	}

	return applied, nil
}

// Rollback runs the Down section of the most recently applied migration
// and forgets it. It returns the rolled back name, or "" when nothing is
// applied.
func Rollback(ctx context.Context, db *sql.DB, migrationFS fs.FS, root string) (string, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM `+migrationTable+` ORDER BY name DESC LIMIT 1`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find last migration: %w", err)
	}

	content, err := fs.ReadFile(migrationFS, path.Join(root, name))
	if err != nil {
		return "", fmt.Errorf("read migration %s: %w", name, err)
	}
	_, down := Split(string(content))

	err = inTx(ctx, db, func(tx *sql.Tx) error {
		if strings.TrimSpace(down) != "" {
			if _, err := tx.ExecContext(ctx, down); err != nil {
				return fmt.Errorf("exec rollback %s: %w", name, err)
			}
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM `+migrationTable+` WHERE name = ?`, name)
		return err
	})
	if err != nil {
		return "", err
	}

	logger.Migration().Info("Rolled back migration", "name", name)
	return name, nil
}

// Split returns the Up and Down sections of a migration file. A file
// without markers is all Up.
func Split(content string) (up, down string) {
	upIdx := strings.Index(content, upMarker)
	downIdx := strings.Index(content, downMarker)

	switch {
	case upIdx == -1 && downIdx == -1:
		return content, ""
	case upIdx == -1:
		return content[:downIdx], content[downIdx+len(downMarker):]
	case downIdx == -1:
		return content[upIdx+len(upMarker):], ""
	case downIdx < upIdx:
		return content[upIdx+len(upMarker):], content[downIdx+len(downMarker) : upIdx]
	default:
		return content[upIdx+len(upMarker) : downIdx], content[downIdx+len(downMarker):]
	}
}

func listFiles(migrationFS fs.FS, root string) ([]string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	slices.Sort(files)
	return files, nil
}

func isApplied(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var found int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM `+migrationTable+` WHERE name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
