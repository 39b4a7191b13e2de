package migrations

import "gorm.io/gorm"

// migration001Up creates extensions and enum types
func migration001Up(db *gorm.DB) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,
		`DO $$ BEGIN
            CREATE TYPE event_status AS ENUM ('draft', 'published', 'cancelled', 'completed');
        EXCEPTION WHEN duplicate_object THEN NULL;
        END $$`,
		`DO $$ BEGIN
            CREATE TYPE participation_status AS ENUM ('registered', 'attended', 'cancelled');
        EXCEPTION WHEN duplicate_object THEN NULL;
        END $$`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// migration001Down drops the enum types
func migration001Down(db *gorm.DB) error {
	if err := db.Exec("DROP TYPE IF EXISTS participation_status CASCADE").Error; err != nil {
		return err
	}
	if err := db.Exec("DROP TYPE IF EXISTS event_status CASCADE").Error; err != nil {
		return err
	}

	// NOTE: the uuid extension stays, other schemas may use it
	return nil
}
