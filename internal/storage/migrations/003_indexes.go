package migrations

import "gorm.io/gorm"

// migration003Up creates lookup indexes and the one-active-participation rule
func migration003Up(db *gorm.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at)",

		"CREATE INDEX IF NOT EXISTS idx_events_organizer ON events(organizer_id)",
		"CREATE INDEX IF NOT EXISTS idx_events_status ON events(status)",
		"CREATE INDEX IF NOT EXISTS idx_events_date ON events(date)",

		"CREATE INDEX IF NOT EXISTS idx_participations_event ON participations(event_id, registered_at)",
		"CREATE INDEX IF NOT EXISTS idx_participations_user ON participations(user_id)",
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_participations_active
            ON participations(event_id, user_id) WHERE status = 'registered'`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}
	return nil
}

// migration003Down drops the indexes
func migration003Down(db *gorm.DB) error {
	indexes := []string{
		"idx_users_created_at",
		"idx_events_organizer",
		"idx_events_status",
		"idx_events_date",
		"idx_participations_event",
		"idx_participations_user",
		"idx_participations_active",
	}

	for _, index := range indexes {
		if err := db.Exec("DROP INDEX IF EXISTS " + index).Error; err != nil {
			return err
		}
	}
	return nil
}
