package migrations

import "gorm.io/gorm"

var checkConstraints = []struct {
	table, name, expr string
}{
	{"events", "chk_events_max_participants", "max_participants >= 1"},
	{"events", "chk_events_current_participants", "current_participants >= 0 AND current_participants <= max_participants"},
	{"users", "chk_users_roles", "cardinality(roles) BETWEEN 1 AND 3"},
	{"participations", "chk_participations_cancelled_at", "(status = 'cancelled') = (cancelled_at IS NOT NULL)"},
}

// migration004Up adds the counter and role CHECK constraints
func migration004Up(db *gorm.DB) error {
	for _, c := range checkConstraints {
		stmt := "ALTER TABLE " + c.table + " DROP CONSTRAINT IF EXISTS " + c.name +
			", ADD CONSTRAINT " + c.name + " CHECK (" + c.expr + ")"
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// migration004Down drops the CHECK constraints
func migration004Down(db *gorm.DB) error {
	for _, c := range checkConstraints {
		if err := db.Exec("ALTER TABLE " + c.table + " DROP CONSTRAINT IF EXISTS " + c.name).Error; err != nil {
			return err
		}
	}
	return nil
}
