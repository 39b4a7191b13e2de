package postgres

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/gravadigital/eventhub-api/internal/domain/user"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/storage/migrations"
)

// GetUser loads a single user.
func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var rec migrations.User
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", uid).Error; err != nil {
		return nil, translateError("get user", err)
	}
	return toUser(&rec), nil
}

// GetUserByEmail looks a user up by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	var rec migrations.User
	err := s.db.WithContext(ctx).First(&rec, "email = ?", user.NormalizeEmail(email)).Error
	if err != nil {
		return nil, translateError("get user by email", err)
	}
	return toUser(&rec), nil
}

// SaveUser upserts a user keyed by id.
func (s *Store) SaveUser(ctx context.Context, u *user.User) error {
	rec, err := fromUser(u)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "first_name", "last_name", "roles", "updated_at"}),
		}).
		Create(rec).Error
	if err != nil {
		return translateError("save user", err)
	}
	return nil
}

// DeleteUser removes a user. The restricting foreign keys reject the delete
// while events or participations reference the user.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Delete(&migrations.User{}, "id = ?", uid)
	if res.Error != nil {
		if isForeignKeyViolation(res.Error) {
			return storage.ErrInUse
		}
		return translateError("delete user", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListUsers returns every user ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]*user.User, error) {
	var recs []migrations.User
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, translateError("list users", err)
	}

	users := make([]*user.User, 0, len(recs))
	for i := range recs {
		users = append(users, toUser(&recs[i]))
	}
	return users, nil
}
