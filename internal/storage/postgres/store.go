// Package postgres provides the PostgreSQL implementation of the storage
// contract. Counter changes are single conditional UPDATE statements.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	"github.com/gravadigital/eventhub-api/internal/domain/participation"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/storage/migrations"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// parseID converts a domain identifier. Malformed IDs cannot match a row.
func parseID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, storage.ErrNotFound
	}
	return uid, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// translateError maps driver errors onto the storage sentinels
func translateError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return storage.ErrAlreadyExists
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, storage.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// GetEvent loads a single event.
func (s *Store) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var rec migrations.Event
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", uid).Error; err != nil {
		return nil, translateError("get event", err)
	}
	return toEvent(&rec), nil
}

// SaveEvent upserts an event. The counter and status are only written on
// insert.
func (s *Store) SaveEvent(ctx context.Context, e *event.Event) error {
	rec, err := fromEvent(e)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "location", "date", "max_participants", "updated_at",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "events.current_participants <= excluded.max_participants"},
			}},
		}).
		Create(rec)
	if res.Error != nil {
		return translateError("save event", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrLimitReached
	}
	return nil
}

// UpdateEventStatus writes the new status when the stored one is still from.
func (s *Store) UpdateEventStatus(ctx context.Context, id string, from, to event.Status, at time.Time) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Model(&migrations.Event{}).
		Where("id = ? AND status = ?", uid, migrations.EventStatus(from)).
		Updates(map[string]any{
			"status":     migrations.EventStatus(to),
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return translateError("update event status", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if err := s.eventExists(ctx, uid); err != nil {
		return err
	}
	return storage.ErrStale
}

// DeleteEvent removes an event with a zero counter and its participation
// history, holding the row lock throughout.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec migrations.Event
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rec, "id = ?", uid).Error
		if err != nil {
			return translateError("delete event", err)
		}
		if rec.CurrentParticipants > 0 {
			return storage.ErrInUse
		}
		if err := tx.Where("event_id = ?", uid).Delete(&migrations.Participation{}).Error; err != nil {
			return translateError("delete participations", err)
		}
		if err := tx.Delete(&migrations.Event{}, "id = ?", uid).Error; err != nil {
			return translateError("delete event", err)
		}
		return nil
	})
}

// ListEvents returns the events matching filter ordered by date.
func (s *Store) ListEvents(ctx context.Context, filter event.Filter) ([]*event.Event, error) {
	query := s.db.WithContext(ctx).Model(&migrations.Event{})
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where(`(lower(title) LIKE ? ESCAPE '\' OR lower(description) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if filter.Location != "" {
		query = query.Where(`lower(location) LIKE ? ESCAPE '\'`, likePattern(filter.Location))
	}
	if filter.Status != nil {
		query = query.Where("status = ?", migrations.EventStatus(*filter.Status))
	}
	if filter.DateFrom != nil {
		query = query.Where("date >= ?", filter.DateFrom.UTC())
	}
	if filter.DateTo != nil {
		query = query.Where("date <= ?", filter.DateTo.UTC())
	}

	var recs []migrations.Event
	if err := query.Order("date ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, translateError("list events", err)
	}

	events := make([]*event.Event, 0, len(recs))
	for i := range recs {
		events = append(events, toEvent(&recs[i]))
	}
	return events, nil
}

// IncrementIfBelow takes a seat with a single conditional update.
func (s *Store) IncrementIfBelow(ctx context.Context, eventID string, limit int) (int, error) {
	uid, err := parseID(eventID)
	if err != nil {
		return 0, err
	}
	var recs []migrations.Event
	res := s.db.WithContext(ctx).
		Model(&recs).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "current_participants"}}}).
		Where("id = ? AND current_participants < ? AND current_participants < max_participants", uid, limit).
		UpdateColumn("current_participants", gorm.Expr("current_participants + 1"))
	if res.Error != nil {
		return 0, translateError("increment participants", res.Error)
	}
	if res.RowsAffected == 0 || len(recs) == 0 {
		if err := s.eventExists(ctx, uid); err != nil {
			return 0, err
		}
		return 0, storage.ErrLimitReached
	}
	return recs[0].CurrentParticipants, nil
}

// DecrementFloor releases a seat without going below floor.
func (s *Store) DecrementFloor(ctx context.Context, eventID string, floor int) (int, error) {
	uid, err := parseID(eventID)
	if err != nil {
		return 0, err
	}
	return decrement(s.db.WithContext(ctx), uid, floor)
}

func decrement(db *gorm.DB, uid uuid.UUID, floor int) (int, error) {
	var recs []migrations.Event
	res := db.
		Model(&recs).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "current_participants"}}}).
		Where("id = ?", uid).
		UpdateColumn("current_participants", gorm.Expr(
			"CASE WHEN current_participants > ? THEN current_participants - 1 ELSE current_participants END", floor))
	if res.Error != nil {
		return 0, translateError("decrement participants", res.Error)
	}
	if res.RowsAffected == 0 || len(recs) == 0 {
		return 0, storage.ErrNotFound
	}
	return recs[0].CurrentParticipants, nil
}

// GetActiveParticipation returns the registered participation of a pair.
func (s *Store) GetActiveParticipation(ctx context.Context, eventID, userID string) (*participation.Participation, error) {
	eid, err := parseID(eventID)
	if err != nil {
		return nil, err
	}
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	var rec migrations.Participation
	err = s.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ? AND status = ?", eid, uid, migrations.ParticipationStatusRegistered).
		First(&rec).Error
	if err != nil {
		return nil, translateError("get participation", err)
	}
	return toParticipation(&rec), nil
}

// SaveParticipation inserts a new participation.
func (s *Store) SaveParticipation(ctx context.Context, p *participation.Participation) error {
	rec, err := fromParticipation(p)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(rec).Error; err != nil {
		return translateError("save participation", err)
	}
	return nil
}

// CancelParticipation marks a registered participation cancelled and
// releases its seat in one transaction.
func (s *Store) CancelParticipation(ctx context.Context, id string, at time.Time) (int, error) {
	return s.withdraw(ctx, id, "cancel participation", func(tx *gorm.DB, recs *[]migrations.Participation) *gorm.DB {
		return tx.Model(recs).
			Updates(map[string]any{
				"status":       migrations.ParticipationStatusCancelled,
				"cancelled_at": at.UTC(),
			})
	})
}

// DeleteParticipation removes a registered participation and releases its
// seat in one transaction.
func (s *Store) DeleteParticipation(ctx context.Context, id string) (int, error) {
	return s.withdraw(ctx, id, "delete participation", func(tx *gorm.DB, recs *[]migrations.Participation) *gorm.DB {
		return tx.Delete(recs)
	})
}

// withdraw applies write to the registered participation id, returning its
// event_id, then decrements that event's counter before committing.
func (s *Store) withdraw(ctx context.Context, id, op string,
	write func(tx *gorm.DB, recs *[]migrations.Participation) *gorm.DB) (int, error) {
	uid, err := parseID(id)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recs []migrations.Participation
		res := write(tx.
			Clauses(clause.Returning{Columns: []clause.Column{{Name: "event_id"}}}).
			Where("id = ? AND status = ?", uid, migrations.ParticipationStatusRegistered), &recs)
		if res.Error != nil {
			return translateError(op, res.Error)
		}
		if res.RowsAffected == 0 || len(recs) == 0 {
			return storage.ErrNotFound
		}
		n, err := decrement(tx, recs[0].EventID, 0)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListParticipationsByEvent returns every participation of an event with
// its user preloaded.
func (s *Store) ListParticipationsByEvent(ctx context.Context, eventID string) ([]*participation.Participation, error) {
	uid, err := parseID(eventID)
	if err != nil {
		return nil, err
	}
	var recs []migrations.Participation
	err = s.db.WithContext(ctx).
		Preload("User").
		Where("event_id = ?", uid).
		Order("registered_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, translateError("list participations", err)
	}

	out := make([]*participation.Participation, 0, len(recs))
	for i := range recs {
		out = append(out, toParticipation(&recs[i]))
	}
	return out, nil
}

func (s *Store) eventExists(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&migrations.Event{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return translateError("check event", err)
	}
	if count == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func likePattern(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}
