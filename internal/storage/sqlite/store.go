// Package sqlite provides a SQLite-backed implementation of the storage
// contract for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	"github.com/gravadigital/eventhub-api/internal/domain/participation"
	"github.com/gravadigital/eventhub-api/internal/domain/permission"
	"github.com/gravadigital/eventhub-api/internal/domain/user"
	"github.com/gravadigital/eventhub-api/internal/logger"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/storage/sqlite/migrations"
	"github.com/gravadigital/eventhub-api/internal/storage/sqlitemigrate"
)

// Store persists events, participations and users in SQLite.
type Store struct {
	sqlDB *sql.DB
	log   *log.Logger
}

var _ storage.Backend = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenDB opens the SQLite database at path without applying migrations.
func OpenDB(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer at a time keeps the conditional updates free of SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return sqlDB, nil
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	sqlDB, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{sqlDB: sqlDB, log: logger.Repository("sqlite")}
	s.log.Info("SQLite store opened", "path", path)
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

const eventColumns = `id, title, description, location, date, max_participants,
	current_participants, status, organizer_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*event.Event, error) {
	var (
		e                          event.Event
		date, createdAt, updatedAt int64
	)
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &date, &e.MaxParticipants,
		&e.CurrentParticipants, &e.Status, &e.OrganizerID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.Date = fromMillis(date)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return &e, nil
}

// GetEvent loads a single event.
func (s *Store) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// SaveEvent upserts an event. The counter and status are only written on
// insert.
func (s *Store) SaveEvent(ctx context.Context, e *event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   description = excluded.description,
		   location = excluded.location,
		   date = excluded.date,
		   max_participants = excluded.max_participants,
		   updated_at = excluded.updated_at
		 WHERE events.current_participants <= excluded.max_participants`,
		e.ID, e.Title, e.Description, e.Location, toMillis(e.Date), e.MaxParticipants,
		e.CurrentParticipants, string(e.Status), e.OrganizerID, toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
	)
	if err != nil {
		if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return fmt.Errorf("save event: organizer %s: %w", e.OrganizerID, storage.ErrNotFound)
		}
		return fmt.Errorf("save event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	if n == 0 {
		return storage.ErrLimitReached
	}
	return nil
}

// UpdateEventStatus writes the new status when the stored one is still from.
func (s *Store) UpdateEventStatus(ctx context.Context, id string, from, to event.Status, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), toMillis(at), id, string(from))
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if n > 0 {
		return nil
	}
	if err := s.eventExists(ctx, id); err != nil {
		return err
	}
	return storage.ErrStale
}

// DeleteEvent removes an event with a zero counter. Participations go with
// it through the cascade.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM events WHERE id = ? AND current_participants = 0`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n > 0 {
		return nil
	}
	if err := s.eventExists(ctx, id); err != nil {
		return err
	}
	return storage.ErrInUse
}

// ListEvents returns the events matching filter ordered by date.
func (s *Store) ListEvents(ctx context.Context, filter event.Filter) ([]*event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		where = append(where, `(lower(title) LIKE ? ESCAPE '\' OR lower(description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if filter.Location != "" {
		where = append(where, `lower(location) LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(filter.Location))
	}
	if filter.Status != nil {
		where = append(where, `status = ?`)
		args = append(args, string(*filter.Status))
	}
	if filter.DateFrom != nil {
		where = append(where, `date >= ?`)
		args = append(args, toMillis(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		where = append(where, `date <= ?`)
		args = append(args, toMillis(*filter.DateTo))
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date ASC, id ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]*event.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// IncrementIfBelow takes a seat with a single conditional update.
func (s *Store) IncrementIfBelow(ctx context.Context, eventID string, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	err := s.sqlDB.QueryRowContext(ctx,
		`UPDATE events SET current_participants = current_participants + 1
		 WHERE id = ? AND current_participants < ? AND current_participants < max_participants
		 RETURNING current_participants`,
		eventID, limit,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		if err := s.eventExists(ctx, eventID); err != nil {
			return 0, err
		}
		return 0, storage.ErrLimitReached
	}
	if err != nil {
		return 0, fmt.Errorf("increment participants: %w", err)
	}
	return count, nil
}

// DecrementFloor releases a seat without going below floor.
func (s *Store) DecrementFloor(ctx context.Context, eventID string, floor int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return decrement(ctx, s.sqlDB, eventID, floor)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func decrement(ctx context.Context, q queryRower, eventID string, floor int) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`UPDATE events SET current_participants = CASE
		   WHEN current_participants > ? THEN current_participants - 1
		   ELSE current_participants END
		 WHERE id = ?
		 RETURNING current_participants`,
		floor, eventID,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("decrement participants: %w", err)
	}
	return count, nil
}

const participationColumns = `p.id, p.event_id, p.user_id, p.status, p.registered_at, p.cancelled_at`

func scanParticipation(row rowScanner, extra ...any) (*participation.Participation, error) {
	var (
		p            participation.Participation
		registeredAt int64
		cancelledAt  sql.NullInt64
	)
	dest := append([]any{&p.ID, &p.EventID, &p.UserID, &p.Status, &registeredAt, &cancelledAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	p.RegisteredAt = fromMillis(registeredAt)
	if cancelledAt.Valid {
		at := fromMillis(cancelledAt.Int64)
		p.CancelledAt = &at
	}
	return &p, nil
}

// GetActiveParticipation returns the registered participation of a pair.
func (s *Store) GetActiveParticipation(ctx context.Context, eventID, userID string) (*participation.Participation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+participationColumns+` FROM participations p
		 WHERE p.event_id = ? AND p.user_id = ? AND p.status = ?`,
		eventID, userID, string(participation.StatusRegistered))
	p, err := scanParticipation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get participation: %w", err)
	}
	return p, nil
}

// SaveParticipation inserts a new participation.
func (s *Store) SaveParticipation(ctx context.Context, p *participation.Participation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var cancelledAt sql.NullInt64
	if p.CancelledAt != nil {
		cancelledAt = sql.NullInt64{Int64: toMillis(*p.CancelledAt), Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO participations (id, event_id, user_id, status, registered_at, cancelled_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.EventID, p.UserID, string(p.Status), toMillis(p.RegisteredAt), cancelledAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return storage.ErrAlreadyExists
		case isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY):
			return fmt.Errorf("save participation: %w", storage.ErrNotFound)
		}
		return fmt.Errorf("save participation: %w", err)
	}
	return nil
}

// CancelParticipation marks a registered participation cancelled and
// releases its seat in one transaction.
func (s *Store) CancelParticipation(ctx context.Context, id string, at time.Time) (int, error) {
	return s.withdraw(ctx, "cancel participation",
		`UPDATE participations SET status = ?, cancelled_at = ?
		 WHERE id = ? AND status = ?
		 RETURNING event_id`,
		string(participation.StatusCancelled), toMillis(at), id, string(participation.StatusRegistered))
}

// DeleteParticipation removes a registered participation and releases its
// seat in one transaction.
func (s *Store) DeleteParticipation(ctx context.Context, id string) (int, error) {
	return s.withdraw(ctx, "delete participation",
		`DELETE FROM participations WHERE id = ? AND status = ? RETURNING event_id`,
		id, string(participation.StatusRegistered))
}

// withdraw runs a participation write returning its event_id, then
// decrements that event's counter before committing.
func (s *Store) withdraw(ctx context.Context, op, query string, args ...any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID string
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	count, err := decrement(ctx, tx, eventID, 0)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", op, err)
	}
	return count, nil
}

// ListParticipationsByEvent returns every participation of an event with
// its user attached.
func (s *Store) ListParticipationsByEvent(ctx context.Context, eventID string) ([]*participation.Participation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+participationColumns+`,
		   u.id, u.email, u.first_name, u.last_name, u.roles, u.created_at
		 FROM participations p
		 LEFT JOIN users u ON u.id = p.user_id
		 WHERE p.event_id = ?
		 ORDER BY p.registered_at ASC, p.id ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	defer rows.Close()

	out := make([]*participation.Participation, 0)
	for rows.Next() {
		var (
			uid, email, first, last, roles sql.NullString
			createdAt                      sql.NullInt64
		)
		p, err := scanParticipation(rows, &uid, &email, &first, &last, &roles, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan participation: %w", err)
		}
		if uid.Valid {
			p.User = &user.User{
				ID:        uid.String,
				Email:     email.String,
				FirstName: first.String,
				LastName:  last.String,
				Roles:     decodeRoles(roles.String),
				CreatedAt: fromMillis(createdAt.Int64),
			}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	return out, nil
}

const userColumns = `id, email, first_name, last_name, roles, created_at`

func scanUser(row rowScanner) (*user.User, error) {
	var (
		u         user.User
		roles     string
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &roles, &createdAt); err != nil {
		return nil, err
	}
	u.Roles = decodeRoles(roles)
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

// GetUser loads a single user.
func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := scanUser(s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks a user up by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := scanUser(s.sqlDB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, user.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// SaveUser upserts a user keyed by id.
func (s *Store) SaveUser(ctx context.Context, u *user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   email = excluded.email,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   roles = excluded.roles`,
		u.ID, u.Email, u.FirstName, u.LastName, encodeRoles(u.Roles), toMillis(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// DeleteUser removes a user. Foreign keys reject the delete while events
// or participations reference the user.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return storage.ErrInUse
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return requireRow(res, "delete user")
}

// ListUsers returns every user ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]*user.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Store) eventExists(ctx context.Context, id string) error {
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check event: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func likePattern(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

func encodeRoles(roles []permission.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func decodeRoles(s string) []permission.Role {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	roles := make([]permission.Role, len(parts))
	for i, p := range parts {
		roles[i] = permission.Role(p)
	}
	return roles
}

func isUniqueViolation(err error) bool {
	return isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY)
}

func isConstraint(err error, codes ...int) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	for _, code := range codes {
		if sqliteErr.Code() == code {
			return true
		}
	}
	return false
}
