// Package memory is a mutex-guarded map implementation of the storage
// contract, used for tests and single-process runs.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	"github.com/gravadigital/eventhub-api/internal/domain/participation"
	"github.com/gravadigital/eventhub-api/internal/domain/user"
	"github.com/gravadigital/eventhub-api/internal/logger"
	"github.com/gravadigital/eventhub-api/internal/storage"
)

// Store keeps every record in memory. Returned values are copies.
type Store struct {
	mu             sync.Mutex
	events         map[string]*event.Event
	participations map[string]*participation.Participation
	users          map[string]*user.User
	log            *log.Logger
}

var _ storage.Backend = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		events:         make(map[string]*event.Event),
		participations: make(map[string]*participation.Participation),
		users:          make(map[string]*user.User),
		log:            logger.Repository("memory"),
	}
}

// GetEvent returns a copy of the stored event.
func (s *Store) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyEvent(e), nil
}

// SaveEvent inserts e or updates its editable fields.
func (s *Store) SaveEvent(ctx context.Context, e *event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyEvent(e)
	if existing, ok := s.events[e.ID]; ok {
		if e.MaxParticipants < existing.CurrentParticipants {
			return storage.ErrLimitReached
		}
		stored.CurrentParticipants = existing.CurrentParticipants
		stored.Status = existing.Status
		stored.CreatedAt = existing.CreatedAt
	}
	s.events[e.ID] = stored
	s.log.Debug("event saved", "event_id", e.ID, "status", stored.Status)
	return nil
}

// UpdateEventStatus moves the event from one status to another.
func (s *Store) UpdateEventStatus(ctx context.Context, id string, from, to event.Status, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return storage.ErrNotFound
	}
	if e.Status != from {
		return storage.ErrStale
	}
	e.Status = to
	e.UpdatedAt = at
	return nil
}

// DeleteEvent removes an empty event and its participation history.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return storage.ErrNotFound
	}
	if e.CurrentParticipants > 0 {
		return storage.ErrInUse
	}
	delete(s.events, id)
	for pid, p := range s.participations {
		if p.EventID == id {
			delete(s.participations, pid)
		}
	}
	s.log.Debug("event deleted", "event_id", id)
	return nil
}

// ListEvents returns the events matching filter ordered by date.
func (s *Store) ListEvents(ctx context.Context, filter event.Filter) ([]*event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*event.Event, 0, len(s.events))
	for _, e := range s.events {
		if filter.Matches(e) {
			events = append(events, copyEvent(e))
		}
	}
	slices.SortFunc(events, func(a, b *event.Event) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return events, nil
}

// IncrementIfBelow takes a seat when the counter is below limit and capacity.
func (s *Store) IncrementIfBelow(ctx context.Context, eventID string, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	if e.CurrentParticipants >= limit || e.CurrentParticipants >= e.MaxParticipants {
		return e.CurrentParticipants, storage.ErrLimitReached
	}
	e.CurrentParticipants++
	return e.CurrentParticipants, nil
}

// DecrementFloor releases a seat without going below floor.
func (s *Store) DecrementFloor(ctx context.Context, eventID string, floor int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.releaseLocked(eventID, floor)
}

// GetActiveParticipation returns the registered participation of a pair.
func (s *Store) GetActiveParticipation(ctx context.Context, eventID, userID string) (*participation.Participation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if p := s.activeLocked(eventID, userID); p != nil {
		return copyParticipation(p), nil
	}
	return nil, storage.ErrNotFound
}

// SaveParticipation inserts a new participation.
func (s *Store) SaveParticipation(ctx context.Context, p *participation.Participation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.participations[p.ID]; exists {
		return storage.ErrAlreadyExists
	}
	if p.IsActive() && s.activeLocked(p.EventID, p.UserID) != nil {
		return storage.ErrAlreadyExists
	}
	stored := copyParticipation(p)
	stored.User = nil
	s.participations[p.ID] = stored
	return nil
}

// CancelParticipation marks a registered participation cancelled and
// releases its seat.
func (s *Store) CancelParticipation(ctx context.Context, id string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participations[id]
	if !ok || !p.IsActive() {
		return 0, storage.ErrNotFound
	}
	p.Cancel(at)
	return s.releaseLocked(p.EventID, 0)
}

// DeleteParticipation removes a registered participation and releases its
// seat.
func (s *Store) DeleteParticipation(ctx context.Context, id string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participations[id]
	if !ok || !p.IsActive() {
		return 0, storage.ErrNotFound
	}
	delete(s.participations, id)
	return s.releaseLocked(p.EventID, 0)
}

// ListParticipationsByEvent returns every participation of an event with
// its user attached.
func (s *Store) ListParticipationsByEvent(ctx context.Context, eventID string) ([]*participation.Participation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*participation.Participation
	for _, p := range s.participations {
		if p.EventID != eventID {
			continue
		}
		c := copyParticipation(p)
		if u, ok := s.users[p.UserID]; ok {
			c.User = copyUser(u)
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *participation.Participation) int {
		if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// GetUser returns a copy of the stored user.
func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyUser(u), nil
}

// GetUserByEmail looks a user up by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email = user.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, storage.ErrNotFound
}

// SaveUser inserts or replaces a user.
func (s *Store) SaveUser(ctx context.Context, u *user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.users {
		if other.ID != u.ID && other.Email == u.Email {
			return storage.ErrAlreadyExists
		}
	}
	s.users[u.ID] = copyUser(u)
	return nil
}

// DeleteUser removes a user that no event or participation references.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	for _, e := range s.events {
		if e.OrganizerID == id {
			return storage.ErrInUse
		}
	}
	for _, p := range s.participations {
		if p.UserID == id {
			return storage.ErrInUse
		}
	}
	delete(s.users, id)
	s.log.Debug("user deleted", "user_id", id)
	return nil
}

// ListUsers returns every user ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*user.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, copyUser(u))
	}
	slices.SortFunc(users, func(a, b *user.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return users, nil
}

// Health always succeeds for the in-memory store.
func (s *Store) Health(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) releaseLocked(eventID string, floor int) (int, error) {
	e, ok := s.events[eventID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	if e.CurrentParticipants > floor {
		e.CurrentParticipants--
	}
	return e.CurrentParticipants, nil
}

func (s *Store) activeLocked(eventID, userID string) *participation.Participation {
	for _, p := range s.participations {
		if p.EventID == eventID && p.UserID == userID && p.IsActive() {
			return p
		}
	}
	return nil
}

func copyEvent(e *event.Event) *event.Event {
	c := *e
	return &c
}

func copyParticipation(p *participation.Participation) *participation.Participation {
	c := *p
	if p.CancelledAt != nil {
		at := *p.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}

func copyUser(u *user.User) *user.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}
