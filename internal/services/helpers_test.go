package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	"github.com/gravadigital/eventhub-api/internal/domain/participation"
	"github.com/gravadigital/eventhub-api/internal/domain/permission"
	"github.com/gravadigital/eventhub-api/internal/domain/user"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/storage/memory"
	"github.com/gravadigital/eventhub-api/internal/storage/sqlite"
)

type fixture struct {
	backend storage.Backend
	svc     *Services
}

func newFixture(t *testing.T, opts ...EnrollmentOption) *fixture {
	t.Helper()
	return newFixtureWith(t, memory.New(), opts...)
}

func newFixtureWith(t *testing.T, backend storage.Backend, opts ...EnrollmentOption) *fixture {
	t.Helper()
	t.Cleanup(func() { _ = backend.Close() })
	return &fixture{backend: backend, svc: New(backend, opts...)}
}

func openSQLite(t *testing.T) storage.Backend {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	return s
}

func (f *fixture) user(t *testing.T, roles ...permission.Role) *user.User {
	t.Helper()
	u := user.NewUser("placeholder@example.com", "Test", "User", roles...)
	u.Email = u.ID + "@example.com"
	require.NoError(t, f.backend.SaveUser(context.Background(), u))
	return u
}

func (f *fixture) event(t *testing.T, organizer *user.User, capacity int) *event.Event {
	t.Helper()
	e, err := f.svc.Events.Create(context.Background(), event.Fields{
		Title:           "Go Meetup",
		Description:     "Talks and pizza",
		Location:        "Lyon",
		Date:            time.Date(2026, time.November, 20, 19, 0, 0, 0, time.UTC),
		MaxParticipants: capacity,
	}, organizer.ID)
	require.NoError(t, err)
	return e
}

func (f *fixture) publishedEvent(t *testing.T, capacity int) (*event.Event, *user.User) {
	t.Helper()
	organizer := f.user(t, permission.RoleOrganizer)
	e := f.event(t, organizer, capacity)
	e, err := f.svc.Events.TransitionStatus(context.Background(), e.ID, event.StatusPublished, organizer.ID)
	require.NoError(t, err)
	return e, organizer
}

func (f *fixture) counter(t *testing.T, eventID string) int {
	t.Helper()
	e, err := f.backend.GetEvent(context.Background(), eventID)
	require.NoError(t, err)
	return e.CurrentParticipants
}

// faultyStore fails SaveParticipation with a fixed error
type faultyStore struct {
	*memory.Store
	saveErr error
}

func (s *faultyStore) SaveParticipation(ctx context.Context, p *participation.Participation) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.SaveParticipation(ctx, p)
}

// cancellingStore cancels the caller's context as soon as a withdrawal
// returns
type cancellingStore struct {
	storage.Backend
	cancel context.CancelFunc
}

func (s *cancellingStore) CancelParticipation(ctx context.Context, id string, at time.Time) (int, error) {
	n, err := s.Backend.CancelParticipation(ctx, id, at)
	s.cancel()
	return n, err
}

func (s *cancellingStore) DeleteParticipation(ctx context.Context, id string) (int, error) {
	n, err := s.Backend.DeleteParticipation(ctx, id)
	s.cancel()
	return n, err
}

// interleavingStore runs afterGet once, right after the next GetEvent has
// read its row, to land a competing write between a read and its write-back
type interleavingStore struct {
	storage.Backend
	mu       sync.Mutex
	afterGet func()
}

func (s *interleavingStore) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	e, err := s.Backend.GetEvent(ctx, id)
	s.mu.Lock()
	fn := s.afterGet
	s.afterGet = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return e, err
}

func (s *interleavingStore) interleave(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterGet = fn
}

func testBackends() map[string]func(t *testing.T) storage.Backend {
	return map[string]func(t *testing.T) storage.Backend{
		"memory": func(t *testing.T) storage.Backend { return memory.New() },
		"sqlite": openSQLite,
	}
}
