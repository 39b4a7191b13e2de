// Package storagetest holds behavioural tests shared by every storage adapter.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	"github.com/gravadigital/eventhub-api/internal/domain/participation"
	"github.com/gravadigital/eventhub-api/internal/domain/permission"
	"github.com/gravadigital/eventhub-api/internal/domain/user"
	"github.com/gravadigital/eventhub-api/internal/storage"
)

// Factory opens a fresh, empty backend for one subtest.
type Factory func(t *testing.T) storage.Backend

// Run exercises the storage contract against backends produced by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Backend)
	}{
		{"EventRoundTrip", testEventRoundTrip},
		{"SaveEventKeepsCounter", testSaveEventKeepsCounter},
		{"UpdateEventStatus", testUpdateEventStatus},
		{"ListEventsFilter", testListEventsFilter},
		{"IncrementIfBelow", testIncrementIfBelow},
		{"DecrementFloor", testDecrementFloor},
		{"ConcurrentIncrement", testConcurrentIncrement},
		{"DeleteEvent", testDeleteEvent},
		{"ParticipationUniqueness", testParticipationUniqueness},
		{"CancelParticipation", testCancelParticipation},
		{"DeleteParticipation", testDeleteParticipation},
		{"ListParticipations", testListParticipations},
		{"Users", testUsers},
		{"DeleteUser", testDeleteUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// NewEvent builds a valid event for tests. The organizer is saved first
// because SQL backends enforce the foreign key.
func NewEvent(t *testing.T, s storage.Backend, capacity int, status event.Status) *event.Event {
	t.Helper()
	organizer := NewUser(t, s, permission.RoleOrganizer)
	e := event.NewEvent(event.Fields{
		Title:           "Go Meetup",
		Description:     "Talks and pizza",
		Location:        "Lyon",
		Date:            time.Date(2026, time.November, 20, 19, 0, 0, 0, time.UTC),
		MaxParticipants: capacity,
	}, organizer.ID)
	e.Status = status
	require.NoError(t, s.SaveEvent(context.Background(), e))
	return e
}

// NewUser saves a user holding roles under a unique email.
func NewUser(t *testing.T, s storage.UserStore, roles ...permission.Role) *user.User {
	t.Helper()
	u := user.NewUser("placeholder@example.com", "Test", "User", roles...)
	u.Email = u.ID + "@example.com"
	require.NoError(t, s.SaveUser(context.Background(), u))
	return u
}

func testEventRoundTrip(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	e := NewEvent(t, s, 10, event.StatusDraft)

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Title, got.Title)
	assert.Equal(t, e.Description, got.Description)
	assert.Equal(t, e.Location, got.Location)
	assert.True(t, e.Date.Equal(got.Date))
	assert.Equal(t, 10, got.MaxParticipants)
	assert.Zero(t, got.CurrentParticipants)
	assert.Equal(t, event.StatusDraft, got.Status)
	assert.Equal(t, e.OrganizerID, got.OrganizerID)

	_, err = s.GetEvent(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testSaveEventKeepsCounter(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	e := NewEvent(t, s, 5, event.StatusPublished)

	_, err := s.IncrementIfBelow(ctx, e.ID, 5)
	require.NoError(t, err)

	e.Title = "Renamed"
	e.CurrentParticipants = 0
	e.Status = event.StatusDraft
	require.NoError(t, s.SaveEvent(ctx, e))

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, 1, got.CurrentParticipants)
	assert.Equal(t, event.StatusPublished, got.Status)

	_, err = s.IncrementIfBelow(ctx, e.ID, 5)
	require.NoError(t, err)
	e.MaxParticipants = 1
	assert.ErrorIs(t, s.SaveEvent(ctx, e), storage.ErrLimitReached)

	got, err = s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.MaxParticipants)
	assert.Equal(t, "Renamed", got.Title)
}

func testUpdateEventStatus(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	e := NewEvent(t, s, 5, event.StatusDraft)
	at := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)

	require.NoError(t, s.UpdateEventStatus(ctx, e.ID, event.StatusDraft, event.StatusPublished, at))
	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusPublished, got.Status)
	assert.True(t, at.Equal(got.UpdatedAt))

	// the stored status is no longer draft
	err = s.UpdateEventStatus(ctx, e.ID, event.StatusDraft, event.StatusCancelled, at)
	assert.ErrorIs(t, err, storage.ErrStale)
	got, err = s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusPublished, got.Status)

	err = s.UpdateEventStatus(ctx, "00000000-0000-0000-0000-000000000000",
		event.StatusDraft, event.StatusPublished, at)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testListEventsFilter(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	a := NewEvent(t, s, 5, event.StatusPublished)
	b := NewEvent(t, s, 5, event.StatusDraft)
	b.Title = "Rust Night"
	b.Location = "Paris"
	b.Date = a.Date.Add(48 * time.Hour)
	require.NoError(t, s.SaveEvent(ctx, b))

	all, err := s.ListEvents(ctx, event.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)

	published := event.StatusPublished
	got, err := s.ListEvents(ctx, event.Filter{Status: &published})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	got, err = s.ListEvents(ctx, event.Filter{Search: "rust", Location: "par"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	from := a.Date.Add(time.Hour)
	got, err = s.ListEvents(ctx, event.Filter{DateFrom: &from})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	got, err = s.ListEvents(ctx, event.Filter{Search: "nothing matches"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testIncrementIfBelow(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	e := NewEvent(t, s, 2, event.StatusPublished)

	n, err := s.IncrementIfBelow(ctx, e.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.IncrementIfBelow(ctx, e.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.IncrementIfBelow(ctx, e.ID, 2)
	assert.ErrorIs(t, err, storage.ErrLimitReached)

	// the stored capacity bounds the counter even with a stale limit
	_, err = s.IncrementIfBelow(ctx, e.ID, 10)
	assert.ErrorIs(t, err, storage.ErrLimitReached)

	_, err = s.IncrementIfBelow(ctx, "00000000-0000-0000-0000-000000000000", 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentParticipants)
}

func testDecrementFloor(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	e := NewEvent(t, s, 2, event.StatusPublished)

	_, err := s.IncrementIfBelow(ctx, e.ID, 2)
	require.NoError(t, err)

	n, err := s.DecrementFloor(ctx, e.ID, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DecrementFloor(ctx, e.ID, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.DecrementFloor(ctx, "00000000-0000-0000-0000-000000000000", 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testConcurrentIncrement(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	const capacity, workers = 5, 40
	e := NewEvent(t, s, capacity, event.StatusPublished)

	var ok, rejected atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementIfBelow(ctx, e.ID, capacity)
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, storage.ErrLimitReached):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, capacity, ok.Load())
	assert.EqualValues(t, workers-capacity, rejected.Load())

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, got.CurrentParticipants)
}

func testDeleteEvent(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	e := NewEvent(t, s, 2, event.StatusPublished)
	member := NewUser(t, s, permission.RoleParticipant)

	_, err := s.IncrementIfBelow(ctx, e.ID, 2)
	require.NoError(t, err)
	p := participation.New(e.ID, member.ID)
	require.NoError(t, s.SaveParticipation(ctx, p))

	assert.ErrorIs(t, s.DeleteEvent(ctx, e.ID), storage.ErrInUse)

	count, err := s.CancelParticipation(ctx, p.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, s.DeleteEvent(ctx, e.ID))
	_, err = s.GetEvent(ctx, e.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	history, err := s.ListParticipationsByEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.ErrorIs(t, s.DeleteEvent(ctx, e.ID), storage.ErrNotFound)
}

func testParticipationUniqueness(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	e := NewEvent(t, s, 5, event.StatusPublished)
	member := NewUser(t, s, permission.RoleParticipant)

	first := participation.New(e.ID, member.ID)
	require.NoError(t, s.SaveParticipation(ctx, first))

	second := participation.New(e.ID, member.ID)
	assert.ErrorIs(t, s.SaveParticipation(ctx, second), storage.ErrAlreadyExists)

	got, err := s.GetActiveParticipation(ctx, e.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// a cancelled row does not block a new registration
	_, err = s.CancelParticipation(ctx, first.ID, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.SaveParticipation(ctx, second))

	got, err = s.GetActiveParticipation(ctx, e.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func testCancelParticipation(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	e := NewEvent(t, s, 5, event.StatusPublished)
	member := NewUser(t, s, permission.RoleParticipant)
	_, err := s.IncrementIfBelow(ctx, e.ID, 5)
	require.NoError(t, err)
	p := participation.New(e.ID, member.ID)
	require.NoError(t, s.SaveParticipation(ctx, p))

	at := time.Now().UTC().Truncate(time.Millisecond)
	count, err := s.CancelParticipation(ctx, p.ID, at)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = s.CancelParticipation(ctx, p.ID, at)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CurrentParticipants)

	_, err = s.GetActiveParticipation(ctx, e.ID, member.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	history, err := s.ListParticipationsByEvent(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, participation.StatusCancelled, history[0].Status)
	require.NotNil(t, history[0].CancelledAt)
	assert.True(t, at.Equal(*history[0].CancelledAt))
}

func testDeleteParticipation(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	e := NewEvent(t, s, 5, event.StatusPublished)
	member := NewUser(t, s, permission.RoleParticipant)
	other := NewUser(t, s, permission.RoleParticipant)
	for range 2 {
		_, err := s.IncrementIfBelow(ctx, e.ID, 5)
		require.NoError(t, err)
	}
	p := participation.New(e.ID, member.ID)
	require.NoError(t, s.SaveParticipation(ctx, p))
	require.NoError(t, s.SaveParticipation(ctx, participation.New(e.ID, other.ID)))

	count, err := s.DeleteParticipation(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = s.DeleteParticipation(ctx, p.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentParticipants)

	_, err = s.GetActiveParticipation(ctx, e.ID, member.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	history, err := s.ListParticipationsByEvent(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, other.ID, history[0].UserID)
}

func testListParticipations(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	e := NewEvent(t, s, 5, event.StatusPublished)
	first := NewUser(t, s, permission.RoleParticipant)
	second := NewUser(t, s, permission.RoleParticipant)

	p1 := participation.New(e.ID, first.ID)
	p1.RegisteredAt = time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	p2 := participation.New(e.ID, second.ID)
	p2.RegisteredAt = p1.RegisteredAt.Add(30 * time.Second)
	require.NoError(t, s.SaveParticipation(ctx, p2))
	require.NoError(t, s.SaveParticipation(ctx, p1))

	got, err := s.ListParticipationsByEvent(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, p1.ID, got[0].ID)
	assert.Equal(t, p2.ID, got[1].ID)
	require.NotNil(t, got[0].User)
	assert.Equal(t, first.Email, got[0].User.Email)
	assert.True(t, p1.RegisteredAt.Equal(got[0].RegisteredAt))
}

func testUsers(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	u := user.NewUser("Grace@Example.com", "Grace", "Hopper", permission.RoleAdmin, permission.RoleOrganizer)
	require.NoError(t, s.SaveUser(ctx, u))

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", got.Email)
	assert.ElementsMatch(t, []permission.Role{permission.RoleAdmin, permission.RoleOrganizer}, got.Roles)

	got, err = s.GetUserByEmail(ctx, "grace@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetUser(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	clash := user.NewUser("grace@example.com", "Other", "Grace")
	assert.ErrorIs(t, s.SaveUser(ctx, clash), storage.ErrAlreadyExists)

	u.LastName = "Brewster Hopper"
	require.NoError(t, s.SaveUser(ctx, u))
	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Brewster Hopper", got.LastName)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func testDeleteUser(t *testing.T, s storage.Backend) {
	ctx := context.Background()
	e := NewEvent(t, s, 5, event.StatusPublished)
	member := NewUser(t, s, permission.RoleParticipant)
	loner := NewUser(t, s, permission.RoleParticipant)

	p := participation.New(e.ID, member.ID)
	require.NoError(t, s.SaveParticipation(ctx, p))
	_, err := s.CancelParticipation(ctx, p.ID, time.Now().UTC())
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteUser(ctx, e.OrganizerID), storage.ErrInUse)
	// cancelled history still references the user
	assert.ErrorIs(t, s.DeleteUser(ctx, member.ID), storage.ErrInUse)

	require.NoError(t, s.DeleteUser(ctx, loner.ID))
	_, err = s.GetUser(ctx, loner.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, loner.ID), storage.ErrNotFound)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
