package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	"github.com/gravadigital/eventhub-api/internal/domain/permission"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/storage/storagetest"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return openStore(t)
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(path)
	require.NoError(t, err)
	e := storagetest.NewEvent(t, s, 3, event.StatusPublished)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.GetEvent(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Title, got.Title)
	require.NoError(t, s.Health(context.Background()))
}

func TestSaveEventUnknownOrganizer(t *testing.T) {
	s := openStore(t)
	e := event.NewEvent(event.Fields{
		Title: "Orphan", Description: "d", Location: "l",
		Date: storagetest.NewEvent(t, s, 1, event.StatusDraft).Date, MaxParticipants: 1,
	}, "no-such-user")

	assert.ErrorIs(t, s.SaveEvent(context.Background(), e), storage.ErrNotFound)
}

func TestSearchEscapesWildcards(t *testing.T) {
	s := openStore(t)
	storagetest.NewEvent(t, s, 1, event.StatusDraft)

	got, err := s.ListEvents(context.Background(), event.Filter{Search: "%"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRolesRoundTrip(t *testing.T) {
	s := openStore(t)
	u := storagetest.NewUser(t, s, permission.RoleAdmin, permission.RoleParticipant)

	got, err := s.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, []permission.Role{permission.RoleAdmin, permission.RoleParticipant}, got.Roles)
}
