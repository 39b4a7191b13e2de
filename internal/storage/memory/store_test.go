package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return New()
	})
}

func TestReturnedEventsAreCopies(t *testing.T) {
	s := New()
	e := storagetest.NewEvent(t, s, 3, event.StatusPublished)

	got, err := s.GetEvent(context.Background(), e.ID)
	require.NoError(t, err)
	got.Title = "mutated"
	got.CurrentParticipants = 3

	again, err := s.GetEvent(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go Meetup", again.Title)
	assert.Zero(t, again.CurrentParticipants)
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetEvent(ctx, "any")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.IncrementIfBelow(ctx, "any", 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Health(ctx), context.Canceled)
}
