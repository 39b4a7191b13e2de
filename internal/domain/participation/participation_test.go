package participation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIsActive(t *testing.T) {
	p := New("event-1", "user-1")

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, StatusRegistered, p.Status)
	assert.True(t, p.IsActive())
	assert.Nil(t, p.CancelledAt)
	assert.False(t, p.RegisteredAt.IsZero())
}

func TestCancel(t *testing.T) {
	p := New("event-1", "user-1")
	at := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)

	p.Cancel(at)

	assert.False(t, p.IsActive())
	assert.Equal(t, StatusCancelled, p.Status)
	if assert.NotNil(t, p.CancelledAt) {
		assert.Equal(t, at, *p.CancelledAt)
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusRegistered.Valid())
	assert.True(t, StatusAttended.Valid())
	assert.True(t, StatusCancelled.Valid())
	assert.False(t, Status("waitlisted").Valid())
}
