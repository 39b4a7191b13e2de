package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravadigital/eventhub-api/internal/domain/event"
	"github.com/gravadigital/eventhub-api/internal/domain/permission"
	apperrors "github.com/gravadigital/eventhub-api/internal/errors"
)

func TestCreateThenGetRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	organizer := f.user(t, permission.RoleOrganizer)

	created := f.event(t, organizer, 10)
	assert.Equal(t, event.StatusDraft, created.Status)
	assert.Zero(t, created.CurrentParticipants)
	assert.Equal(t, organizer.ID, created.OrganizerID)

	got, err := f.svc.Events.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, created.Description, got.Description)
	assert.Equal(t, created.Location, got.Location)
	assert.True(t, created.Date.Equal(got.Date))
	assert.Equal(t, 10, got.MaxParticipants)
	assert.Zero(t, got.CurrentParticipants)
	assert.Equal(t, event.StatusDraft, got.Status)
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	organizer := f.user(t, permission.RoleOrganizer)

	_, err := f.svc.Events.Create(ctx, event.Fields{Title: "x", MaxParticipants: 0}, organizer.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalid))

	_, err = f.svc.Events.Create(ctx, event.Fields{
		Title: "Go", Description: "d", Location: "l", Date: time.Now(), MaxParticipants: 1,
	}, "missing-organizer")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUserNotFound))
}

func TestGetMissingEvent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Events.Get(context.Background(), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventNotFound))
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestTransitionDraftToCompletedConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	organizer := f.user(t, permission.RoleOrganizer)
	e := f.event(t, organizer, 5)

	_, err := f.svc.Events.TransitionStatus(ctx, e.ID, event.StatusCompleted, organizer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventInvalidStatusTransition))
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))

	got, err := f.svc.Events.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusDraft, got.Status)
}

func TestTransitionByNonOrganizerIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	organizer := f.user(t, permission.RoleOrganizer)
	other := f.user(t, permission.RoleOrganizer, permission.RoleAdmin)
	e := f.event(t, organizer, 5)

	_, err := f.svc.Events.TransitionStatus(ctx, e.ID, event.StatusPublished, other.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	got, err := f.svc.Events.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusDraft, got.Status)
}

func TestTransitionChecksOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	organizer := f.user(t, permission.RoleOrganizer)
	e := f.event(t, organizer, 5)

	_, err := f.svc.Events.TransitionStatus(ctx, "missing", event.StatusPublished, organizer.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventNotFound))

	// forbidden wins over an illegal edge
	_, err = f.svc.Events.TransitionStatus(ctx, e.ID, event.StatusCompleted, "stranger")
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	_, err = f.svc.Events.TransitionStatus(ctx, e.ID, event.Status("archived"), organizer.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalid))
}

func TestTransitionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, organizer := f.publishedEvent(t, 5)
	assert.Equal(t, event.StatusPublished, e.Status)

	_, err := f.svc.Events.TransitionStatus(ctx, e.ID, event.StatusPublished, organizer.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "self transition")

	e, err = f.svc.Events.TransitionStatus(ctx, e.ID, event.StatusCompleted, organizer.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusCompleted, e.Status)

	for _, next := range []event.Status{event.StatusDraft, event.StatusPublished, event.StatusCancelled} {
		_, err = f.svc.Events.TransitionStatus(ctx, e.ID, next, organizer.ID)
		assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "completed -> %s", next)
	}
}

func TestTransitionKeepsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, organizer := f.publishedEvent(t, 5)
	member := f.user(t, permission.RoleParticipant)

	_, err := f.svc.Enrollment.Register(ctx, e.ID, member.ID)
	require.NoError(t, err)

	e, err = f.svc.Events.TransitionStatus(ctx, e.ID, event.StatusCancelled, organizer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, e.CurrentParticipants)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, _ := f.publishedEvent(t, 5)
	member := f.user(t, permission.RoleParticipant)
	other := f.user(t, permission.RoleParticipant)

	for _, u := range []string{member.ID, other.ID} {
		_, err := f.svc.Enrollment.Register(ctx, e.ID, u)
		require.NoError(t, err)
	}

	title := "Go Meetup #2"
	capacity := 2
	got, err := f.svc.Events.Update(ctx, e.ID, event.Patch{Title: &title, MaxParticipants: &capacity})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, 2, got.MaxParticipants)
	assert.Equal(t, 2, got.CurrentParticipants)
	assert.Equal(t, event.StatusPublished, got.Status)

	capacity = 1
	_, err = f.svc.Events.Update(ctx, e.ID, event.Patch{MaxParticipants: &capacity})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventCapacityBelowRegistered))

	capacity = 0
	_, err = f.svc.Events.Update(ctx, e.ID, event.Patch{MaxParticipants: &capacity})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalid))

	_, err = f.svc.Events.Update(ctx, "missing", event.Patch{Title: &title})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventNotFound))
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, _ := f.publishedEvent(t, 5)
	member := f.user(t, permission.RoleParticipant)

	_, err := f.svc.Enrollment.Register(ctx, e.ID, member.ID)
	require.NoError(t, err)

	err = f.svc.Events.Remove(ctx, e.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventHasParticipants))
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))

	require.NoError(t, f.svc.Enrollment.Cancel(ctx, e.ID, member.ID))
	require.NoError(t, f.svc.Events.Remove(ctx, e.ID))

	_, err = f.svc.Events.Get(ctx, e.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventNotFound))
	assert.True(t, apperrors.HasCode(f.svc.Events.Remove(ctx, e.ID), apperrors.CodeEventNotFound))
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	published, _ := f.publishedEvent(t, 5)
	organizer := f.user(t, permission.RoleOrganizer)
	draft := f.event(t, organizer, 5)

	all, err := f.svc.Events.List(ctx, event.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	status := event.StatusPublished
	got, err := f.svc.Events.List(ctx, event.Filter{Status: &status, Search: "MEETUP"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, published.ID, got[0].ID)
	assert.NotEqual(t, draft.ID, got[0].ID)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err = f.svc.Events.List(ctx, event.Filter{DateFrom: &from, DateTo: &to})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalid))
}

func TestUpdateDoesNotUndoConcurrentTransition(t *testing.T) {
	for name, open := range testBackends() {
		t.Run(name, func(t *testing.T) {
			store := &interleavingStore{Backend: open(t)}
			f := newFixtureWith(t, store)
			ctx := context.Background()
			e, organizer := f.publishedEvent(t, 5)

			store.interleave(func() {
				_, err := f.svc.Events.TransitionStatus(ctx, e.ID, event.StatusCancelled, organizer.ID)
				require.NoError(t, err)
			})

			title := "Go Meetup, rescheduled"
			updated, err := f.svc.Events.Update(ctx, e.ID, event.Patch{Title: &title})
			require.NoError(t, err)
			assert.Equal(t, title, updated.Title)
			assert.Equal(t, event.StatusCancelled, updated.Status)

			got, err := f.svc.Events.Get(ctx, e.ID)
			require.NoError(t, err)
			assert.Equal(t, event.StatusCancelled, got.Status)
		})
	}
}

func TestTransitionLosingRaceConflicts(t *testing.T) {
	for name, open := range testBackends() {
		t.Run(name, func(t *testing.T) {
			store := &interleavingStore{Backend: open(t)}
			f := newFixtureWith(t, store)
			ctx := context.Background()
			e, organizer := f.publishedEvent(t, 5)

			store.interleave(func() {
				_, err := f.svc.Events.TransitionStatus(ctx, e.ID, event.StatusCancelled, organizer.ID)
				require.NoError(t, err)
			})

			_, err := f.svc.Events.TransitionStatus(ctx, e.ID, event.StatusCompleted, organizer.ID)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeEventInvalidStatusTransition), "got %v", err)

			got, err := f.svc.Events.Get(ctx, e.ID)
			require.NoError(t, err)
			assert.Equal(t, event.StatusCancelled, got.Status)
		})
	}
}
