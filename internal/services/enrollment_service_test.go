package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravadigital/eventhub-api/internal/domain/participation"
	"github.com/gravadigital/eventhub-api/internal/domain/permission"
	"github.com/gravadigital/eventhub-api/internal/domain/user"
	apperrors "github.com/gravadigital/eventhub-api/internal/errors"
	"github.com/gravadigital/eventhub-api/internal/storage"
	"github.com/gravadigital/eventhub-api/internal/storage/memory"
)

func TestRegisterOnDraftConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	organizer := f.user(t, permission.RoleOrganizer)
	member := f.user(t, permission.RoleParticipant)
	e := f.event(t, organizer, 5)

	_, err := f.svc.Enrollment.Register(ctx, e.ID, member.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventNotPublished))
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	assert.Zero(t, f.counter(t, e.ID))
}

func TestRegisterMissingEventOrUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, _ := f.publishedEvent(t, 5)
	member := f.user(t, permission.RoleParticipant)

	_, err := f.svc.Enrollment.Register(ctx, "missing", member.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventNotFound))

	_, err = f.svc.Enrollment.Register(ctx, e.ID, "ghost")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUserNotFound))
	assert.Zero(t, f.counter(t, e.ID))
}

func TestDoubleRegisterThenCancelRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, _ := f.publishedEvent(t, 5)
	member := f.user(t, permission.RoleParticipant)

	p, err := f.svc.Enrollment.Register(ctx, e.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, participation.StatusRegistered, p.Status)
	assert.Equal(t, 1, f.counter(t, e.ID))

	_, err = f.svc.Enrollment.Register(ctx, e.ID, member.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeParticipationAlreadyRegistered))
	assert.Equal(t, 1, f.counter(t, e.ID))

	require.NoError(t, f.svc.Enrollment.Cancel(ctx, e.ID, member.ID))
	assert.Zero(t, f.counter(t, e.ID))

	again, err := f.svc.Enrollment.Register(ctx, e.ID, member.ID)
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, again.ID)
	assert.Equal(t, 1, f.counter(t, e.ID))
}

func TestCancelMissingParticipationLeavesCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, _ := f.publishedEvent(t, 5)
	member := f.user(t, permission.RoleParticipant)
	bystander := f.user(t, permission.RoleParticipant)

	_, err := f.svc.Enrollment.Register(ctx, e.ID, member.ID)
	require.NoError(t, err)

	err = f.svc.Enrollment.Cancel(ctx, e.ID, bystander.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeParticipationNotFound))
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	assert.Equal(t, 1, f.counter(t, e.ID))
}

func TestSingleSeatScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, _ := f.publishedEvent(t, 1)
	a := f.user(t, permission.RoleParticipant)
	b := f.user(t, permission.RoleParticipant)

	_, err := f.svc.Enrollment.Register(ctx, e.ID, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Enrollment.Register(ctx, e.ID, b.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventFull))

	require.NoError(t, f.svc.Enrollment.Cancel(ctx, e.ID, a.ID))

	_, err = f.svc.Enrollment.Register(ctx, e.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.counter(t, e.ID))
}

func TestConcurrentRegisterNeverOverfills(t *testing.T) {
	backends := map[string]func(t *testing.T) storage.Backend{
		"memory": func(t *testing.T) storage.Backend { return memory.New() },
		"sqlite": openSQLite,
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			f := newFixtureWith(t, open(t))
			ctx := context.Background()
			const capacity, contenders = 5, 25
			e, _ := f.publishedEvent(t, capacity)

			members := make([]*user.User, contenders)
			for i := range members {
				members[i] = f.user(t, permission.RoleParticipant)
			}

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				ok, full int
				other    []error
			)
			for _, m := range members {
				wg.Add(1)
				go func(userID string) {
					defer wg.Done()
					_, err := f.svc.Enrollment.Register(ctx, e.ID, userID)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case apperrors.HasCode(err, apperrors.CodeEventFull):
						full++
					default:
						other = append(other, err)
					}
				}(m.ID)
			}
			wg.Wait()

			assert.Empty(t, other)
			assert.Equal(t, capacity, ok)
			assert.Equal(t, contenders-capacity, full)
			assert.Equal(t, capacity, f.counter(t, e.ID))

			list, err := f.svc.Enrollment.ListParticipants(ctx, e.ID)
			require.NoError(t, err)
			assert.Len(t, list, capacity)
		})
	}
}

func TestConcurrentCancelDecrementsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, _ := f.publishedEvent(t, 5)
	member := f.user(t, permission.RoleParticipant)
	other := f.user(t, permission.RoleParticipant)

	for _, id := range []string{member.ID, other.ID} {
		_, err := f.svc.Enrollment.Register(ctx, e.ID, id)
		require.NoError(t, err)
	}

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.svc.Enrollment.Cancel(ctx, e.ID, member.ID)
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.HasCode(err, apperrors.CodeParticipationNotFound), "unexpected: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.counter(t, e.ID))
}

func TestRegisterCompensatesFailedSave(t *testing.T) {
	tests := []struct {
		name    string
		saveErr error
		code    apperrors.Code
	}{
		{"unique violation", storage.ErrAlreadyExists, apperrors.CodeParticipationAlreadyRegistered},
		{"storage failure", errors.New("disk on fire"), apperrors.CodeStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &faultyStore{Store: memory.New()}
			f := newFixtureWith(t, store)
			ctx := context.Background()
			e, _ := f.publishedEvent(t, 2)
			member := f.user(t, permission.RoleParticipant)

			store.saveErr = tt.saveErr
			_, err := f.svc.Enrollment.Register(ctx, e.ID, member.ID)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
			assert.Zero(t, f.counter(t, e.ID))
		})
	}
}

func TestSoftCancelKeepsHistory(t *testing.T) {
	at := time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return at }))
	ctx := context.Background()
	e, _ := f.publishedEvent(t, 5)
	member := f.user(t, permission.RoleParticipant)

	_, err := f.svc.Enrollment.Register(ctx, e.ID, member.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Enrollment.Cancel(ctx, e.ID, member.ID))

	list, err := f.svc.Enrollment.ListParticipants(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, participation.StatusCancelled, list[0].Status)
	require.NotNil(t, list[0].CancelledAt)
	assert.Equal(t, at, *list[0].CancelledAt)
	require.NotNil(t, list[0].User)
	assert.Equal(t, member.Email, list[0].User.Email)
}

func TestHardCancelDeletesRow(t *testing.T) {
	f := newFixture(t, WithCancelMode(CancelHard))
	ctx := context.Background()
	e, _ := f.publishedEvent(t, 5)
	member := f.user(t, permission.RoleParticipant)

	assert.Equal(t, CancelHard, f.svc.Enrollment.CancelMode())

	_, err := f.svc.Enrollment.Register(ctx, e.ID, member.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Enrollment.Cancel(ctx, e.ID, member.ID))

	list, err := f.svc.Enrollment.ListParticipants(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, f.counter(t, e.ID))
}

func TestListParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e, _ := f.publishedEvent(t, 5)
	first := f.user(t, permission.RoleParticipant)
	second := f.user(t, permission.RoleParticipant)

	_, err := f.svc.Enrollment.ListParticipants(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEventNotFound))

	empty, err := f.svc.Enrollment.ListParticipants(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	p1, err := f.svc.Enrollment.Register(ctx, e.ID, first.ID)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	p2, err := f.svc.Enrollment.Register(ctx, e.ID, second.ID)
	require.NoError(t, err)

	list, err := f.svc.Enrollment.ListParticipants(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, p1.ID, list[0].ID)
	assert.Equal(t, p2.ID, list[1].ID)
}

func TestCancelledContextIsStorageError(t *testing.T) {
	f := newFixture(t)
	e, _ := f.publishedEvent(t, 5)
	member := f.user(t, permission.RoleParticipant)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Enrollment.Register(ctx, e.ID, member.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindStorage))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCancelReleasesSeatWhenContextEndsAfterWithdrawal(t *testing.T) {
	for name, open := range testBackends() {
		for _, mode := range []CancelMode{CancelSoft, CancelHard} {
			t.Run(name+"/"+string(mode), func(t *testing.T) {
				store := &cancellingStore{Backend: open(t)}
				f := newFixtureWith(t, store, WithCancelMode(mode))
				e, _ := f.publishedEvent(t, 1)
				member := f.user(t, permission.RoleParticipant)
				next := f.user(t, permission.RoleParticipant)

				_, err := f.svc.Enrollment.Register(context.Background(), e.ID, member.ID)
				require.NoError(t, err)

				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()
				store.cancel = cancel

				require.NoError(t, f.svc.Enrollment.Cancel(ctx, e.ID, member.ID))
				assert.ErrorIs(t, ctx.Err(), context.Canceled)
				assert.Zero(t, f.counter(t, e.ID))

				_, err = f.svc.Enrollment.Register(context.Background(), e.ID, next.ID)
				require.NoError(t, err)
				assert.Equal(t, 1, f.counter(t, e.ID))
			})
		}
	}
}

func TestConcurrentDuplicateRegistrationsSettleOnOneSeat(t *testing.T) {
	for name, open := range testBackends() {
		t.Run(name, func(t *testing.T) {
			f := newFixtureWith(t, open(t))
			ctx := context.Background()
			e, _ := f.publishedEvent(t, 2)
			member := f.user(t, permission.RoleParticipant)
			latecomer := f.user(t, permission.RoleParticipant)

			const racers = 8
			errs := make([]error, racers)
			var wg sync.WaitGroup
			for i := range racers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = f.svc.Enrollment.Register(ctx, e.ID, member.ID)
				}()
			}
			wg.Wait()

			var succeeded int
			for _, err := range errs {
				switch {
				case err == nil:
					succeeded++
				case apperrors.HasCode(err, apperrors.CodeParticipationAlreadyRegistered),
					apperrors.HasCode(err, apperrors.CodeEventFull):
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}
			assert.Equal(t, 1, succeeded)
			assert.Equal(t, 1, f.counter(t, e.ID))

			_, err := f.svc.Enrollment.Register(ctx, e.ID, latecomer.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, f.counter(t, e.ID))
		})
	}
}
