package invitations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newRecord(t *testing.T, email string, inviterID uuid.UUID, at time.Time) *Invitation {
	t.Helper()
	id, token, err := Generate()
	require.NoError(t, err)

	return &Invitation{
		ID:           id,
		Token:        token,
		SubjectEmail: email,
		InviterID:    inviterID,
		RoleContext:  RoleCoach,
		Status:       StatusPending,
		CreatedAt:    at,
		UpdatedAt:    at,
		ExpiresAt:    at.Add(7 * 24 * time.Hour),
	}
}

func TestMemoryStore_ConcurrentCreateAdmitsExactlyOne(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	inviterID := uuid.New()

	const n = 32

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := store.Create(ctx, newRecord(t, "player@example.com", inviterID, testBase))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicateInvitation):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, created)
	require.Equal(t, n-1, duplicates)
}

func TestMemoryStore_CreateTokenConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := newRecord(t, "a@example.com", uuid.New(), testBase)
	_, err := store.Create(ctx, first)
	require.NoError(t, err)

	second := newRecord(t, "b@example.com", uuid.New(), testBase)
	second.Token = first.Token
	_, err = store.Create(ctx, second)
	require.ErrorIs(t, err, errTokenConflict)
}

func TestMemoryStore_ConcurrentTransitionAdmitsExactlyOne(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := newRecord(t, "a@example.com", uuid.New(), testBase)
	_, err := store.Create(ctx, rec)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied []Status
	)

	for _, target := range []Status{StatusAccepted, StatusCancelled} {
		wg.Add(1)
		go func(to Status) {
			defer wg.Done()

			_, err := store.UpdateStatus(ctx, rec.ID, to, testBase)
			if err == nil {
				mu.Lock()
				applied = append(applied, to)
				mu.Unlock()
				return
			}

			var transitionErr *InvalidTransitionError
			if !errors.As(err, &transitionErr) {
				t.Errorf("unexpected error: %v", err)
			}
		}(target)
	}
	wg.Wait()

	require.Len(t, applied, 1)

	got, err := store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, applied[0], got.Status)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := newRecord(t, "a@example.com", uuid.New(), testBase)
	created, err := store.Create(ctx, rec)
	require.NoError(t, err)

	// Mutating what the store handed back must not leak into its state.
	created.Status = StatusCompleted
	created.Message = "scribbled on"

	got, err := store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Empty(t, got.Message)
}

func TestMemoryStore_DeleteUnknown(t *testing.T) {
	store := NewMemoryStore()

	err := store.Delete(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrInvitationNotFound)
}
