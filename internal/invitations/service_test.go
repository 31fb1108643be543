package invitations

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type stubNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
	last  *Invitation
}

func (n *stubNotifier) Notify(ctx context.Context, inv *Invitation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.last = inv.Clone()
	return n.err
}

func newTestService() (*Service, *MemoryStore, *stubNotifier) {
	store := NewMemoryStore()
	notifier := &stubNotifier{}
	svc := NewService(store, notifier)
	svc.now = func() time.Time { return testBase }
	return svc, store, notifier
}

func setClock(svc *Service, at time.Time) {
	svc.now = func() time.Time { return at }
}

func mustCreate(t *testing.T, svc *Service, email string, role RoleContext) *Invitation {
	t.Helper()
	inv, err := svc.Create(context.Background(), CreateParams{
		SubjectEmail: email,
		InviterID:    uuid.New(),
		RoleContext:  role,
	})
	require.NoError(t, err)
	return inv
}

func TestCreate_Defaults(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inviterID := uuid.New()
	inv, err := svc.Create(ctx, CreateParams{
		SubjectEmail: "  Parent@Example.COM ",
		InviterID:    inviterID,
		RoleContext:  RoleParent,
		Message:      "  Welcome to the team!  ",
	})
	require.NoError(t, err)

	require.NotEqual(t, uuid.Nil, inv.ID)
	require.Equal(t, StatusPending, inv.Status)
	require.Equal(t, "parent@example.com", inv.SubjectEmail)
	require.Equal(t, inviterID, inv.InviterID)
	require.Equal(t, RoleParent, inv.RoleContext)
	require.Equal(t, "Welcome to the team!", inv.Message)
	require.True(t, strings.HasPrefix(inv.Token, TokenPrefix))
	require.Equal(t, testBase, inv.CreatedAt)
	require.Equal(t, testBase.Add(14*24*time.Hour), inv.ExpiresAt)
	require.Nil(t, inv.SentAt)
	require.Nil(t, inv.AcceptedAt)
}

func TestCreate_ExpiryPerRole(t *testing.T) {
	svc, _, _ := newTestService()

	coach := mustCreate(t, svc, "coach@example.com", RoleCoach)
	require.Equal(t, testBase.Add(7*24*time.Hour), coach.ExpiresAt)

	attendee := mustCreate(t, svc, "attendee@example.com", RoleEventAttendee)
	require.Equal(t, testBase.Add(7*24*time.Hour), attendee.ExpiresAt)

	parent := mustCreate(t, svc, "parent@example.com", RoleParent)
	require.Equal(t, testBase.Add(14*24*time.Hour), parent.ExpiresAt)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name   string
		params CreateParams
		field  string
	}{
		{
			name:   "missing email",
			params: CreateParams{InviterID: uuid.New(), RoleContext: RoleCoach},
			field:  "subject_email",
		},
		{
			name:   "malformed email",
			params: CreateParams{SubjectEmail: "not-an-email", InviterID: uuid.New(), RoleContext: RoleCoach},
			field:  "subject_email",
		},
		{
			name:   "missing inviter",
			params: CreateParams{SubjectEmail: "a@example.com", RoleContext: RoleCoach},
			field:  "inviter_id",
		},
		{
			name:   "unknown role",
			params: CreateParams{SubjectEmail: "a@example.com", InviterID: uuid.New(), RoleContext: "referee"},
			field:  "role_context",
		},
		{
			name: "message too long",
			params: CreateParams{
				SubjectEmail: "a@example.com",
				InviterID:    uuid.New(),
				RoleContext:  RoleCoach,
				Message:      strings.Repeat("x", maxMessageLen+1),
			},
			field: "message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.params)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			require.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestCreate_DuplicateGuard(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inviterID := uuid.New()
	_, err := svc.Create(ctx, CreateParams{
		SubjectEmail: "player@example.com",
		InviterID:    inviterID,
		RoleContext:  RoleCoach,
	})
	require.NoError(t, err)

	// Same recipient and inviter while the first is still open.
	_, err = svc.Create(ctx, CreateParams{
		SubjectEmail: "Player@Example.com",
		InviterID:    inviterID,
		RoleContext:  RoleParent,
	})
	require.ErrorIs(t, err, ErrDuplicateInvitation)

	// A different inviter may invite the same recipient.
	_, err = svc.Create(ctx, CreateParams{
		SubjectEmail: "player@example.com",
		InviterID:    uuid.New(),
		RoleContext:  RoleCoach,
	})
	require.NoError(t, err)

	// Same inviter, different recipient.
	_, err = svc.Create(ctx, CreateParams{
		SubjectEmail: "other@example.com",
		InviterID:    inviterID,
		RoleContext:  RoleCoach,
	})
	require.NoError(t, err)
}

func TestCreate_AllowedAfterDecline(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inviterID := uuid.New()
	first, err := svc.Create(ctx, CreateParams{
		SubjectEmail: "player@example.com",
		InviterID:    inviterID,
		RoleContext:  RoleCoach,
	})
	require.NoError(t, err)

	_, err = svc.Send(ctx, first.ID)
	require.NoError(t, err)
	_, err = svc.Respond(ctx, first.ID, "decline")
	require.NoError(t, err)

	// The declined invitation no longer blocks a fresh one.
	_, err = svc.Create(ctx, CreateParams{
		SubjectEmail: "player@example.com",
		InviterID:    inviterID,
		RoleContext:  RoleCoach,
	})
	require.NoError(t, err)
}

func TestCreate_AllowedAfterExpiry(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	inviterID := uuid.New()
	first, err := svc.Create(ctx, CreateParams{
		SubjectEmail: "player@example.com",
		InviterID:    inviterID,
		RoleContext:  RoleCoach,
	})
	require.NoError(t, err)

	setClock(svc, testBase.Add(8*24*time.Hour))

	// The overdue record is expired in the same write that admits the new
	// invitation.
	second, err := svc.Create(ctx, CreateParams{
		SubjectEmail: "player@example.com",
		InviterID:    inviterID,
		RoleContext:  RoleCoach,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	stale, err := store.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, stale.Status)
}

func TestGet_LazyExpiryWriteBack(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	setClock(svc, inv.ExpiresAt.Add(time.Second))

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)

	// The write-back persisted, not just the returned copy.
	stored, err := store.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, stored.Status)
}

func TestGet_NotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestValidate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	got, usable, err := svc.Validate(ctx, inv.Token)
	require.NoError(t, err)
	require.True(t, usable)
	require.Equal(t, inv.ID, got.ID)
}

func TestValidate_UnknownAndMalformedTokensLookAlike(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	mustCreate(t, svc, "coach@example.com", RoleCoach)

	_, _, err := svc.Validate(ctx, TokenPrefix+"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	require.ErrorIs(t, err, ErrInvitationNotFound)

	_, _, err = svc.Validate(ctx, "garbage")
	require.ErrorIs(t, err, ErrInvitationNotFound)

	_, _, err = svc.Validate(ctx, "")
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestValidate_ExpiredToken(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	setClock(svc, inv.ExpiresAt)

	got, usable, err := svc.Validate(ctx, inv.Token)
	require.NoError(t, err)
	require.False(t, usable)
	require.Equal(t, StatusExpired, got.Status)

	stored, err := store.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, stored.Status)
}

func TestValidate_AcceptedTokenNotUsable(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)
	_, err := svc.Respond(ctx, inv.ID, "accept")
	require.NoError(t, err)

	got, usable, err := svc.Validate(ctx, inv.Token)
	require.NoError(t, err)
	require.False(t, usable)
	require.Equal(t, StatusAccepted, got.Status)
}

func TestSend(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	sent, err := svc.Send(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	require.Equal(t, testBase, *sent.SentAt)
	require.Equal(t, 1, notifier.calls)
	require.Equal(t, inv.Token, notifier.last.Token)
}

func TestSend_RepeatRejected(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	first, err := svc.Send(ctx, inv.ID)
	require.NoError(t, err)

	setClock(svc, testBase.Add(time.Hour))

	_, err = svc.Send(ctx, inv.ID)
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, StatusSent, transitionErr.Current)
	require.Equal(t, StatusSent, transitionErr.Requested)

	// The retry neither re-delivered nor moved sent_at.
	require.Equal(t, 1, notifier.calls)
	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, *first.SentAt, *got.SentAt)
}

func TestSend_DeliveryFailureLeavesPending(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	notifier.err = errors.New("smtp relay unreachable")
	_, err := svc.Send(ctx, inv.ID)
	var deliveryErr *DeliveryError
	require.ErrorAs(t, err, &deliveryErr)

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Nil(t, got.SentAt)

	// The send is retryable once delivery recovers.
	notifier.err = nil
	sent, err := svc.Send(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)
}

func TestSend_ExpiredRejected(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)
	setClock(svc, inv.ExpiresAt.Add(time.Minute))

	_, err := svc.Send(ctx, inv.ID)
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, StatusExpired, transitionErr.Current)
	require.Zero(t, notifier.calls)
}

func TestRespond_AcceptFromPending(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	accepted, err := svc.Respond(ctx, inv.ID, "accept")
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)
}

func TestRespond_DeclineFromPendingRejected(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	// Declining something never delivered is not a legal move.
	_, err := svc.Respond(ctx, inv.ID, "decline")
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, StatusPending, transitionErr.Current)
	require.Equal(t, StatusDeclined, transitionErr.Requested)
}

func TestRespond_InvalidResponse(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	_, err := svc.Respond(ctx, inv.ID, "maybe")
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "response", validationErr.Field)
}

func TestComplete(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)
	_, err := svc.Respond(ctx, inv.ID, "accept")
	require.NoError(t, err)

	done, err := svc.Complete(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	// Completion is not idempotent; the caller learns the actual state.
	_, err = svc.Complete(ctx, inv.ID)
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, StatusCompleted, transitionErr.Current)
}

func TestComplete_RequiresAccepted(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	_, err := svc.Complete(ctx, inv.ID)
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, StatusPending, transitionErr.Current)
}

func TestCancel(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)
	_, err := svc.Send(ctx, inv.ID)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
}

func TestCancel_AcceptedRejected(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)
	_, err := svc.Respond(ctx, inv.ID, "accept")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, inv.ID)
	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, StatusAccepted, transitionErr.Current)
}

func TestUpdateMessage(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	updated, err := svc.UpdateMessage(ctx, inv.ID, "See you at practice")
	require.NoError(t, err)
	require.Equal(t, "See you at practice", updated.Message)

	_, err = svc.Send(ctx, inv.ID)
	require.NoError(t, err)

	_, err = svc.UpdateMessage(ctx, inv.ID, "too late")
	require.ErrorIs(t, err, ErrMessageNotEditable)
}

func TestUpdateMessage_TooLong(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	_, err := svc.UpdateMessage(ctx, inv.ID, strings.Repeat("x", maxMessageLen+1))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestPurge(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	require.NoError(t, svc.Purge(ctx, inv.ID))

	_, err := svc.Get(ctx, inv.ID)
	require.ErrorIs(t, err, ErrInvitationNotFound)

	_, _, err = svc.Validate(ctx, inv.Token)
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestPurge_ProgressedRejected(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)
	_, err := svc.Respond(ctx, inv.ID, "accept")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Purge(ctx, inv.ID), ErrNotDeletable)
}

func TestList(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	inviterID := uuid.New()
	var last *Invitation
	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		setClock(svc, testBase.Add(time.Duration(i)*time.Minute))
		inv, err := svc.Create(ctx, CreateParams{
			SubjectEmail: email,
			InviterID:    inviterID,
			RoleContext:  RoleCoach,
		})
		require.NoError(t, err)
		last = inv
	}
	mustCreate(t, svc, "d@example.com", RoleParent)

	invs, err := svc.List(ctx, ListFilter{InviterID: &inviterID})
	require.NoError(t, err)
	require.Len(t, invs, 3)
	// Newest created first.
	require.Equal(t, last.ID, invs[0].ID)

	role := RoleParent
	invs, err = svc.List(ctx, ListFilter{RoleContext: &role})
	require.NoError(t, err)
	require.Len(t, invs, 1)
	require.Equal(t, "d@example.com", invs[0].SubjectEmail)

	invs, err = svc.List(ctx, ListFilter{InviterID: &inviterID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, invs, 2)
}

func TestList_InvalidFilter(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	bad := Status("limbo")
	_, err := svc.List(ctx, ListFilter{Status: &bad})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	role := RoleContext("mascot")
	_, err = svc.List(ctx, ListFilter{RoleContext: &role})
	require.ErrorAs(t, err, &validationErr)
}

func TestList_EffectiveStatusWithoutWriteBack(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	inv := mustCreate(t, svc, "coach@example.com", RoleCoach)

	setClock(svc, inv.ExpiresAt.Add(time.Hour))

	invs, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, invs, 1)
	require.Equal(t, StatusExpired, invs[0].Status)

	// The listing only reports the effective status; the stored record is
	// untouched until a point read or the sweep converges it.
	stored, err := store.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

func TestInvitationLifecycle(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	inviterID := uuid.New()
	inv, err := svc.Create(ctx, CreateParams{
		SubjectEmail: "newcoach@example.com",
		InviterID:    inviterID,
		RoleContext:  RoleCoach,
		Message:      "Join the spring roster",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, inv.Status)

	sent, err := svc.Send(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)
	require.Equal(t, 1, notifier.calls)

	checked, usable, err := svc.Validate(ctx, inv.Token)
	require.NoError(t, err)
	require.True(t, usable)
	require.Equal(t, StatusSent, checked.Status)

	accepted, err := svc.Respond(ctx, inv.ID, "accept")
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, accepted.Status)

	// The token is spent once the recipient accepts.
	_, usable, err = svc.Validate(ctx, inv.Token)
	require.NoError(t, err)
	require.False(t, usable)

	done, err := svc.Complete(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.SentAt)
	require.NotNil(t, done.AcceptedAt)
	require.NotNil(t, done.CompletedAt)
}
