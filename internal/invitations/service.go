package invitations

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rosterkit/rosterkit/internal/telemetry"
)

const maxMessageLen = 500

// Notifier delivers the invitation deep link to the recipient. A failure is
// non-fatal: the invitation stays pending and the caller may retry the send.
type Notifier interface {
	Notify(ctx context.Context, inv *Invitation) error
}

// Service implements the invitation lifecycle on top of an injected Store
// and Notifier. It holds no mutable state of its own; every operation is
// independently correct against the shared store.
type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

// NewService creates a Service.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateParams are the caller-supplied fields of a new invitation.
type CreateParams struct {
	SubjectEmail string
	InviterID    uuid.UUID
	RoleContext  RoleContext
	Message      string
}

// Create validates the params, generates the ID and bearer token, and
// persists a pending invitation with a role-dependent expiry. The raw token
// is returned exactly once; it is the recipient's credential.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Invitation, error) {
	email, err := normalizeEmail(params.SubjectEmail)
	if err != nil {
		return nil, err
	}

	if params.InviterID == uuid.Nil {
		return nil, &ValidationError{Field: "inviter_id", Reason: "is required"}
	}
	if !params.RoleContext.IsValid() {
		return nil, &ValidationError{Field: "role_context", Reason: "must be one of: coach, parent, event-attendee"}
	}
	if len(params.Message) > maxMessageLen {
		return nil, &ValidationError{Field: "message", Reason: fmt.Sprintf("must be at most %d characters", maxMessageLen)}
	}

	now := s.now().UTC()

	for attempt := 0; attempt < 3; attempt++ {
		id, token, err := Generate()
		if err != nil {
			return nil, err
		}

		inv := &Invitation{
			ID:           id,
			Token:        token,
			SubjectEmail: email,
			InviterID:    params.InviterID,
			RoleContext:  params.RoleContext,
			Status:       StatusPending,
			Message:      strings.TrimSpace(params.Message),
			CreatedAt:    now,
			UpdatedAt:    now,
			ExpiresAt:    now.Add(params.RoleContext.TTL()),
		}

		created, err := s.store.Create(ctx, inv)
		if err == nil {
			telemetry.InvitationsCreated.Inc()
			return created, nil
		}
		if errors.Is(err, errTokenConflict) {
			// Token collision (extremely unlikely); retry with a fresh one.
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("failed to create invitation: token collision retry exhausted")
}

// Get returns the invitation by ID, applying the lazy expiry write-back if
// the stored status is stale.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	return s.getWithExpiry(ctx, id, s.now().UTC())
}

// Validate resolves a presented bearer token and reports whether it is
// still usable. Malformed and unknown tokens both yield
// ErrInvitationNotFound.
func (s *Service) Validate(ctx context.Context, token string) (*Invitation, bool, error) {
	now := s.now().UTC()

	inv, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, false, err
	}

	inv, err = s.expireIfOverdue(ctx, inv, now)
	if err != nil {
		return nil, false, err
	}

	return inv, inv.IsUsable(now), nil
}

// List returns invitations matching the filter, newest-created-first. An
// overdue record is reported with its effective (expired) status; the
// stored status converges on the next point read or sweep.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Invitation, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, &ValidationError{Field: "status", Reason: "unknown status"}
	}
	if filter.RoleContext != nil && !filter.RoleContext.IsValid() {
		return nil, &ValidationError{Field: "role_context", Reason: "unknown role"}
	}

	invs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	for _, inv := range invs {
		inv.Status = inv.EffectiveStatus(now)
	}
	return invs, nil
}

// Send delivers the invitation link and transitions pending to sent. A
// notifier failure leaves the record pending with sent_at unset so the
// caller can retry.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	now := s.now().UTC()

	inv, err := s.getWithExpiry(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !CanTransition(inv.Status, StatusSent) {
		return nil, &InvalidTransitionError{Current: inv.Status, Requested: StatusSent}
	}

	if err := s.notifier.Notify(ctx, inv); err != nil {
		telemetry.DeliveryFailures.Inc()
		log.Error().
			Err(err).
			Str("invitation_id", inv.ID.String()).
			Msg("Failed to deliver invitation")
		return nil, &DeliveryError{Err: err}
	}

	return s.applyTransition(ctx, id, StatusSent, now)
}

// Respond records the recipient's answer: "accept" or "decline".
func (s *Service) Respond(ctx context.Context, id uuid.UUID, response string) (*Invitation, error) {
	var target Status
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "accept":
		target = StatusAccepted
	case "decline":
		target = StatusDeclined
	default:
		return nil, &ValidationError{Field: "response", Reason: "must be accept or decline"}
	}

	return s.transition(ctx, id, target)
}

// Cancel marks an open invitation cancelled by the inviter.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	return s.transition(ctx, id, StatusCancelled)
}

// Complete marks an accepted invitation completed once the downstream
// onboarding process finishes.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	return s.transition(ctx, id, StatusCompleted)
}

// UpdateMessage replaces the personalization message while the invitation
// is still pending.
func (s *Service) UpdateMessage(ctx context.Context, id uuid.UUID, message string) (*Invitation, error) {
	if len(message) > maxMessageLen {
		return nil, &ValidationError{Field: "message", Reason: fmt.Sprintf("must be at most %d characters", maxMessageLen)}
	}

	now := s.now().UTC()
	if _, err := s.getWithExpiry(ctx, id, now); err != nil {
		return nil, err
	}

	return s.store.UpdateMessage(ctx, id, strings.TrimSpace(message), now)
}

// Purge removes an open invitation outright. Progressed invitations keep
// their record for the audit trail.
func (s *Service) Purge(ctx context.Context, id uuid.UUID) error {
	now := s.now().UTC()
	if _, err := s.getWithExpiry(ctx, id, now); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

// transition applies the lazy expiry write-back, then moves the invitation
// to the target status. The store re-checks the from-state condition
// atomically, so a concurrent transition is rejected rather than
// overwritten.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Invitation, error) {
	now := s.now().UTC()

	inv, err := s.getWithExpiry(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !CanTransition(inv.Status, to) {
		return nil, &InvalidTransitionError{Current: inv.Status, Requested: to}
	}

	return s.applyTransition(ctx, id, to, now)
}

func (s *Service) applyTransition(ctx context.Context, id uuid.UUID, to Status, now time.Time) (*Invitation, error) {
	updated, err := s.store.UpdateStatus(ctx, id, to, now)
	if err != nil {
		return nil, err
	}

	telemetry.StatusTransitions.WithLabelValues(string(to)).Inc()
	log.Info().
		Str("invitation_id", id.String()).
		Str("status", string(to)).
		Msg("Invitation status updated")
	return updated, nil
}

// getWithExpiry loads an invitation and persists the expired status if the
// read detects a stale pending/sent record past its expiry.
func (s *Service) getWithExpiry(ctx context.Context, id uuid.UUID, now time.Time) (*Invitation, error) {
	inv, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.expireIfOverdue(ctx, inv, now)
}

// expireIfOverdue performs the lazy expiry write-back. A concurrent reader
// may have already expired the record; that race resolves by re-reading.
func (s *Service) expireIfOverdue(ctx context.Context, inv *Invitation, now time.Time) (*Invitation, error) {
	if !inv.Overdue(now) {
		return inv, nil
	}

	expired, err := s.store.UpdateStatus(ctx, inv.ID, StatusExpired, now)
	if err == nil {
		telemetry.StatusTransitions.WithLabelValues(string(StatusExpired)).Inc()
		return expired, nil
	}

	var transitionErr *InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return s.store.GetByID(ctx, inv.ID)
	}
	return nil, err
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", &ValidationError{Field: "subject_email", Reason: "is required"}
	}
	if len(email) > 320 {
		return "", &ValidationError{Field: "subject_email", Reason: "is too long"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", &ValidationError{Field: "subject_email", Reason: "is not a valid email address"}
	}
	return email, nil
}
