package invitations

import (
	"errors"
	"fmt"
)

var (
	// ErrInvitationNotFound is returned when no invitation matches the given
	// ID or token. Unknown and malformed tokens map to the same error.
	ErrInvitationNotFound = errors.New("invitation not found")

	// ErrDuplicateInvitation is returned when an active invitation already
	// exists for the same recipient and inviter.
	ErrDuplicateInvitation = errors.New("an active invitation already exists for this recipient")

	// ErrNotDeletable is returned when a hard delete targets an invitation
	// that has already progressed past pending/sent.
	ErrNotDeletable = errors.New("only pending or sent invitations can be deleted")

	// ErrMessageNotEditable is returned when a message update targets an
	// invitation that has already been sent.
	ErrMessageNotEditable = errors.New("message can only be edited while the invitation is pending")

	// errTokenConflict signals a token uniqueness violation on insert. The
	// service retries with a fresh token; callers never see this.
	errTokenConflict = errors.New("invitation token already exists")
)

// InvalidTransitionError is returned when a requested status transition is
// not legal from the invitation's current persisted status. It carries the
// actual current status so callers can decide their next action.
type InvalidTransitionError struct {
	Current   Status
	Requested Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition invitation from %q to %q", e.Current, e.Requested)
}

// ValidationError is returned for malformed input. It never reaches the
// store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DeliveryError wraps a notifier failure. It is non-fatal: the invitation
// stays pending and the caller may retry the send.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("invitation delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
