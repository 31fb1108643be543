package invitations

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit is the page size applied when the caller does not supply
// a limit.
const DefaultListLimit = 50

// MaxListLimit caps caller-supplied page sizes.
const MaxListLimit = 200

// ListFilter narrows a List call. Nil fields match everything.
type ListFilter struct {
	Status      *Status
	InviterID   *uuid.UUID
	RoleContext *RoleContext
	Limit       int
}

// Store persists invitation records. Implementations must enforce the
// duplicate guard and the status transition conditions atomically at write
// time; a separate read-then-write check is not acceptable because
// concurrent requests race against the shared store.
type Store interface {
	// Create persists a new invitation. It fails with
	// ErrDuplicateInvitation if an active invitation already exists for the
	// same (subject_email, inviter_id) pair, checked atomically with the
	// write. An overdue open record for the pair is marked expired rather
	// than counted as a conflict.
	Create(ctx context.Context, inv *Invitation) (*Invitation, error)

	// GetByID returns the invitation or ErrInvitationNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Invitation, error)

	// GetByToken returns the invitation matching the bearer token or
	// ErrInvitationNotFound. Malformed and unknown tokens take the same
	// path and produce the same error.
	GetByToken(ctx context.Context, token string) (*Invitation, error)

	// List returns invitations matching the filter, newest-created-first.
	List(ctx context.Context, filter ListFilter) ([]*Invitation, error)

	// UpdateStatus moves the invitation to the target status, stamping the
	// transition timestamp. The write is conditioned on the stored status
	// being a legal source for the target; if another caller got there
	// first the write is rejected with *InvalidTransitionError carrying the
	// actual current status.
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status, at time.Time) (*Invitation, error)

	// UpdateMessage replaces the personalization message. Only pending
	// invitations are editable; otherwise ErrMessageNotEditable.
	UpdateMessage(ctx context.Context, id uuid.UUID, message string, at time.Time) (*Invitation, error)

	// Delete removes the record outright. Only pending or sent invitations
	// may be deleted; otherwise ErrNotDeletable.
	Delete(ctx context.Context, id uuid.UUID) error
}

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}
