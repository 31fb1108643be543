package invitations

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an invitation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusCompleted Status = "completed"
)

// IsValid returns true if the status is one of the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusAccepted, StatusDeclined,
		StatusCancelled, StatusExpired, StatusCompleted:
		return true
	}
	return false
}

// IsTerminal returns true if no further transition is possible from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDeclined, StatusCancelled, StatusExpired, StatusCompleted:
		return true
	}
	return false
}

// IsActive returns true for states in which the invitation token can still
// be redeemed, ignoring expiry.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusSent
}

// RoleContext is the role granted to the recipient on acceptance.
type RoleContext string

const (
	RoleCoach         RoleContext = "coach"
	RoleParent        RoleContext = "parent"
	RoleEventAttendee RoleContext = "event-attendee"
)

// IsValid returns true if the role context is one of the supported roles.
func (r RoleContext) IsValid() bool {
	switch r {
	case RoleCoach, RoleParent, RoleEventAttendee:
		return true
	}
	return false
}

// TTL returns how long a fresh invitation for this role remains redeemable.
// Parents get a longer window because household signup is routinely slower.
func (r RoleContext) TTL() time.Duration {
	if r == RoleParent {
		return 14 * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// Invitation grants a specific email the right to assume a role on the
// platform, gated by a secret token and an expiry.
type Invitation struct {
	ID           uuid.UUID   `db:"id" json:"invitation_id"`
	Token        string      `db:"token" json:"-"`
	SubjectEmail string      `db:"subject_email" json:"subject_email"`
	InviterID    uuid.UUID   `db:"inviter_id" json:"inviter_id"`
	RoleContext  RoleContext `db:"role_context" json:"role_context"`
	Status       Status      `db:"status" json:"status"`
	Message      string      `db:"message" json:"message,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
	SentAt       *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
	AcceptedAt   *time.Time  `db:"accepted_at" json:"accepted_at,omitempty"`
	CompletedAt  *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt  *time.Time  `db:"cancelled_at" json:"cancelled_at,omitempty"`
	ExpiresAt    time.Time   `db:"expires_at" json:"expires_at"`
}

// IsUsable reports whether the invitation token can be redeemed at the given
// instant: the invitation must still be open and its expiry must not have
// passed. Pure; callers trigger the lazy expiry write-back themselves.
func (inv *Invitation) IsUsable(now time.Time) bool {
	return inv.Status.IsActive() && now.Before(inv.ExpiresAt)
}

// Overdue reports whether the stored status is stale: the record still says
// pending or sent but its expiry has passed.
func (inv *Invitation) Overdue(now time.Time) bool {
	return inv.Status.IsActive() && !now.Before(inv.ExpiresAt)
}

// EffectiveStatus returns the status a reader should act on. An overdue
// pending/sent record reads as expired even before the write-back lands.
func (inv *Invitation) EffectiveStatus(now time.Time) Status {
	if inv.Overdue(now) {
		return StatusExpired
	}
	return inv.Status
}

// Clone returns a deep copy of the invitation.
func (inv *Invitation) Clone() *Invitation {
	out := *inv
	out.SentAt = cloneTime(inv.SentAt)
	out.AcceptedAt = cloneTime(inv.AcceptedAt)
	out.CompletedAt = cloneTime(inv.CompletedAt)
	out.CancelledAt = cloneTime(inv.CancelledAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
