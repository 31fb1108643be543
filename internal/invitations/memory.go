package invitations

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store with the same conditional-write
// semantics as the Postgres store. It backs tests and ephemeral dev runs;
// production deployments use PostgresStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Invitation
	byToken map[string]uuid.UUID
	seq     map[uuid.UUID]int
	nextSeq int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]*Invitation),
		byToken: make(map[string]uuid.UUID),
		seq:     make(map[uuid.UUID]int),
	}
}

// Create persists a new invitation, enforcing the duplicate guard and token
// uniqueness under a single lock so concurrent creates cannot both pass.
func (s *MemoryStore) Create(ctx context.Context, inv *Invitation) (*Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[inv.Token]; exists {
		return nil, errTokenConflict
	}

	for _, existing := range s.records {
		if existing.SubjectEmail != inv.SubjectEmail || existing.InviterID != inv.InviterID {
			continue
		}
		if !existing.Status.IsActive() {
			continue
		}
		if existing.Overdue(inv.CreatedAt) {
			existing.Status = StatusExpired
			existing.UpdatedAt = inv.CreatedAt
			continue
		}
		return nil, ErrDuplicateInvitation
	}

	stored := inv.Clone()
	s.records[stored.ID] = stored
	s.byToken[stored.Token] = stored.ID
	s.seq[stored.ID] = s.nextSeq
	s.nextSeq++

	return stored.Clone(), nil
}

// GetByID returns the invitation with the given ID.
func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.records[id]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	return inv.Clone(), nil
}

// GetByToken returns the invitation matching the bearer token. Malformed
// tokens match nothing and take the same path as unknown ones.
func (s *MemoryStore) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	return s.records[id].Clone(), nil
}

// List returns invitations matching the filter, newest-created-first.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var invs []*Invitation
	for _, inv := range s.records {
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		if filter.InviterID != nil && inv.InviterID != *filter.InviterID {
			continue
		}
		if filter.RoleContext != nil && inv.RoleContext != *filter.RoleContext {
			continue
		}
		invs = append(invs, inv.Clone())
	}

	sort.Slice(invs, func(i, j int) bool {
		if !invs[i].CreatedAt.Equal(invs[j].CreatedAt) {
			return invs[i].CreatedAt.After(invs[j].CreatedAt)
		}
		return s.seq[invs[i].ID] > s.seq[invs[j].ID]
	})

	if limit := filter.limit(); len(invs) > limit {
		invs = invs[:limit]
	}

	return invs, nil
}

// UpdateStatus applies a conditional transition under the store lock.
func (s *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, at time.Time) (*Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.records[id]
	if !ok {
		return nil, ErrInvitationNotFound
	}

	if !CanTransition(inv.Status, to) {
		return nil, &InvalidTransitionError{Current: inv.Status, Requested: to}
	}

	inv.Status = to
	inv.UpdatedAt = at
	stamp := at
	switch to {
	case StatusSent:
		inv.SentAt = &stamp
	case StatusAccepted:
		inv.AcceptedAt = &stamp
	case StatusCompleted:
		inv.CompletedAt = &stamp
	case StatusCancelled:
		inv.CancelledAt = &stamp
	}

	return inv.Clone(), nil
}

// UpdateMessage replaces the message of a pending invitation.
func (s *MemoryStore) UpdateMessage(ctx context.Context, id uuid.UUID, message string, at time.Time) (*Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.records[id]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	if inv.Status != StatusPending {
		return nil, ErrMessageNotEditable
	}

	inv.Message = message
	inv.UpdatedAt = at
	return inv.Clone(), nil
}

// Delete removes a pending or sent invitation outright.
func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.records[id]
	if !ok {
		return ErrInvitationNotFound
	}
	if !inv.Status.IsActive() {
		return ErrNotDeletable
	}

	delete(s.byToken, inv.Token)
	delete(s.records, id)
	delete(s.seq, id)
	return nil
}
