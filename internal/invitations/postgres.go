package invitations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const invitationColumns = `
	id, token, subject_email, inviter_id, role_context, status, message,
	created_at, updated_at, sent_at, accepted_at, completed_at, cancelled_at, expires_at`

// PostgresStore is the production Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(
		&inv.ID,
		&inv.Token,
		&inv.SubjectEmail,
		&inv.InviterID,
		&inv.RoleContext,
		&inv.Status,
		&inv.Message,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&inv.SentAt,
		&inv.AcceptedAt,
		&inv.CompletedAt,
		&inv.CancelledAt,
		&inv.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Create persists a new invitation inside a transaction. Overdue open
// invitations for the same recipient are marked expired first, so the
// partial unique index only rejects genuinely active conflicts.
func (s *PostgresStore) Create(ctx context.Context, inv *Invitation) (*Invitation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		UPDATE invitations
		SET status = 'expired', updated_at = $3
		WHERE subject_email = $1
		  AND inviter_id = $2
		  AND status IN ('pending', 'sent')
		  AND expires_at <= $3
	`, inv.SubjectEmail, inv.InviterID, inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale invitations: %w", err)
	}

	created, err := scanInvitation(tx.QueryRow(ctx, `
		INSERT INTO invitations (
		  id, token, subject_email, inviter_id, role_context, status, message,
		  created_at, updated_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9)
		RETURNING`+invitationColumns,
		inv.ID, inv.Token, inv.SubjectEmail, inv.InviterID, inv.RoleContext,
		inv.Status, inv.Message, inv.CreatedAt, inv.ExpiresAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "invitations_active_recipient_idx":
				return nil, ErrDuplicateInvitation
			case "invitations_token_key":
				return nil, errTokenConflict
			}
			return nil, ErrDuplicateInvitation
		}
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return created, nil
}

// GetByID returns the invitation with the given ID.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		`SELECT`+invitationColumns+` FROM invitations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// GetByToken returns the invitation matching the bearer token. A malformed
// token simply matches no row; there is no separate rejection path.
func (s *PostgresStore) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		`SELECT`+invitationColumns+` FROM invitations WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to get invitation by token: %w", err)
	}
	return inv, nil
}

// List returns invitations matching the filter, newest-created-first.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*Invitation, error) {
	var (
		conds []string
		args  []any
	)

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.InviterID != nil {
		args = append(args, *filter.InviterID)
		conds = append(conds, "inviter_id = $"+strconv.Itoa(len(args)))
	}
	if filter.RoleContext != nil {
		args = append(args, *filter.RoleContext)
		conds = append(conds, "role_context = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT` + invitationColumns + ` FROM invitations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.limit())
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invs []*Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}

	return invs, nil
}

// UpdateStatus applies a conditional transition. The UPDATE is conditioned
// on the stored status being a legal source for the target, so a concurrent
// transition loses cleanly instead of being overwritten.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, at time.Time) (*Invitation, error) {
	sources := LegalSources(to)
	if len(sources) == 0 {
		return nil, s.invalidTransition(ctx, id, to)
	}

	set := "status = $2, updated_at = $3"
	if field := TimestampField(to); field != "" {
		set += ", " + field + " = $3"
	}

	froms := make([]string, len(sources))
	for i, src := range sources {
		froms[i] = string(src)
	}

	inv, err := scanInvitation(s.pool.QueryRow(ctx, `
		UPDATE invitations
		SET `+set+`
		WHERE id = $1
		  AND status = ANY($4)
		RETURNING`+invitationColumns,
		id, to, at, froms,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.invalidTransition(ctx, id, to)
		}
		return nil, fmt.Errorf("failed to update invitation status: %w", err)
	}

	return inv, nil
}

// invalidTransition distinguishes a missing record from an illegal
// transition after a conditional write matched no row.
func (s *PostgresStore) invalidTransition(ctx context.Context, id uuid.UUID, to Status) error {
	var current Status
	err := s.pool.QueryRow(ctx, `SELECT status FROM invitations WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvitationNotFound
		}
		return fmt.Errorf("failed to load invitation status: %w", err)
	}
	return &InvalidTransitionError{Current: current, Requested: to}
}

// UpdateMessage replaces the personalization message of a pending
// invitation.
func (s *PostgresStore) UpdateMessage(ctx context.Context, id uuid.UUID, message string, at time.Time) (*Invitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx, `
		UPDATE invitations
		SET message = $2, updated_at = $3
		WHERE id = $1
		  AND status = 'pending'
		RETURNING`+invitationColumns,
		id, message, at,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrMessageNotEditable
		}
		return nil, fmt.Errorf("failed to update invitation message: %w", err)
	}
	return inv, nil
}

// Delete removes a pending or sent invitation outright.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM invitations
		WHERE id = $1
		  AND status IN ('pending', 'sent')
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrNotDeletable
	}
	return nil
}
