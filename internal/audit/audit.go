package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventInviteCreated   = "invite.created"
	EventInviteSent      = "invite.sent"
	EventInviteAccepted  = "invite.accepted"
	EventInviteDeclined  = "invite.declined"
	EventInviteCancelled = "invite.cancelled"
	EventInviteCompleted = "invite.completed"
	EventInvitePurged    = "invite.purged"
)

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	InvitationID *uuid.UUID
	ActorID      *uuid.UUID
	Action       string
	Meta         map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	query := `
		INSERT INTO audit_log (invitation_id, actor_id, action, meta)
		VALUES ($1, $2, $3, $4)
	`

	_, err := w.pool.Exec(ctx, query, toNullUUID(params.InvitationID), toNullUUID(params.ActorID), params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	log.Info().
		Str("action", params.Action).
		Interface("invitation_id", params.InvitationID).
		Interface("actor_id", params.ActorID).
		Msg("Audit event logged")
	return nil
}

// LogInviteCreated records an invitation creation.
func (w *Writer) LogInviteCreated(ctx context.Context, invitationID, actorID uuid.UUID, email, role string) error {
	return w.Log(ctx, LogParams{
		InvitationID: &invitationID,
		ActorID:      &actorID,
		Action:       EventInviteCreated,
		Meta: map[string]interface{}{
			"subject_email": email,
			"role_context":  role,
		},
	})
}

// LogInviteTransition records a lifecycle transition under its event name.
func (w *Writer) LogInviteTransition(ctx context.Context, invitationID uuid.UUID, actorID *uuid.UUID, action string) error {
	return w.Log(ctx, LogParams{
		InvitationID: &invitationID,
		ActorID:      actorID,
		Action:       action,
	})
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
