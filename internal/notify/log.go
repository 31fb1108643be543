package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/rosterkit/rosterkit/internal/invitations"
)

// LogNotifier logs the accept link instead of delivering it. Used in dev
// when no NATS URL is configured.
type LogNotifier struct {
	BaseURL string
}

// Notify logs the invitation delivery.
func (n *LogNotifier) Notify(ctx context.Context, inv *invitations.Invitation) error {
	log.Info().
		Str("invitation_id", inv.ID.String()).
		Str("subject_email", inv.SubjectEmail).
		Str("accept_url", AcceptURL(n.BaseURL, inv.Token)).
		Msg("Invitation delivery (log notifier)")
	return nil
}
