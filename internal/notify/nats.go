package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rosterkit/rosterkit/internal/invitations"
)

// emailJob is the message consumed by the mailer workers. It carries
// everything needed to render and send the invitation email, including the
// tokenized accept link.
type emailJob struct {
	InvitationID string    `json:"invitation_id"`
	SubjectEmail string    `json:"subject_email"`
	RoleContext  string    `json:"role_context"`
	Message      string    `json:"message,omitempty"`
	AcceptURL    string    `json:"accept_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// EmailPublisher publishes invitation email jobs to NATS JetStream for the
// mailer worker fleet.
type EmailPublisher struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
	baseURL string
}

// NewEmailPublisher connects to NATS and returns a publisher for the given
// subject. The base URL is used to build the accept deep link.
func NewEmailPublisher(natsURL, subject, baseURL string) (*EmailPublisher, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("rosterkit"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	return &EmailPublisher{
		conn:    conn,
		js:      js,
		subject: subject,
		baseURL: baseURL,
	}, nil
}

// Notify publishes an email job for the invitation.
func (p *EmailPublisher) Notify(ctx context.Context, inv *invitations.Invitation) error {
	job := emailJob{
		InvitationID: inv.ID.String(),
		SubjectEmail: inv.SubjectEmail,
		RoleContext:  string(inv.RoleContext),
		Message:      inv.Message,
		AcceptURL:    AcceptURL(p.baseURL, inv.Token),
		ExpiresAt:    inv.ExpiresAt,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal email job: %w", err)
	}

	if _, err := p.js.Publish(p.subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish email job: %w", err)
	}

	return nil
}

// Close drains the underlying NATS connection.
func (p *EmailPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// AcceptURL builds the tokenized deep link embedded in the invitation
// email.
func AcceptURL(baseURL, token string) string {
	return baseURL + "/invites/accept?token=" + url.QueryEscape(token)
}
