package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rosterkit/rosterkit/internal/invitations"
)

func TestAcceptURL(t *testing.T) {
	got := AcceptURL("https://portal.example.com", "rki_abc-DEF_123")
	require.Equal(t, "https://portal.example.com/invites/accept?token=rki_abc-DEF_123", got)
}

func TestLogNotifier(t *testing.T) {
	n := &LogNotifier{BaseURL: "https://portal.example.com"}

	inv := &invitations.Invitation{
		ID:           uuid.New(),
		Token:        "rki_test",
		SubjectEmail: "coach@example.com",
		RoleContext:  invitations.RoleCoach,
		Status:       invitations.StatusPending,
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	require.NoError(t, n.Notify(context.Background(), inv))
}
