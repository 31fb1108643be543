package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ExpireOverdueInvitations marks pending and sent invitations whose expiry
// has passed as expired. Lazy expiry already corrects records on read; the
// sweep converges rows nobody reads. Idempotent, safe to run repeatedly.
//
// Returns the number of rows updated.
func ExpireOverdueInvitations(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	tag, err := pool.Exec(ctx, `
		UPDATE invitations
		SET status = 'expired', updated_at = NOW()
		WHERE status IN ('pending', 'sent')
		  AND expires_at <= NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue invitations: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RunSweepJob executes the expiry sweep and logs the result. This is the
// entry point called by the cron scheduler.
func RunSweepJob(ctx context.Context, pool *pgxpool.Pool) error {
	startTime := time.Now()

	expired, err := ExpireOverdueInvitations(ctx, pool)
	if err != nil {
		log.Error().Err(err).Msg("Expiry sweep failed")
		return fmt.Errorf("expiry sweep failed: %w", err)
	}

	log.Info().
		Int64("invitations_expired", expired).
		Dur("duration", time.Since(startTime)).
		Msg("Expiry sweep completed")

	return nil
}
