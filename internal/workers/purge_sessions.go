package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/givebridge/givebridge/internal/models"
	"github.com/givebridge/givebridge/internal/tasks"
)

// PurgeSessions deletes login sessions that expired or were revoked before cutoff
func PurgeSessions(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Where("expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)", cutoff, cutoff).
		Delete(&models.AuthSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// HandlePurgeSessions is the asynq handler for tasks.TypePurgeSessions
func HandlePurgeSessions(ctx context.Context, t *asynq.Task, db *gorm.DB, logger zerolog.Logger) error {
	payload, err := tasks.ParsePurgeSessionsPayload(t)
	if err != nil {
		// Malformed payloads never succeed on retry
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	deleted, err := PurgeSessions(ctx, db, payload.Cutoff)
	if err != nil {
		logger.Error().Err(err).Time("cutoff", payload.Cutoff).Msg("Session purge failed")
		return err
	}

	logger.Info().
		Int64("deleted", deleted).
		Time("cutoff", payload.Cutoff).
		Msg("Purged dead sessions")
	return nil
}
