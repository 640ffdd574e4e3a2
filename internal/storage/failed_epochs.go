package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/prediction-scanner/internal/models"
	"github.com/prediction-scanner/internal/timeutil"
)

// GetFailedEpoch retrieves the quarantine record for an epoch, nil when the
// epoch never failed.
func (s *PostgresStore) GetFailedEpoch(ctx context.Context, epoch int64) (*models.FailedEpoch, error) {
	if err := s.db.Ensure(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT epoch, error_message, last_attempt_ts, failure_count
		FROM failed_epoch
		WHERE epoch = $1
	`

	var fe models.FailedEpoch
	err := s.db.Pool().QueryRow(ctx, query, epoch).Scan(
		&fe.Epoch, &fe.ErrorMessage, &fe.LastAttemptTs, &fe.FailureCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, s.db.fail("get failed epoch", err)
	}
	return &fe, nil
}

// RecordEpochFailure increments the failure counter for an epoch and
// returns the new count. The third strike quarantines the epoch.
func (s *PostgresStore) RecordEpochFailure(ctx context.Context, epoch int64, message string) (int, error) {
	if err := s.db.Ensure(ctx); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO failed_epoch (epoch, error_message, last_attempt_ts, failure_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (epoch) DO UPDATE SET
			error_message = EXCLUDED.error_message,
			last_attempt_ts = EXCLUDED.last_attempt_ts,
			failure_count = failed_epoch.failure_count + 1
		RETURNING failure_count
	`

	var count int
	err := s.db.Pool().QueryRow(ctx, query, epoch, message, timeutil.Now()).Scan(&count)
	if err != nil {
		return 0, s.db.fail("record epoch failure", err)
	}
	return count, nil
}
