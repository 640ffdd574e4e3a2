package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/prediction-scanner/internal/models"
)

// GetRound retrieves a round by epoch, returning nil without error when the
// epoch has not been stored yet.
func (s *PostgresStore) GetRound(ctx context.Context, epoch int64) (*models.Round, error) {
	if err := s.db.Ensure(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT epoch, start_ts, lock_ts, close_ts, lock_price, close_price,
		       COALESCE(result, ''), total_amount, up_amount, down_amount,
		       up_payout, down_payout
		FROM round
		WHERE epoch = $1
	`

	var r models.Round
	err := s.db.Pool().QueryRow(ctx, query, epoch).Scan(
		&r.Epoch,
		&r.StartTs,
		&r.LockTs,
		&r.CloseTs,
		&r.LockPrice,
		&r.ClosePrice,
		&r.Result,
		&r.TotalAmount,
		&r.UpAmount,
		&r.DownAmount,
		&r.UpPayout,
		&r.DownPayout,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, s.db.fail("get round", err)
	}
	return &r, nil
}

func upsertRoundTx(ctx context.Context, tx pgx.Tx, r *models.Round) error {
	query := `
		INSERT INTO round (
			epoch, start_ts, lock_ts, close_ts, lock_price, close_price,
			result, total_amount, up_amount, down_amount, up_payout, down_payout
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12)
		ON CONFLICT (epoch) DO UPDATE SET
			start_ts = EXCLUDED.start_ts,
			lock_ts = EXCLUDED.lock_ts,
			close_ts = EXCLUDED.close_ts,
			lock_price = EXCLUDED.lock_price,
			close_price = EXCLUDED.close_price,
			result = EXCLUDED.result,
			total_amount = EXCLUDED.total_amount,
			up_amount = EXCLUDED.up_amount,
			down_amount = EXCLUDED.down_amount,
			up_payout = EXCLUDED.up_payout,
			down_payout = EXCLUDED.down_payout
	`

	_, err := tx.Exec(ctx, query,
		r.Epoch,
		r.StartTs,
		r.LockTs,
		r.CloseTs,
		r.LockPrice,
		r.ClosePrice,
		string(r.Result),
		r.TotalAmount,
		r.UpAmount,
		r.DownAmount,
		r.UpPayout,
		r.DownPayout,
	)
	return err
}
