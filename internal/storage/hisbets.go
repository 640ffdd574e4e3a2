package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/prediction-scanner/internal/models"
)

func insertHisBetsTx(ctx context.Context, tx pgx.Tx, bets []models.HisBet) error {
	if len(bets) == 0 {
		return nil
	}

	query := `
		INSERT INTO hisbet (
			epoch, bet_ts, wallet_address, bet_direction, amount, result, tx_hash
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		ON CONFLICT (tx_hash) DO UPDATE SET
			epoch = EXCLUDED.epoch,
			bet_ts = EXCLUDED.bet_ts,
			wallet_address = EXCLUDED.wallet_address,
			bet_direction = EXCLUDED.bet_direction,
			amount = EXCLUDED.amount,
			result = EXCLUDED.result
	`

	batch := &pgx.Batch{}
	for _, b := range bets {
		batch.Queue(query,
			b.Epoch,
			b.BetTs,
			models.NormalizeWallet(b.WalletAddress),
			string(b.BetDirection),
			b.Amount,
			string(b.Result),
			b.TxHash,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck

	for range bets {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

// CountHisBetsForEpoch returns the number of stored historical bets for an epoch
func (s *PostgresStore) CountHisBetsForEpoch(ctx context.Context, epoch int64) (int, error) {
	if err := s.db.Ensure(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM hisbet WHERE epoch = $1`, epoch,
	).Scan(&count)
	if err != nil {
		return 0, s.db.fail("count hisbets", err)
	}
	return count, nil
}
