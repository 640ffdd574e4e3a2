package storage

import (
	"context"

	"github.com/prediction-scanner/internal/models"
)

// InsertRealBet appends a live bet to the hot table. The table is
// deliberately append-only; deduplication happens in the real-time
// pipeline's in-memory set, and rows are wiped per epoch by the
// historical pipeline.
func (s *PostgresStore) InsertRealBet(ctx context.Context, bet *models.RealBet) error {
	if err := s.db.Ensure(ctx); err != nil {
		return err
	}

	query := `
		INSERT INTO realbet (epoch, bet_ts, wallet_address, bet_direction, amount)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.Pool().Exec(ctx, query,
		bet.Epoch,
		bet.BetTs,
		models.NormalizeWallet(bet.WalletAddress),
		string(bet.BetDirection),
		bet.Amount,
	)
	if err != nil {
		return s.db.fail("insert realbet", err)
	}
	return nil
}

// DeleteRealBetsForEpoch removes the hot rows of one committed epoch
func (s *PostgresStore) DeleteRealBetsForEpoch(ctx context.Context, epoch int64) error {
	if err := s.db.Ensure(ctx); err != nil {
		return err
	}
	if _, err := s.db.Pool().Exec(ctx, `DELETE FROM realbet WHERE epoch = $1`, epoch); err != nil {
		return s.db.fail("delete realbets for epoch", err)
	}
	return nil
}

// DeleteRealBetsBefore sweeps hot rows older than the given epoch, keeping
// the table bounded to the recent window.
func (s *PostgresStore) DeleteRealBetsBefore(ctx context.Context, epoch int64) error {
	if err := s.db.Ensure(ctx); err != nil {
		return err
	}
	if _, err := s.db.Pool().Exec(ctx, `DELETE FROM realbet WHERE epoch < $1`, epoch); err != nil {
		return s.db.fail("sweep realbets", err)
	}
	return nil
}

// CountRealBetsBefore counts hot rows older than the given epoch, used by
// graceful-restart validation to confirm the sweep ran.
func (s *PostgresStore) CountRealBetsBefore(ctx context.Context, epoch int64) (int, error) {
	if err := s.db.Ensure(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM realbet WHERE epoch < $1`, epoch,
	).Scan(&count)
	if err != nil {
		return 0, s.db.fail("count realbets", err)
	}
	return count, nil
}

// RecentRealBets returns the newest hot rows, used to warm-restore the
// real-time pipeline's dedup set after a restart.
func (s *PostgresStore) RecentRealBets(ctx context.Context, limit int) ([]models.RealBet, error) {
	if err := s.db.Ensure(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT epoch, bet_ts, wallet_address, bet_direction, amount
		FROM realbet
		ORDER BY bet_ts DESC
		LIMIT $1
	`

	rows, err := s.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, s.db.fail("list realbets", err)
	}
	defer rows.Close()

	var bets []models.RealBet
	for rows.Next() {
		var b models.RealBet
		if err := rows.Scan(&b.Epoch, &b.BetTs, &b.WalletAddress, &b.BetDirection, &b.Amount); err != nil {
			return nil, s.db.fail("scan realbet", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, s.db.fail("iterate realbets", err)
	}
	return bets, nil
}
