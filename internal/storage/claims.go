package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/prediction-scanner/internal/models"
)

func insertClaimsTx(ctx context.Context, tx pgx.Tx, claims []models.Claim) error {
	if len(claims) == 0 {
		return nil
	}

	// epoch is the processing epoch; bet_epoch the payout's provenance.
	query := `
		INSERT INTO claim (
			epoch, claim_ts, wallet_address, claim_amount, bet_epoch, tx_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tx_hash) DO UPDATE SET
			epoch = EXCLUDED.epoch,
			claim_ts = EXCLUDED.claim_ts,
			wallet_address = EXCLUDED.wallet_address,
			claim_amount = EXCLUDED.claim_amount,
			bet_epoch = EXCLUDED.bet_epoch
	`

	batch := &pgx.Batch{}
	for _, c := range claims {
		batch.Queue(query,
			c.Epoch,
			c.ClaimTs,
			models.NormalizeWallet(c.WalletAddress),
			c.ClaimAmount,
			c.BetEpoch,
			c.TxHash,
		)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck

	for range claims {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

// ClaimsForEpoch returns all claims whose processing epoch is the given one
func (s *PostgresStore) ClaimsForEpoch(ctx context.Context, epoch int64) ([]models.Claim, error) {
	if err := s.db.Ensure(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT epoch, claim_ts, wallet_address, claim_amount, bet_epoch, tx_hash
		FROM claim
		WHERE epoch = $1
		ORDER BY claim_ts
	`

	rows, err := s.db.Pool().Query(ctx, query, epoch)
	if err != nil {
		return nil, s.db.fail("list claims", err)
	}
	defer rows.Close()

	var claims []models.Claim
	for rows.Next() {
		var c models.Claim
		if err := rows.Scan(&c.Epoch, &c.ClaimTs, &c.WalletAddress, &c.ClaimAmount, &c.BetEpoch, &c.TxHash); err != nil {
			return nil, s.db.fail("scan claim", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.db.fail("iterate claims", err)
	}
	return claims, nil
}

// CountClaimsForEpoch returns the number of stored claims for a processing epoch
func (s *PostgresStore) CountClaimsForEpoch(ctx context.Context, epoch int64) (int, error) {
	if err := s.db.Ensure(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM claim WHERE epoch = $1`, epoch,
	).Scan(&count)
	if err != nil {
		return 0, s.db.fail("count claims", err)
	}
	return count, nil
}
