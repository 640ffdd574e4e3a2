package storage

import (
	"context"

	"github.com/prediction-scanner/internal/models"
)

// UpsertMultiClaim records an offline abuse finding keyed by (epoch, wallet)
func (s *PostgresStore) UpsertMultiClaim(ctx context.Context, mc *models.MultiClaim) error {
	if err := s.db.Ensure(ctx); err != nil {
		return err
	}

	query := `
		INSERT INTO multi_claims (epoch, wallet_address, claim_count, total_amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (epoch, wallet_address) DO UPDATE SET
			claim_count = EXCLUDED.claim_count,
			total_amount = EXCLUDED.total_amount
	`

	_, err := s.db.Pool().Exec(ctx, query,
		mc.Epoch,
		models.NormalizeWallet(mc.WalletAddress),
		mc.ClaimCount,
		mc.TotalAmount,
		mc.CreatedAt,
	)
	if err != nil {
		return s.db.fail("upsert multi claim", err)
	}
	return nil
}

// MultiClaimsForEpoch returns the offline findings of one epoch
func (s *PostgresStore) MultiClaimsForEpoch(ctx context.Context, epoch int64) ([]models.MultiClaim, error) {
	if err := s.db.Ensure(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT epoch, wallet_address, claim_count, total_amount, created_at
		FROM multi_claims
		WHERE epoch = $1
		ORDER BY claim_count DESC
	`

	rows, err := s.db.Pool().Query(ctx, query, epoch)
	if err != nil {
		return nil, s.db.fail("list multi claims", err)
	}
	defer rows.Close()

	var findings []models.MultiClaim
	for rows.Next() {
		var mc models.MultiClaim
		if err := rows.Scan(&mc.Epoch, &mc.WalletAddress, &mc.ClaimCount, &mc.TotalAmount, &mc.CreatedAt); err != nil {
			return nil, s.db.fail("scan multi claim", err)
		}
		findings = append(findings, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, s.db.fail("iterate multi claims", err)
	}
	return findings, nil
}
