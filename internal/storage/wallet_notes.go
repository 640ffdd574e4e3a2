package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/prediction-scanner/internal/models"
	"github.com/prediction-scanner/internal/timeutil"
)

// GetWalletNote retrieves the annotation for a wallet, nil when the wallet
// has no note.
func (s *PostgresStore) GetWalletNote(ctx context.Context, wallet string) (*models.WalletNote, error) {
	if err := s.db.Ensure(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT wallet_address, note, created_at, updated_at
		FROM wallet_note
		WHERE wallet_address = $1
	`

	var n models.WalletNote
	err := s.db.Pool().QueryRow(ctx, query, models.NormalizeWallet(wallet)).Scan(
		&n.WalletAddress, &n.Note, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, s.db.fail("get wallet note", err)
	}
	return &n, nil
}

// UpsertWalletNote writes or refreshes a wallet annotation
func (s *PostgresStore) UpsertWalletNote(ctx context.Context, note *models.WalletNote) error {
	if err := s.db.Ensure(ctx); err != nil {
		return err
	}

	now := timeutil.Now()
	if note.CreatedAt == "" {
		note.CreatedAt = now
	}
	note.UpdatedAt = now

	query := `
		INSERT INTO wallet_note (wallet_address, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet_address) DO UPDATE SET
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.Pool().Exec(ctx, query,
		models.NormalizeWallet(note.WalletAddress),
		note.Note,
		note.CreatedAt,
		note.UpdatedAt,
	)
	if err != nil {
		return s.db.fail("upsert wallet note", err)
	}
	return nil
}
