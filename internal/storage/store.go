package storage

import (
	"context"
	"fmt"

	"github.com/prediction-scanner/internal/models"
)

// PostgresStore implements Store on top of a PostgresDB pool
type PostgresStore struct {
	db *PostgresDB
}

// NewPostgresStore creates the production store
func NewPostgresStore(db *PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// DB returns the underlying database handle
func (s *PostgresStore) DB() *PostgresDB {
	return s.db
}

// CommitEpoch writes the round, all historical bets and all claims in a
// single transaction. Every write is an idempotent upsert by natural key,
// so re-processing a closed epoch yields the same row set.
func (s *PostgresStore) CommitEpoch(ctx context.Context, round *models.Round, bets []models.HisBet, claims []models.Claim) error {
	if err := s.db.Ensure(ctx); err != nil {
		return err
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return s.db.fail("begin epoch commit", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := upsertRoundTx(ctx, tx, round); err != nil {
		return s.db.fail(fmt.Sprintf("commit round %d", round.Epoch), err)
	}
	if err := insertHisBetsTx(ctx, tx, bets); err != nil {
		return s.db.fail(fmt.Sprintf("commit bets for epoch %d", round.Epoch), err)
	}
	if err := insertClaimsTx(ctx, tx, claims); err != nil {
		return s.db.fail(fmt.Sprintf("commit claims for epoch %d", round.Epoch), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return s.db.fail(fmt.Sprintf("commit epoch %d", round.Epoch), err)
	}
	return nil
}

// DeleteEpochData removes any partial round, bet and claim rows for an
// epoch. Used when an integrity check fails so a retry starts clean.
func (s *PostgresStore) DeleteEpochData(ctx context.Context, epoch int64) error {
	if err := s.db.Ensure(ctx); err != nil {
		return err
	}

	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return s.db.fail("begin epoch delete", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, query := range []string{
		`DELETE FROM hisbet WHERE epoch = $1`,
		`DELETE FROM claim WHERE epoch = $1`,
		`DELETE FROM round WHERE epoch = $1`,
	} {
		if _, err := tx.Exec(ctx, query, epoch); err != nil {
			return s.db.fail(fmt.Sprintf("delete epoch %d data", epoch), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return s.db.fail(fmt.Sprintf("delete epoch %d data", epoch), err)
	}
	return nil
}
