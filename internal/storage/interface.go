package storage

import (
	"context"

	"github.com/prediction-scanner/internal/models"
)

// Store is the persistence surface the pipelines and detector depend on.
// PostgresStore is the production implementation; tests substitute the
// in-memory MockStore.
type Store interface {
	// Rounds
	GetRound(ctx context.Context, epoch int64) (*models.Round, error)

	// CommitEpoch writes the round, its historical bets and its claims in
	// one transaction; rollback leaves no partial round visible.
	CommitEpoch(ctx context.Context, round *models.Round, bets []models.HisBet, claims []models.Claim) error

	// DeleteEpochData removes any partial round/bet/claim rows for an
	// epoch, used when an integrity check fails.
	DeleteEpochData(ctx context.Context, epoch int64) error

	// Hot table
	InsertRealBet(ctx context.Context, bet *models.RealBet) error
	DeleteRealBetsForEpoch(ctx context.Context, epoch int64) error
	DeleteRealBetsBefore(ctx context.Context, epoch int64) error
	CountRealBetsBefore(ctx context.Context, epoch int64) (int, error)
	RecentRealBets(ctx context.Context, limit int) ([]models.RealBet, error)

	// Claims and findings
	ClaimsForEpoch(ctx context.Context, epoch int64) ([]models.Claim, error)
	UpsertMultiClaim(ctx context.Context, mc *models.MultiClaim) error
	MultiClaimsForEpoch(ctx context.Context, epoch int64) ([]models.MultiClaim, error)

	// Row counts for restart validation
	CountHisBetsForEpoch(ctx context.Context, epoch int64) (int, error)
	CountClaimsForEpoch(ctx context.Context, epoch int64) (int, error)

	// Failure quarantine
	GetFailedEpoch(ctx context.Context, epoch int64) (*models.FailedEpoch, error)
	RecordEpochFailure(ctx context.Context, epoch int64, message string) (int, error)

	// Wallet notes
	GetWalletNote(ctx context.Context, wallet string) (*models.WalletNote, error)
	UpsertWalletNote(ctx context.Context, note *models.WalletNote) error
}
