package detector

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/prediction-scanner/internal/models"
	"github.com/prediction-scanner/internal/storage"
	"github.com/prediction-scanner/internal/timeutil"
)

// Offline inspects a closed epoch's claim set for wallets claiming more than
// the configured threshold inside one epoch's claim window.
type Offline struct {
	store     storage.Store
	threshold int
}

// NewOffline creates the offline detector
func NewOffline(store storage.Store, threshold int) *Offline {
	return &Offline{store: store, threshold: threshold}
}

// Finding is one wallet's claim aggregate inside an epoch's claim window
type Finding struct {
	WalletAddress string
	ClaimCount    int
	DistinctBets  int // distinct bet_epoch values
	TotalAmount   decimal.Decimal
}

// aggregate groups an epoch's claims by wallet
func aggregate(claims []models.Claim) []Finding {
	type agg struct {
		count     int
		betEpochs map[int64]struct{}
		total     decimal.Decimal
	}
	byWallet := make(map[string]*agg)
	for _, c := range claims {
		wallet := models.NormalizeWallet(c.WalletAddress)
		a, ok := byWallet[wallet]
		if !ok {
			a = &agg{betEpochs: make(map[int64]struct{}), total: decimal.Zero}
			byWallet[wallet] = a
		}
		a.count++
		a.betEpochs[c.BetEpoch] = struct{}{}
		a.total = a.total.Add(c.ClaimAmount)
	}

	findings := make([]Finding, 0, len(byWallet))
	for wallet, a := range byWallet {
		findings = append(findings, Finding{
			WalletAddress: wallet,
			ClaimCount:    a.count,
			DistinctBets:  len(a.betEpochs),
			TotalAmount:   a.total,
		})
	}
	sort.Slice(findings, func(i, j int) bool {
		return findings[i].ClaimCount > findings[j].ClaimCount
	})
	return findings
}

// DetectEpoch runs the row-count variant over one epoch's claims and persists
// a multi_claims row for every wallet above the threshold. Returns the
// persisted findings.
func (d *Offline) DetectEpoch(ctx context.Context, epoch int64) ([]models.MultiClaim, error) {
	claims, err := d.store.ClaimsForEpoch(ctx, epoch)
	if err != nil {
		return nil, fmt.Errorf("load claims for epoch %d: %w", epoch, err)
	}
	if len(claims) == 0 {
		return nil, nil
	}

	now := timeutil.Now()
	var persisted []models.MultiClaim
	for _, f := range aggregate(claims) {
		if f.ClaimCount <= d.threshold {
			continue
		}
		mc := models.MultiClaim{
			Epoch:         epoch,
			WalletAddress: f.WalletAddress,
			ClaimCount:    f.ClaimCount,
			TotalAmount:   f.TotalAmount,
			CreatedAt:     now,
		}
		if err := d.store.UpsertMultiClaim(ctx, &mc); err != nil {
			return persisted, fmt.Errorf("record multi-claim %d/%s: %w", epoch, f.WalletAddress, err)
		}
		log.Printf("[Detector] multi-claim: epoch=%d wallet=%s count=%d total=%s",
			epoch, f.WalletAddress, f.ClaimCount, f.TotalAmount.String())
		persisted = append(persisted, mc)
	}
	return persisted, nil
}

// DetectEpochDistinct runs the distinct-bet_epoch variant: wallets claiming
// more than threshold different prior rounds inside one epoch's claim window.
// Used by the graceful-restart validation; findings are returned, not
// persisted.
func (d *Offline) DetectEpochDistinct(ctx context.Context, epoch int64) ([]Finding, error) {
	claims, err := d.store.ClaimsForEpoch(ctx, epoch)
	if err != nil {
		return nil, fmt.Errorf("load claims for epoch %d: %w", epoch, err)
	}

	var suspicious []Finding
	for _, f := range aggregate(claims) {
		if f.DistinctBets > d.threshold {
			suspicious = append(suspicious, f)
		}
	}
	return suspicious, nil
}
