// Package models defines the persisted entities of the prediction scanner.
// Monetary values are fixed-precision decimals; timestamps are canonical
// Taipei strings produced by internal/timeutil.
package models

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/prediction-scanner/internal/types"
)

// Round represents one closed epoch of the prediction market
type Round struct {
	Epoch       int64             `json:"epoch"`
	StartTs     string            `json:"startTs"`
	LockTs      string            `json:"lockTs"`
	CloseTs     string            `json:"closeTs"`
	LockPrice   decimal.Decimal   `json:"lockPrice"`  // 8 fractional digits
	ClosePrice  decimal.Decimal   `json:"closePrice"` // 8 fractional digits
	Result      types.RoundResult `json:"result"`     // UP/DOWN, empty on draw
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	UpAmount    decimal.Decimal   `json:"upAmount"`
	DownAmount  decimal.Decimal   `json:"downAmount"`
	UpPayout    decimal.Decimal   `json:"upPayout"`   // 4 fractional digits
	DownPayout  decimal.Decimal   `json:"downPayout"` // 4 fractional digits
}

// treasuryFeeFactor is the pool share left after the fixed 3% treasury fee
var treasuryFeeFactor = decimal.RequireFromString("0.97")

// ComputePayouts fills UpPayout/DownPayout from the pool amounts:
// payout = round4(total * 0.97 / side) when the side pool is non-zero, else 0.
func (r *Round) ComputePayouts() {
	afterFee := r.TotalAmount.Mul(treasuryFeeFactor)
	if r.UpAmount.IsPositive() {
		r.UpPayout = afterFee.Div(r.UpAmount).Round(4)
	} else {
		r.UpPayout = decimal.Zero
	}
	if r.DownAmount.IsPositive() {
		r.DownPayout = afterFee.Div(r.DownAmount).Round(4)
	} else {
		r.DownPayout = decimal.Zero
	}
}

// ResolveResult derives the round result from lock and close prices.
// Equal prices are a draw, represented as the absent result.
func (r *Round) ResolveResult() {
	switch r.ClosePrice.Cmp(r.LockPrice) {
	case 1:
		r.Result = types.ResultUp
	case -1:
		r.Result = types.ResultDown
	default:
		r.Result = types.ResultNone
	}
}

// HisBet represents one on-chain bet event in a closed epoch
type HisBet struct {
	Epoch         int64            `json:"epoch"`
	BetTs         string           `json:"betTs"`
	WalletAddress string           `json:"walletAddress"` // lowercased hex
	BetDirection  types.Direction  `json:"betDirection"`
	Amount        decimal.Decimal  `json:"amount"`
	Result        types.BetOutcome `json:"result"` // WIN/LOSS, empty on draw
	TxHash        string           `json:"txHash"` // globally unique
}

// Claim represents one payout event. Epoch is the crawler's processing epoch
// (when the payout transaction landed); BetEpoch is the epoch the reward is
// for. The two intentionally differ when a wallet claims old rounds late.
type Claim struct {
	Epoch         int64           `json:"epoch"`
	ClaimTs       string          `json:"claimTs"`
	WalletAddress string          `json:"walletAddress"`
	ClaimAmount   decimal.Decimal `json:"claimAmount"`
	BetEpoch      int64           `json:"betEpoch"`
	TxHash        string          `json:"txHash"`
}

// RealBet is the short-lived hot-table record for a live bet. It carries no
// tx hash and no result; the historical pipeline supersedes it after the
// epoch closes.
type RealBet struct {
	Epoch         int64           `json:"epoch"`
	BetTs         string          `json:"betTs"`
	WalletAddress string          `json:"walletAddress"`
	BetDirection  types.Direction `json:"betDirection"`
	Amount        decimal.Decimal `json:"amount"`
}

// MultiClaim is an offline abuse finding: one wallet with more claims in one
// epoch's claim window than the configured threshold.
type MultiClaim struct {
	Epoch         int64           `json:"epoch"`
	WalletAddress string          `json:"walletAddress"`
	ClaimCount    int             `json:"claimCount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	CreatedAt     string          `json:"createdAt"`
}

// FailedEpoch quarantines an epoch that failed integrity checks three times
type FailedEpoch struct {
	Epoch         int64  `json:"epoch"`
	ErrorMessage  string `json:"errorMessage"`
	LastAttemptTs string `json:"lastAttemptTs"`
	FailureCount  int    `json:"failureCount"`
}

// WalletNote is a free-form annotation on a wallet, written automatically by
// the online detector the first time a wallet trips any flag.
type WalletNote struct {
	WalletAddress string `json:"walletAddress"`
	Note          string `json:"note"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// NormalizeWallet lowercases a hex wallet address for use as a natural key
func NormalizeWallet(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
