package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Oracle prices carry 8 fractional digits, pool amounts 18 (wei).
const (
	priceExponent  = -8
	amountExponent = -18
)

// RoundView mirrors the on-chain rounds(epoch) view
type RoundView struct {
	Epoch          int64
	StartTimestamp int64
	LockTimestamp  int64
	CloseTimestamp int64
	LockPrice      decimal.Decimal
	ClosePrice     decimal.Decimal
	TotalAmount    decimal.Decimal
	BullAmount     decimal.Decimal
	BearAmount     decimal.Decimal
}

// Closed reports whether the round has resolved on-chain
func (r *RoundView) Closed() bool {
	return r.CloseTimestamp != 0
}

// Started reports whether the round has started on-chain
func (r *RoundView) Started() bool {
	return r.StartTimestamp != 0
}

// Block is a block number with its timestamp, the only block data the
// scanner needs.
type Block struct {
	Number    uint64
	Timestamp int64
}

// BetEvent is a decoded BetBull or BetBear log
type BetEvent struct {
	Epoch       int64
	Sender      string
	Amount      decimal.Decimal
	TxHash      string
	BlockNumber uint64
}

// ClaimEvent is a decoded Claim log. Epoch here is the epoch the payout is
// for (the claim's provenance), straight from the event.
type ClaimEvent struct {
	Epoch       int64
	Sender      string
	Amount      decimal.Decimal
	TxHash      string
	BlockNumber uint64
}

// EventBatch groups the three historical event streams of one block range
type EventBatch struct {
	BetBulls []BetEvent
	BetBears []BetEvent
	Claims   []ClaimEvent
}

// EventKind discriminates the push-surface event variants
type EventKind string

const (
	// EventBetBull is a live UP bet
	EventBetBull EventKind = "bet_bull"
	// EventBetBear is a live DOWN bet
	EventBetBear EventKind = "bet_bear"
	// EventStartRound marks a new round opening for bets
	EventStartRound EventKind = "start_round"
	// EventLockRound marks a round locking (no more bets)
	EventLockRound EventKind = "lock_round"
	// EventConnection reports subscription connect/disconnect transitions
	EventConnection EventKind = "connection"
)

// Event is one element of the push-surface stream
type Event struct {
	Kind      EventKind
	Bet       *BetEvent // set for bet_bull / bet_bear
	Epoch     int64     // set for start_round / lock_round
	Connected bool      // set for connection
}

func weiToDecimal(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v, amountExponent)
}

func priceToDecimal(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v, priceExponent)
}
