package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// decodeBetLog decodes a BetBull/BetBear log:
// topics[1] = sender, topics[2] = epoch, data = amount.
func decodeBetLog(lg types.Log) (*BetEvent, error) {
	if len(lg.Topics) < 3 {
		return nil, fmt.Errorf("bet log %s has %d topics, want 3", lg.TxHash.Hex(), len(lg.Topics))
	}
	return &BetEvent{
		Epoch:       new(big.Int).SetBytes(lg.Topics[2].Bytes()).Int64(),
		Sender:      strings.ToLower(common.BytesToAddress(lg.Topics[1].Bytes()).Hex()),
		Amount:      weiToDecimal(new(big.Int).SetBytes(lg.Data)),
		TxHash:      lg.TxHash.Hex(),
		BlockNumber: lg.BlockNumber,
	}, nil
}

// decodeClaimLog decodes a Claim log. Its epoch topic is the epoch the
// payout is for, not the epoch the transaction landed in.
func decodeClaimLog(lg types.Log) (*ClaimEvent, error) {
	if len(lg.Topics) < 3 {
		return nil, fmt.Errorf("claim log %s has %d topics, want 3", lg.TxHash.Hex(), len(lg.Topics))
	}
	return &ClaimEvent{
		Epoch:       new(big.Int).SetBytes(lg.Topics[2].Bytes()).Int64(),
		Sender:      strings.ToLower(common.BytesToAddress(lg.Topics[1].Bytes()).Hex()),
		Amount:      weiToDecimal(new(big.Int).SetBytes(lg.Data)),
		TxHash:      lg.TxHash.Hex(),
		BlockNumber: lg.BlockNumber,
	}, nil
}

// decodeEpochTopic extracts the indexed epoch from StartRound/LockRound logs
func decodeEpochTopic(lg types.Log) (int64, error) {
	if len(lg.Topics) < 2 {
		return 0, fmt.Errorf("round log %s has %d topics, want 2", lg.TxHash.Hex(), len(lg.Topics))
	}
	return new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64(), nil
}

func decodeBetLogs(logs []types.Log) []BetEvent {
	events := make([]BetEvent, 0, len(logs))
	for _, lg := range logs {
		ev, err := decodeBetLog(lg)
		if err != nil {
			continue // malformed log, skip
		}
		events = append(events, *ev)
	}
	return events
}

func decodeClaimLogs(logs []types.Log) []ClaimEvent {
	events := make([]ClaimEvent, 0, len(logs))
	for _, lg := range logs {
		ev, err := decodeClaimLog(lg)
		if err != nil {
			continue
		}
		events = append(events, *ev)
	}
	return events
}

// decodePushLog maps a subscription log to a push-surface Event, or nil for
// log kinds the live pipeline does not consume.
func decodePushLog(lg types.Log) *Event {
	if len(lg.Topics) == 0 {
		return nil
	}
	switch lg.Topics[0] {
	case topicBetBull:
		bet, err := decodeBetLog(lg)
		if err != nil {
			return nil
		}
		return &Event{Kind: EventBetBull, Bet: bet}
	case topicBetBear:
		bet, err := decodeBetLog(lg)
		if err != nil {
			return nil
		}
		return &Event{Kind: EventBetBear, Bet: bet}
	case topicStartRound:
		epoch, err := decodeEpochTopic(lg)
		if err != nil {
			return nil
		}
		return &Event{Kind: EventStartRound, Epoch: epoch}
	case topicLockRound:
		epoch, err := decodeEpochTopic(lg)
		if err != nil {
			return nil
		}
		return &Event{Kind: EventLockRound, Epoch: epoch}
	default:
		return nil
	}
}
