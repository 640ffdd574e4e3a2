package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/prediction-scanner/internal/chain"
	"github.com/prediction-scanner/internal/fanout"
)

// fakeReader is an in-memory chain.Reader with a 3-second block cadence:
// block N has timestamp N*3, so SearchBlockByTime is exact division.
type fakeReader struct {
	mu      sync.Mutex
	current int64
	rounds  map[int64]*chain.RoundView
	batches map[int64]*chain.EventBatch // keyed by epoch's fromBlock

	roundErr map[int64]error
}

func newFakeReader(current int64) *fakeReader {
	return &fakeReader{
		current:  current,
		rounds:   make(map[int64]*chain.RoundView),
		batches:  make(map[int64]*chain.EventBatch),
		roundErr: make(map[int64]error),
	}
}

var _ chain.Reader = (*fakeReader)(nil)

func (f *fakeReader) CurrentEpoch(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeReader) Round(ctx context.Context, epoch int64) (*chain.RoundView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.roundErr[epoch]; err != nil {
		return nil, err
	}
	if view, ok := f.rounds[epoch]; ok {
		cp := *view
		return &cp, nil
	}
	// Unknown epochs read as an empty on-chain struct, like the contract.
	return &chain.RoundView{Epoch: epoch}, nil
}

func (f *fakeReader) BlockNumber(ctx context.Context) (uint64, error) {
	return 1_000_000, nil
}

func (f *fakeReader) Block(ctx context.Context, number uint64) (*chain.Block, error) {
	return &chain.Block{Number: number, Timestamp: int64(number) * 3}, nil
}

func (f *fakeReader) SearchBlockByTime(ctx context.Context, target int64) (uint64, error) {
	if target <= 0 {
		return 0, fmt.Errorf("no block for timestamp %d", target)
	}
	return uint64(target) / 3, nil
}

func (f *fakeReader) FilterEvents(ctx context.Context, fromBlock, toBlock uint64) (*chain.EventBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if batch, ok := f.batches[int64(fromBlock)]; ok {
		return batch, nil
	}
	return &chain.EventBatch{}, nil
}

// addClosedRound registers a fully closed round and its event batch. Round
// timestamps are spaced 300 s apart starting at epoch*1000.
func (f *fakeReader) addClosedRound(epoch int64, lockPrice, closePrice, total, bull, bear string, batch *chain.EventBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := epoch * 1000
	f.rounds[epoch] = &chain.RoundView{
		Epoch:          epoch,
		StartTimestamp: start,
		LockTimestamp:  start + 300,
		CloseTimestamp: start + 600,
		LockPrice:      decimal.RequireFromString(lockPrice),
		ClosePrice:     decimal.RequireFromString(closePrice),
		TotalAmount:    decimal.RequireFromString(total),
		BullAmount:     decimal.RequireFromString(bull),
		BearAmount:     decimal.RequireFromString(bear),
	}
	if batch != nil {
		f.batches[start/3] = batch
	}

	// The next round must have started for the ingestion window to close.
	nextStart := (epoch + 1) * 1000
	if _, ok := f.rounds[epoch+1]; !ok {
		f.rounds[epoch+1] = &chain.RoundView{
			Epoch:          epoch + 1,
			StartTimestamp: nextStart,
		}
	}
}

func betEvent(epoch int64, sender, amount string, block uint64) chain.BetEvent {
	return chain.BetEvent{
		Epoch:       epoch,
		Sender:      sender,
		Amount:      decimal.RequireFromString(amount),
		TxHash:      fmt.Sprintf("0xbet-%d-%s-%d", epoch, sender, block),
		BlockNumber: block,
	}
}

func claimEvent(betEpoch int64, sender, amount string, block uint64) chain.ClaimEvent {
	return chain.ClaimEvent{
		Epoch:       betEpoch,
		Sender:      sender,
		Amount:      decimal.RequireFromString(amount),
		TxHash:      fmt.Sprintf("0xclaim-%d-%s-%d", betEpoch, sender, block),
		BlockNumber: block,
	}
}

// recordingBroadcaster captures broadcast messages for assertions
type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []interface{}
}

func (b *recordingBroadcaster) Broadcast(msg interface{}) (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return 1, 0
}

func (b *recordingBroadcaster) all() []interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]interface{}, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *recordingBroadcaster) ofType(discriminator string) []interface{} {
	var out []interface{}
	for _, msg := range b.all() {
		if messageType(msg) == discriminator {
			out = append(out, msg)
		}
	}
	return out
}

func messageType(msg interface{}) string {
	switch m := msg.(type) {
	case fanout.Welcome:
		return m.Type
	case fanout.NewBet:
		return m.Type
	case fanout.RoundUpdate:
		return m.Type
	case fanout.RoundLock:
		return m.Type
	case fanout.ConnectionStatus:
		return m.Type
	case fanout.SuspiciousActivity:
		return m.Type
	case fanout.Pong:
		return m.Type
	default:
		return ""
	}
}
