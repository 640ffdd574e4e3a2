package pipeline

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prediction-scanner/internal/chain"
	"github.com/prediction-scanner/internal/detector"
	"github.com/prediction-scanner/internal/models"
	"github.com/prediction-scanner/internal/storage"
	"github.com/prediction-scanner/internal/types"
)

func newTestHistorical(reader *fakeReader, store *storage.MockStore) *Historical {
	return NewHistorical(reader, store, detector.NewOffline(store, 3))
}

func TestProcessEpoch_NormalClosedEpoch(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()
	h := newTestHistorical(reader, store)
	ctx := context.Background()

	startBlock := uint64(100 * 1000 / 3)
	reader.addClosedRound(100, "300.00000000", "301.50000000", "10", "6", "4", &chain.EventBatch{
		BetBulls: []chain.BetEvent{betEvent(100, "0xAAA", "6", startBlock+10)},
		BetBears: []chain.BetEvent{betEvent(100, "0xBBB", "4", startBlock+20)},
		Claims:   []chain.ClaimEvent{claimEvent(100, "0xAAA", "5.82", startBlock+90)},
	})

	report, err := h.ProcessEpoch(ctx, 100)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 2, report.Bets)
	assert.Equal(t, 1, report.Claims)

	round, err := store.GetRound(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, round)
	assert.Equal(t, types.ResultUp, round.Result)
	assert.True(t, round.UpPayout.Equal(decimal.RequireFromString("1.6167")),
		"up payout was %s", round.UpPayout)

	bets, err := store.CountHisBetsForEpoch(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, bets)

	claims, err := store.ClaimsForEpoch(ctx, 100)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, int64(100), claims[0].Epoch)
	assert.Equal(t, int64(100), claims[0].BetEpoch)
	assert.Equal(t, "0xaaa", claims[0].WalletAddress)
}

func TestProcessEpoch_LateClaimKeepsProvenance(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()
	h := newTestHistorical(reader, store)
	ctx := context.Background()

	startBlock := uint64(100 * 1000 / 3)
	// A claim landing in epoch 100's window but paying out epoch 95.
	reader.addClosedRound(100, "300", "301", "10", "6", "4", &chain.EventBatch{
		BetBulls: []chain.BetEvent{betEvent(100, "0xaaa", "6", startBlock+10)},
		BetBears: []chain.BetEvent{betEvent(100, "0xbbb", "4", startBlock+20)},
		Claims:   []chain.ClaimEvent{claimEvent(95, "0xccc", "3.1", startBlock+50)},
	})

	_, err := h.ProcessEpoch(ctx, 100)
	require.NoError(t, err)

	claims, err := store.ClaimsForEpoch(ctx, 100)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, int64(100), claims[0].Epoch, "processing epoch")
	assert.Equal(t, int64(95), claims[0].BetEpoch, "payout provenance")
}

func TestProcessEpoch_DrawEpoch(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()
	h := newTestHistorical(reader, store)
	ctx := context.Background()

	startBlock := uint64(100 * 1000 / 3)
	reader.addClosedRound(100, "300", "300", "10", "6", "4", &chain.EventBatch{
		BetBulls: []chain.BetEvent{betEvent(100, "0xaaa", "6", startBlock+10)},
		BetBears: []chain.BetEvent{betEvent(100, "0xbbb", "4", startBlock+20)},
	})

	_, err := h.ProcessEpoch(ctx, 100)
	require.NoError(t, err)

	round, err := store.GetRound(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, round)
	assert.Equal(t, types.ResultNone, round.Result)

	mcs, err := store.MultiClaimsForEpoch(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, mcs)
}

func TestProcessEpoch_OneSidedThreeStrikes(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()
	h := newTestHistorical(reader, store)
	ctx := context.Background()

	startBlock := uint64(100 * 1000 / 3)
	reader.addClosedRound(100, "300", "301", "6", "6", "0", &chain.EventBatch{
		BetBulls: []chain.BetEvent{betEvent(100, "0xaaa", "6", startBlock+10)},
	})

	for i := 0; i < 3; i++ {
		_, err := h.ProcessEpoch(ctx, 100)
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.CodeIntegrityCheckFailed))

		round, err := store.GetRound(ctx, 100)
		require.NoError(t, err)
		assert.Nil(t, round, "no partial round may remain")
	}

	fe, err := store.GetFailedEpoch(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, fe)
	assert.Equal(t, 3, fe.FailureCount)

	// The quarantined epoch now skips without touching the chain.
	report, err := h.ProcessEpoch(ctx, 100)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, "quarantined", report.Reason)
}

func TestProcessEpoch_SkipRules(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()
	h := newTestHistorical(reader, store)
	ctx := context.Background()

	t.Run("round not closed", func(t *testing.T) {
		reader.mu.Lock()
		reader.rounds[50] = &chain.RoundView{Epoch: 50, StartTimestamp: 50000}
		reader.mu.Unlock()

		report, err := h.ProcessEpoch(ctx, 50)
		require.NoError(t, err)
		assert.True(t, report.Skipped)
		assert.Equal(t, "round not closed", report.Reason)
	})

	t.Run("next round not started", func(t *testing.T) {
		reader.mu.Lock()
		reader.rounds[60] = &chain.RoundView{
			Epoch: 60, StartTimestamp: 60000, LockTimestamp: 60300, CloseTimestamp: 60600,
		}
		delete(reader.rounds, 61)
		reader.mu.Unlock()

		report, err := h.ProcessEpoch(ctx, 60)
		require.NoError(t, err)
		assert.True(t, report.Skipped)
		assert.Equal(t, "next round not started", report.Reason)
	})

	t.Run("already stored", func(t *testing.T) {
		startBlock := uint64(100 * 1000 / 3)
		reader.addClosedRound(100, "300", "301", "10", "6", "4", &chain.EventBatch{
			BetBulls: []chain.BetEvent{betEvent(100, "0xaaa", "6", startBlock+10)},
			BetBears: []chain.BetEvent{betEvent(100, "0xbbb", "4", startBlock+20)},
		})

		_, err := h.ProcessEpoch(ctx, 100)
		require.NoError(t, err)

		report, err := h.ProcessEpoch(ctx, 100)
		require.NoError(t, err)
		assert.True(t, report.Skipped)
		assert.Equal(t, "already stored", report.Reason)
	})
}

func TestProcessEpoch_Idempotent(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()
	h := newTestHistorical(reader, store)
	ctx := context.Background()

	startBlock := uint64(100 * 1000 / 3)
	reader.addClosedRound(100, "300", "301", "10", "6", "4", &chain.EventBatch{
		BetBulls: []chain.BetEvent{betEvent(100, "0xaaa", "6", startBlock+10)},
		BetBears: []chain.BetEvent{betEvent(100, "0xbbb", "4", startBlock+20)},
	})

	_, err := h.ProcessEpoch(ctx, 100)
	require.NoError(t, err)
	betsBefore, _ := store.CountHisBetsForEpoch(ctx, 100)

	// Force a reprocess by deleting only the round row; the bets re-upsert
	// on the same tx hashes.
	require.NoError(t, store.DeleteEpochData(ctx, 100))
	_, err = h.ProcessEpoch(ctx, 100)
	require.NoError(t, err)

	betsAfter, _ := store.CountHisBetsForEpoch(ctx, 100)
	assert.Equal(t, betsBefore, betsAfter)
}

func TestProcessEpoch_CleansHotTable(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()
	h := newTestHistorical(reader, store)
	ctx := context.Background()

	seedRealBet := func(epoch int64, wallet string) {
		require.NoError(t, store.InsertRealBet(ctx, &models.RealBet{
			Epoch: epoch, WalletAddress: wallet, BetDirection: types.DirectionUp,
			Amount: decimal.New(1, 0), BetTs: "2026-08-25 12:00:00",
		}))
	}
	seedRealBet(100, "0xaaa")
	seedRealBet(97, "0xold") // below currentEpoch-2 = 100
	seedRealBet(101, "0xnew")

	startBlock := uint64(100 * 1000 / 3)
	reader.addClosedRound(100, "300", "301", "10", "6", "4", &chain.EventBatch{
		BetBulls: []chain.BetEvent{betEvent(100, "0xaaa", "6", startBlock+10)},
		BetBears: []chain.BetEvent{betEvent(100, "0xbbb", "4", startBlock+20)},
	})

	_, err := h.ProcessEpoch(ctx, 100)
	require.NoError(t, err)

	stale, err := store.CountRealBetsBefore(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, stale)
	assert.Equal(t, 1, store.RealBetCount(), "only the live epoch survives")
}

func TestProcessRange_Reports(t *testing.T) {
	reader := newFakeReader(105)
	store := storage.NewMockStore()
	h := newTestHistorical(reader, store)
	ctx := context.Background()

	for epoch := int64(100); epoch <= 102; epoch++ {
		startBlock := uint64(epoch * 1000 / 3)
		reader.addClosedRound(epoch, "300", "301", "10", "6", "4", &chain.EventBatch{
			BetBulls: []chain.BetEvent{betEvent(epoch, "0xaaa", "6", startBlock+10)},
			BetBears: []chain.BetEvent{betEvent(epoch, "0xbbb", "4", startBlock+20)},
		})
	}

	reports := h.ProcessRange(ctx, 100, 103)
	require.Len(t, reports, 4)

	for i := 0; i < 3; i++ {
		assert.False(t, reports[i].Skipped, "epoch %d", reports[i].Epoch)
		assert.Equal(t, 2, reports[i].Bets)
	}
	// Epoch 103 exists on-chain only as the bound of 102's window; it has
	// not closed.
	assert.True(t, reports[3].Skipped)
}
