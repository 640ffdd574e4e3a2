package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prediction-scanner/internal/chain"
	"github.com/prediction-scanner/internal/config"
	"github.com/prediction-scanner/internal/detector"
	"github.com/prediction-scanner/internal/fanout"
	"github.com/prediction-scanner/internal/models"
	"github.com/prediction-scanner/internal/storage"
	"github.com/prediction-scanner/internal/types"
)

func newTestRealtime(t *testing.T, reader *fakeReader, store *storage.MockStore) (*Realtime, chan chain.Event, *recordingBroadcaster) {
	t.Helper()
	online, err := detector.NewOnline(config.DetectorConfig{
		LargeAmount:        "10",
		HighTotalCount:     100,
		HighFrequencyCount: 10,
		WindowSize:         60 * time.Second,
	}, store, nil)
	require.NoError(t, err)

	events := make(chan chain.Event, 16)
	hub := &recordingBroadcaster{}
	rt := NewRealtime(reader, events, store, online, hub)
	return rt, events, hub
}

// runUntilDrained drives Run until the event channel is closed
func runUntilDrained(t *testing.T, rt *Realtime, events chan chain.Event) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()
	close(events)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("realtime pipeline did not drain")
	}
}

func liveBet(epoch int64, wallet, amount string, bull bool) chain.Event {
	kind := chain.EventBetBull
	if !bull {
		kind = chain.EventBetBear
	}
	ev := betEvent(epoch, wallet, amount, 1)
	return chain.Event{Kind: kind, Bet: &ev}
}

func TestRealtime_InitialRoundUpdate(t *testing.T) {
	reader := newFakeReader(102)
	reader.mu.Lock()
	reader.rounds[102] = &chain.RoundView{Epoch: 102, StartTimestamp: 102000}
	reader.mu.Unlock()
	store := storage.NewMockStore()

	rt, events, hub := newTestRealtime(t, reader, store)
	runUntilDrained(t, rt, events)

	updates := hub.ofType(fanout.TypeRoundUpdate)
	require.Len(t, updates, 1)
	up := updates[0].(fanout.RoundUpdate)
	assert.Equal(t, int64(102), up.Epoch)
	assert.Equal(t, types.StatusBetting, up.Status)
}

func TestRealtime_DedupWarmRestore(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()
	require.NoError(t, store.InsertRealBet(context.Background(), &models.RealBet{
		Epoch: 102, WalletAddress: "0xaaa", BetDirection: types.DirectionUp,
		Amount: decimal.New(1, 0), BetTs: "2026-08-25 12:00:00",
	}))

	rt, events, hub := newTestRealtime(t, reader, store)
	events <- liveBet(102, "0xAAA", "2", true) // same key as the warmed row
	runUntilDrained(t, rt, events)

	assert.Empty(t, hub.ofType(fanout.TypeNewBet), "warmed duplicate must not broadcast")
	assert.Equal(t, 1, store.RealBetCount())
}

func TestRealtime_BetBroadcastAndPersist(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()

	rt, events, hub := newTestRealtime(t, reader, store)
	events <- liveBet(102, "0xAAA", "2.5", true)
	events <- liveBet(102, "0xbbb", "1", false)
	runUntilDrained(t, rt, events)

	msgs := hub.ofType(fanout.TypeNewBet)
	require.Len(t, msgs, 2)

	first := msgs[0].(fanout.NewBet)
	assert.Equal(t, "0xaaa", first.Wallet, "wallet lowercased on the wire")
	assert.Equal(t, types.DirectionUp, first.Direction)
	assert.Equal(t, "2.5", first.Amount)
	assert.False(t, first.Suspicious)

	second := msgs[1].(fanout.NewBet)
	assert.Equal(t, types.DirectionDown, second.Direction)

	assert.Equal(t, 2, store.RealBetCount())
}

func TestRealtime_DuplicateDroppedSilently(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()

	rt, events, hub := newTestRealtime(t, reader, store)
	events <- liveBet(102, "0xCCC", "1", true)
	events <- liveBet(102, "0xccc", "1", true)
	runUntilDrained(t, rt, events)

	assert.Len(t, hub.ofType(fanout.TypeNewBet), 1)
	assert.Equal(t, 1, store.RealBetCount())
}

func TestRealtime_BroadcastBeforePersist(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()

	rt, events, hub := newTestRealtime(t, reader, store)

	// The insert fails, the broadcast must still go out.
	store.FailWith = assert.AnError
	events <- liveBet(102, "0xaaa", "1", true)
	runUntilDrained(t, rt, events)

	assert.Len(t, hub.ofType(fanout.TypeNewBet), 1)
	assert.Equal(t, 0, store.RealBetCount())
}

func TestRealtime_SuspiciousBetAnnotated(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()

	rt, events, hub := newTestRealtime(t, reader, store)
	events <- liveBet(102, "0xaaa", "50", true) // above the large-amount threshold
	runUntilDrained(t, rt, events)

	msgs := hub.ofType(fanout.TypeNewBet)
	require.Len(t, msgs, 1)
	bet := msgs[0].(fanout.NewBet)
	assert.True(t, bet.Suspicious)
	assert.Contains(t, bet.Flags, types.FlagLargeAmount)

	alerts := hub.ofType(fanout.TypeSuspiciousActivity)
	require.Len(t, alerts, 1)
	alert := alerts[0].(fanout.SuspiciousActivity)
	assert.Equal(t, "0xaaa", alert.Wallet)
	assert.Equal(t, 1, alert.TotalBets)

	note, err := store.GetWalletNote(context.Background(), "0xaaa")
	require.NoError(t, err)
	assert.NotNil(t, note, "flagged wallet gets an auto note")
}

func TestRealtime_LockRoundPurgesDedup(t *testing.T) {
	reader := newFakeReader(102)
	reader.mu.Lock()
	reader.rounds[103] = &chain.RoundView{Epoch: 103, StartTimestamp: 103000}
	reader.mu.Unlock()
	store := storage.NewMockStore()

	rt, events, hub := newTestRealtime(t, reader, store)
	events <- liveBet(102, "0xaaa", "1", true)
	events <- chain.Event{Kind: chain.EventLockRound, Epoch: 102}
	// After the lock purge the same key broadcasts again.
	events <- liveBet(102, "0xaaa", "1", true)
	runUntilDrained(t, rt, events)

	assert.Len(t, hub.ofType(fanout.TypeNewBet), 2)
	require.Len(t, hub.ofType(fanout.TypeRoundLock), 1)

	// Lock also refreshes the next round's view.
	updates := hub.ofType(fanout.TypeRoundUpdate)
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1].(fanout.RoundUpdate)
	assert.Equal(t, int64(103), last.Epoch)
}

func TestRealtime_StartRoundSweepsHotTable(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()
	require.NoError(t, store.InsertRealBet(context.Background(), &models.RealBet{
		Epoch: 95, WalletAddress: "0xold", BetDirection: types.DirectionUp,
		Amount: decimal.New(1, 0), BetTs: "2026-08-25 12:00:00",
	}))

	rt, events, _ := newTestRealtime(t, reader, store)
	events <- chain.Event{Kind: chain.EventStartRound, Epoch: 103}
	runUntilDrained(t, rt, events)

	stale, err := store.CountRealBetsBefore(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, 0, stale)
}

func TestRealtime_ConnectionStatusForwarded(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()

	rt, events, hub := newTestRealtime(t, reader, store)
	events <- chain.Event{Kind: chain.EventConnection, Connected: false}
	events <- chain.Event{Kind: chain.EventConnection, Connected: true}
	runUntilDrained(t, rt, events)

	msgs := hub.ofType(fanout.TypeConnectionStatus)
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].(fanout.ConnectionStatus).Connected)
	assert.True(t, msgs[1].(fanout.ConnectionStatus).Connected)
}

func TestRealtime_DedupSweepExpiresEntries(t *testing.T) {
	reader := newFakeReader(102)
	store := storage.NewMockStore()

	rt, events, _ := newTestRealtime(t, reader, store)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	rt.now = func() time.Time { return now }

	events <- liveBet(102, "0xaaa", "1", true)
	runUntilDrained(t, rt, events)
	require.Equal(t, 1, rt.DedupSize())

	now = now.Add(2 * time.Hour)
	rt.sweepDedup()
	assert.Equal(t, 0, rt.DedupSize())
}
