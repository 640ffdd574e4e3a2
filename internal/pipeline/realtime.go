package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prediction-scanner/internal/chain"
	"github.com/prediction-scanner/internal/detector"
	"github.com/prediction-scanner/internal/fanout"
	"github.com/prediction-scanner/internal/models"
	"github.com/prediction-scanner/internal/storage"
	"github.com/prediction-scanner/internal/timeutil"
	"github.com/prediction-scanner/internal/types"
)

const (
	// dedupWarmLimit is how many recent hot-table rows seed the dedup set on
	// startup, so a restart does not re-broadcast bets already seen.
	dedupWarmLimit = 1000

	// dedupTTL is the fallback expiry for dedup entries; lock-time purges
	// normally clear them first.
	dedupTTL = time.Hour

	dedupSweepInterval = time.Hour
)

type dedupKey struct {
	epoch  int64
	wallet string
}

// Broadcaster is the fan-out surface the pipeline needs. fanout.Hub is the
// production implementation; tests substitute a recorder.
type Broadcaster interface {
	Broadcast(msg interface{}) (sent, failed int)
}

// Realtime consumes the live event stream: per-bet dedup, online detection,
// broadcast-first persistence, and round lifecycle fan-out.
type Realtime struct {
	chain  chain.Reader
	events <-chan chain.Event
	store  storage.Store
	online *detector.Online
	hub    Broadcaster

	mu           sync.Mutex
	dedup        map[dedupKey]time.Time
	currentEpoch int64

	now func() time.Time
}

// NewRealtime wires the realtime pipeline. events is the push-surface stream
// (a Subscriber's Events channel in production, a plain channel in tests).
func NewRealtime(reader chain.Reader, events <-chan chain.Event, store storage.Store, online *detector.Online, hub Broadcaster) *Realtime {
	return &Realtime{
		chain:  reader,
		events: events,
		store:  store,
		online: online,
		hub:    hub,
		dedup:  make(map[dedupKey]time.Time),
		now:    time.Now,
	}
}

// Run initializes the live view and consumes events until the stream closes
// or the context is cancelled.
func (r *Realtime) Run(ctx context.Context) error {
	if err := r.initialize(ctx); err != nil {
		return err
	}

	sweep := time.NewTicker(dedupSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep.C:
			r.sweepDedup()
		case ev, ok := <-r.events:
			if !ok {
				return nil
			}
			r.handle(ctx, ev)
		}
	}
}

// initialize broadcasts the opening round view and warms the dedup set from
// the most recent hot-table rows.
func (r *Realtime) initialize(ctx context.Context) error {
	current, err := r.chain.CurrentEpoch(ctx)
	if err != nil {
		return fmt.Errorf("read current epoch: %w", err)
	}
	r.mu.Lock()
	r.currentEpoch = current
	r.mu.Unlock()

	if err := r.broadcastRoundUpdate(ctx, current); err != nil {
		log.Printf("[Realtime] initial round update failed: %v", err)
	}

	recent, err := r.store.RecentRealBets(ctx, dedupWarmLimit)
	if err != nil {
		log.Printf("[Realtime] dedup warm-up failed: %v", err)
		return nil
	}
	now := r.now()
	r.mu.Lock()
	for _, bet := range recent {
		key := dedupKey{epoch: bet.Epoch, wallet: models.NormalizeWallet(bet.WalletAddress)}
		r.dedup[key] = now
	}
	warmed := len(r.dedup)
	r.mu.Unlock()
	log.Printf("[Realtime] started at epoch %d, dedup warmed with %d entries", current, warmed)
	return nil
}

func (r *Realtime) handle(ctx context.Context, ev chain.Event) {
	switch ev.Kind {
	case chain.EventBetBull:
		r.handleBet(ctx, ev.Bet, types.DirectionUp)
	case chain.EventBetBear:
		r.handleBet(ctx, ev.Bet, types.DirectionDown)
	case chain.EventStartRound:
		r.handleStartRound(ctx, ev.Epoch)
	case chain.EventLockRound:
		r.handleLockRound(ctx, ev.Epoch)
	case chain.EventConnection:
		r.hub.Broadcast(fanout.NewConnectionStatus(ev.Connected))
	default:
		log.Printf("[Realtime] unknown event kind %q", ev.Kind)
	}
}

// handleBet runs the per-bet hot path: dedup, record construction, online
// detection, broadcast, then persistence. Broadcast deliberately comes
// before the insert; a persistence failure is logged but never delays or
// suppresses the live message.
func (r *Realtime) handleBet(ctx context.Context, ev *chain.BetEvent, direction types.Direction) {
	if ev == nil {
		return
	}
	if !direction.Valid() {
		log.Printf("[Realtime] rejected bet with invalid direction %q", direction)
		return
	}

	wallet := models.NormalizeWallet(ev.Sender)
	key := dedupKey{epoch: ev.Epoch, wallet: wallet}

	r.mu.Lock()
	if _, seen := r.dedup[key]; seen {
		r.mu.Unlock()
		return // duplicate, drop silently
	}
	r.dedup[key] = r.now()
	r.mu.Unlock()

	bet := &models.RealBet{
		Epoch:         ev.Epoch,
		BetTs:         timeutil.Now(),
		WalletAddress: wallet,
		BetDirection:  direction,
		Amount:        ev.Amount,
	}

	res := r.online.Inspect(ctx, bet)

	msg := fanout.NewBet{
		Type:       fanout.TypeNewBet,
		Wallet:     wallet,
		Epoch:      bet.Epoch,
		Direction:  direction,
		Amount:     fanout.FormatAmount(bet.Amount),
		Timestamp:  bet.BetTs,
		Suspicious: res.Suspicious(),
		Flags:      res.Flags,
	}
	r.hub.Broadcast(msg)

	if res.Suspicious() {
		r.hub.Broadcast(fanout.SuspiciousActivity{
			Type:        fanout.TypeSuspiciousActivity,
			Wallet:      wallet,
			Epoch:       bet.Epoch,
			Direction:   direction,
			Amount:      fanout.FormatAmount(bet.Amount),
			Flags:       res.Flags,
			TotalBets:   res.TotalBets,
			TotalAmount: fanout.FormatAmount(res.TotalAmount),
			Timestamp:   bet.BetTs,
		})
	}

	if err := r.store.InsertRealBet(ctx, bet); err != nil {
		log.Printf("[Realtime] realbet persist failed for (%d, %s): %v", bet.Epoch, wallet, err)
	}
}

// handleStartRound refreshes the live view and sweeps the hot table
func (r *Realtime) handleStartRound(ctx context.Context, epoch int64) {
	r.mu.Lock()
	if epoch > r.currentEpoch {
		r.currentEpoch = epoch
	}
	current := r.currentEpoch
	r.mu.Unlock()

	log.Printf("[Realtime] round %d started", epoch)
	if err := r.broadcastRoundUpdate(ctx, epoch); err != nil {
		log.Printf("[Realtime] round update for %d failed: %v", epoch, err)
	}
	if err := r.store.DeleteRealBetsBefore(ctx, current-realbetKeepEpochs); err != nil {
		log.Printf("[Realtime] realbet sweep failed: %v", err)
	}
}

// handleLockRound announces the lock, refreshes the next round (now the
// target for new bets) and purges the locked epoch's dedup entries.
func (r *Realtime) handleLockRound(ctx context.Context, epoch int64) {
	log.Printf("[Realtime] round %d locked", epoch)
	r.hub.Broadcast(fanout.NewRoundLock(epoch))

	if err := r.broadcastRoundUpdate(ctx, epoch+1); err != nil {
		log.Printf("[Realtime] round update for %d failed: %v", epoch+1, err)
	}

	r.mu.Lock()
	for key := range r.dedup {
		if key.epoch == epoch {
			delete(r.dedup, key)
		}
	}
	r.mu.Unlock()
	r.online.PurgeEpoch(epoch)
}

// broadcastRoundUpdate reads the round view and fans out the derived status
func (r *Realtime) broadcastRoundUpdate(ctx context.Context, epoch int64) error {
	view, err := r.chain.Round(ctx, epoch)
	if err != nil {
		return err
	}

	r.hub.Broadcast(fanout.RoundUpdate{
		Type:           fanout.TypeRoundUpdate,
		Epoch:          epoch,
		Status:         roundStatus(view),
		StartTimestamp: view.StartTimestamp,
		LockTimestamp:  view.LockTimestamp,
		CloseTimestamp: view.CloseTimestamp,
		LockPrice:      fanout.FormatAmount(view.LockPrice),
		ClosePrice:     fanout.FormatAmount(view.ClosePrice),
		TotalAmount:    fanout.FormatAmount(view.TotalAmount),
		BullAmount:     fanout.FormatAmount(view.BullAmount),
		BearAmount:     fanout.FormatAmount(view.BearAmount),
		Timestamp:      timeutil.Now(),
	})
	return nil
}

// roundStatus derives the lifecycle phase. The scheduled timestamps mark the
// round as started; the oracle prices mark the lock and close transitions,
// since they are only written when those moments actually happen on-chain.
func roundStatus(view *chain.RoundView) types.RoundStatus {
	switch {
	case view.StartTimestamp == 0:
		return types.StatusPending
	case view.CloseTimestamp != 0 && !view.ClosePrice.IsZero():
		return types.StatusEnded
	case view.LockTimestamp != 0 && !view.LockPrice.IsZero():
		return types.StatusLocked
	default:
		return types.StatusBetting
	}
}

// sweepDedup drops entries older than the TTL; normally redundant because
// lock-time purges cover it.
func (r *Realtime) sweepDedup() {
	cutoff := r.now().Add(-dedupTTL)
	r.mu.Lock()
	before := len(r.dedup)
	for key, at := range r.dedup {
		if at.Before(cutoff) {
			delete(r.dedup, key)
		}
	}
	after := len(r.dedup)
	r.mu.Unlock()
	if before != after {
		log.Printf("[Realtime] dedup sweep: %d -> %d entries", before, after)
	}
}

// DedupSize reports the dedup set size, for tests
func (r *Realtime) DedupSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dedup)
}
