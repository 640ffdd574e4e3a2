// Package detector flags suspected abusive wallets. The online detector sits
// in the realtime hot path and inspects each live bet; the offline detector
// runs after an epoch commit and inspects the epoch's claim set.
package detector

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/prediction-scanner/internal/config"
	"github.com/prediction-scanner/internal/models"
	"github.com/prediction-scanner/internal/storage"
	"github.com/prediction-scanner/internal/timeutil"
	"github.com/prediction-scanner/internal/types"
)

// walletIdleTTL bounds detector memory: wallets with no bet for this long are
// evicted by the hourly sweep, resetting their cumulative counters.
const walletIdleTTL = 24 * time.Hour

const sweepInterval = time.Hour

// Result is what the online detector reports back to the realtime pipeline
// for fan-out annotation.
type Result struct {
	Flags       []types.SuspicionFlag
	TotalBets   int
	TotalAmount decimal.Decimal
}

// Suspicious reports whether any flag fired
func (r Result) Suspicious() bool {
	return len(r.Flags) > 0
}

// timeRing is a fixed-capacity ring of recent bet times. Capacity is one more
// than the frequency threshold: that is exactly enough to decide "more than N
// bets inside the window".
type timeRing struct {
	buf  []time.Time
	head int
	n    int
}

func newTimeRing(capacity int) *timeRing {
	return &timeRing{buf: make([]time.Time, capacity)}
}

func (r *timeRing) push(t time.Time) {
	r.buf[r.head] = t
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// countSince reports how many stored times are at or after cutoff
func (r *timeRing) countSince(cutoff time.Time) int {
	count := 0
	for i := 0; i < r.n; i++ {
		idx := (r.head - 1 - i + len(r.buf)) % len(r.buf)
		if r.buf[idx].Before(cutoff) {
			break // entries are ordered newest-first from head
		}
		count++
	}
	return count
}

// dropBefore removes entries older than cutoff
func (r *timeRing) dropBefore(cutoff time.Time) {
	kept := r.countSince(cutoff)
	r.n = kept
}

type walletState struct {
	totalBets   int
	totalAmount decimal.Decimal
	recent      *timeRing
	perEpoch    map[int64]int
	lastSeen    time.Time
}

// Online is the per-live-bet detector. State is process-local and bounded;
// it is not persisted across restarts.
type Online struct {
	mu      sync.Mutex
	wallets map[string]*walletState

	largeAmount   decimal.Decimal
	highTotal     int
	highFrequency int
	window        time.Duration

	store storage.Store
	cache *storage.NoteCache // optional, nil when Redis is unconfigured

	now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewOnline creates the online detector. cache may be nil.
func NewOnline(cfg config.DetectorConfig, store storage.Store, cache *storage.NoteCache) (*Online, error) {
	largeAmount, err := decimal.NewFromString(cfg.LargeAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid large-amount threshold %q: %w", cfg.LargeAmount, err)
	}
	return &Online{
		wallets:       make(map[string]*walletState),
		largeAmount:   largeAmount,
		highTotal:     cfg.HighTotalCount,
		highFrequency: cfg.HighFrequencyCount,
		window:        cfg.WindowSize,
		store:         store,
		cache:         cache,
		now:           time.Now,
	}, nil
}

// Inspect evaluates one live bet against all four flags and returns the flag
// list with the wallet's running totals. The first flag ever seen for a
// wallet also writes an auto note.
func (d *Online) Inspect(ctx context.Context, bet *models.RealBet) Result {
	wallet := models.NormalizeWallet(bet.WalletAddress)
	now := d.now()

	d.mu.Lock()
	st, ok := d.wallets[wallet]
	if !ok {
		st = &walletState{
			totalAmount: decimal.Zero,
			recent:      newTimeRing(d.highFrequency + 1),
			perEpoch:    make(map[int64]int),
		}
		d.wallets[wallet] = st
	}

	st.totalBets++
	st.totalAmount = st.totalAmount.Add(bet.Amount)
	st.recent.push(now)
	st.perEpoch[bet.Epoch]++
	st.lastSeen = now

	var flags []types.SuspicionFlag
	if bet.Amount.GreaterThan(d.largeAmount) {
		flags = append(flags, types.FlagLargeAmount)
	}
	if st.totalBets > d.highTotal {
		flags = append(flags, types.FlagHighTotal)
	}
	if st.recent.countSince(now.Add(-d.window)) > d.highFrequency {
		flags = append(flags, types.FlagHighFrequency)
	}
	if st.perEpoch[bet.Epoch] >= 2 {
		flags = append(flags, types.FlagRepeatInRound)
	}

	res := Result{Flags: flags, TotalBets: st.totalBets, TotalAmount: st.totalAmount}
	d.mu.Unlock()

	if len(flags) > 0 {
		d.noteWallet(ctx, wallet, bet, flags)
	}
	return res
}

// noteWallet upserts an auto note the first time a wallet trips any flag.
// The note cache avoids a store read per flagged bet.
func (d *Online) noteWallet(ctx context.Context, wallet string, bet *models.RealBet, flags []types.SuspicionFlag) {
	if d.cache != nil {
		if hasNote, known := d.cache.HasNote(ctx, wallet); known && hasNote {
			return
		}
	}

	existing, err := d.store.GetWalletNote(ctx, wallet)
	if err != nil {
		log.Printf("[Detector] wallet note lookup failed for %s: %v", wallet, err)
		return
	}
	if existing != nil {
		if d.cache != nil {
			d.cache.SetHasNote(ctx, wallet, true)
		}
		return
	}

	note := &models.WalletNote{
		WalletAddress: wallet,
		Note: fmt.Sprintf("auto: flagged %v at epoch %d (amount %s)",
			flags, bet.Epoch, bet.Amount.String()),
	}
	if err := d.store.UpsertWalletNote(ctx, note); err != nil {
		log.Printf("[Detector] wallet note upsert failed for %s: %v", wallet, err)
		return
	}
	if d.cache != nil {
		d.cache.SetHasNote(ctx, wallet, true)
	}
}

// PurgeEpoch drops the per-epoch counters of a locked epoch
func (d *Online) PurgeEpoch(epoch int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, st := range d.wallets {
		delete(st.perEpoch, epoch)
	}
}

// Sweep evicts window-expired entries and idle wallets. Called hourly by the
// background loop; exported for tests.
func (d *Online) Sweep() {
	now := d.now()
	cutoff := now.Add(-d.window)

	d.mu.Lock()
	defer d.mu.Unlock()
	for wallet, st := range d.wallets {
		if now.Sub(st.lastSeen) > walletIdleTTL {
			delete(d.wallets, wallet)
			continue
		}
		st.recent.dropBefore(cutoff)
	}
}

// WalletCount reports the tracked wallet count, for tests and logging
func (d *Online) WalletCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.wallets)
}

// Start launches the hourly sweep loop
func (d *Online) Start() {
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.sweepLoop()
}

// Stop terminates the sweep loop and waits for it to exit
func (d *Online) Stop() {
	if d.stopCh == nil {
		return
	}
	close(d.stopCh)
	<-d.doneCh
}

func (d *Online) sweepLoop() {
	defer close(d.doneCh)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			before := d.WalletCount()
			d.Sweep()
			log.Printf("[Detector] sweep done at %s: %d -> %d wallets",
				timeutil.Now(), before, d.WalletCount())
		}
	}
}
