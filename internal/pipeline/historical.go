// Package pipeline contains the two ingestion pipelines: the historical
// backfill over closed epochs and the realtime subscriber over live events.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prediction-scanner/internal/chain"
	"github.com/prediction-scanner/internal/detector"
	"github.com/prediction-scanner/internal/models"
	"github.com/prediction-scanner/internal/storage"
	"github.com/prediction-scanner/internal/timeutil"
	"github.com/prediction-scanner/internal/types"
)

const (
	// maxEpochFailures quarantines an epoch after this many integrity strikes
	maxEpochFailures = 3

	// realbetKeepEpochs bounds the hot table to the most recent epochs
	realbetKeepEpochs = 2

	defaultPace         = 2 * time.Second
	defaultSideInterval = 5 * time.Minute
	defaultDrainTimeout = 60 * time.Second
	defaultSettleDelay  = 3 * time.Second
	defaultRestartDelay = 5 * time.Second

	// sideWindow is how many epochs behind currentEpoch-2 the side worker
	// re-scans.
	sideWindow = 4
)

// EpochReport summarizes one epoch's processing, used by range mode
type EpochReport struct {
	Epoch   int64
	Bets    int
	Claims  int
	Skipped bool
	Reason  string
}

// Historical is the backfill pipeline: a main worker backtracking from the
// live tip and a side worker re-scanning the recent window.
type Historical struct {
	chain   chain.Reader
	store   storage.Store
	offline *detector.Offline

	pace         time.Duration
	sideInterval time.Duration
	drainTimeout time.Duration
	settleDelay  time.Duration
	restartDelay time.Duration

	mu         sync.Mutex
	mainStopCh chan struct{}
	mainDoneCh chan struct{}
	sideStopCh chan struct{}
	sideDoneCh chan struct{}
}

// NewHistorical wires the backfill pipeline
func NewHistorical(reader chain.Reader, store storage.Store, offline *detector.Offline) *Historical {
	return &Historical{
		chain:        reader,
		store:        store,
		offline:      offline,
		pace:         defaultPace,
		sideInterval: defaultSideInterval,
		drainTimeout: defaultDrainTimeout,
		settleDelay:  defaultSettleDelay,
		restartDelay: defaultRestartDelay,
	}
}

// ProcessEpoch runs the full per-epoch sequence for one closed epoch:
// skip checks, ingestion-window resolution, parallel event fetch, assembly,
// integrity check, atomic commit, hot-table cleanup and offline detection.
func (h *Historical) ProcessEpoch(ctx context.Context, epoch int64) (*EpochReport, error) {
	report := &EpochReport{Epoch: epoch}

	// Quarantined epochs stay quarantined.
	fe, err := h.store.GetFailedEpoch(ctx, epoch)
	if err != nil {
		return report, err
	}
	if fe != nil && fe.FailureCount >= maxEpochFailures {
		report.Skipped = true
		report.Reason = "quarantined"
		return report, nil
	}

	existing, err := h.store.GetRound(ctx, epoch)
	if err != nil {
		return report, err
	}
	if existing != nil {
		report.Skipped = true
		report.Reason = "already stored"
		return report, nil
	}

	view, err := h.chain.Round(ctx, epoch)
	if err != nil {
		return report, err
	}
	if !view.Closed() {
		report.Skipped = true
		report.Reason = "round not closed"
		return report, nil
	}

	// The ingestion window runs from the start of this epoch to the start of
	// the next one, so late bets and payouts land in exactly one epoch. The
	// window cannot be bounded until the next round has started.
	next, err := h.chain.Round(ctx, epoch+1)
	if err != nil {
		return report, err
	}
	if !next.Started() {
		report.Skipped = true
		report.Reason = "next round not started"
		return report, nil
	}

	fromBlock, err := h.chain.SearchBlockByTime(ctx, view.StartTimestamp)
	if err != nil {
		return report, err
	}
	toBlock, err := h.chain.SearchBlockByTime(ctx, next.StartTimestamp)
	if err != nil {
		return report, err
	}

	batch, err := h.chain.FilterEvents(ctx, fromBlock, toBlock)
	if err != nil {
		return report, err
	}

	round, bets, claims, err := h.assemble(ctx, epoch, view, batch)
	if err != nil {
		return report, err
	}
	report.Bets = len(bets)
	report.Claims = len(claims)

	if err := h.checkIntegrity(round, batch); err != nil {
		return report, h.recordFailure(ctx, epoch, err)
	}

	if err := h.store.CommitEpoch(ctx, round, bets, claims); err != nil {
		return report, err
	}
	log.Printf("[Historical] committed epoch %d: %d bets, %d claims, result=%s",
		epoch, len(bets), len(claims), round.Result)

	h.cleanupRealBets(ctx, epoch)

	if _, err := h.offline.DetectEpoch(ctx, epoch); err != nil {
		log.Printf("[Historical] offline detection for epoch %d failed: %v", epoch, err)
	}
	return report, nil
}

// assemble turns the chain views and raw events into persistable rows
func (h *Historical) assemble(ctx context.Context, epoch int64, view *chain.RoundView, batch *chain.EventBatch) (*models.Round, []models.HisBet, []models.Claim, error) {
	round := &models.Round{
		Epoch:       epoch,
		LockPrice:   view.LockPrice,
		ClosePrice:  view.ClosePrice,
		TotalAmount: view.TotalAmount,
		UpAmount:    view.BullAmount,
		DownAmount:  view.BearAmount,
	}
	round.StartTs = timeutil.FromUnix(view.StartTimestamp)
	round.LockTs = timeutil.FromUnix(view.LockTimestamp)
	round.CloseTs = timeutil.FromUnix(view.CloseTimestamp)
	round.ResolveResult()
	round.ComputePayouts()

	blockTimes := newBlockTimeCache(h.chain)

	outcome := func(dir types.Direction) types.BetOutcome {
		switch round.Result {
		case types.ResultNone:
			return types.OutcomeNone
		case types.RoundResult(dir):
			return types.OutcomeWin
		default:
			return types.OutcomeLoss
		}
	}

	var bets []models.HisBet
	appendBets := func(events []chain.BetEvent, dir types.Direction) error {
		for _, ev := range events {
			ts, err := blockTimes.canonical(ctx, ev.BlockNumber)
			if err != nil {
				return err
			}
			bets = append(bets, models.HisBet{
				Epoch:         epoch,
				BetTs:         ts,
				WalletAddress: models.NormalizeWallet(ev.Sender),
				BetDirection:  dir,
				Amount:        ev.Amount,
				Result:        outcome(dir),
				TxHash:        ev.TxHash,
			})
		}
		return nil
	}
	if err := appendBets(batch.BetBulls, types.DirectionUp); err != nil {
		return nil, nil, nil, err
	}
	if err := appendBets(batch.BetBears, types.DirectionDown); err != nil {
		return nil, nil, nil, err
	}

	var claims []models.Claim
	for _, ev := range batch.Claims {
		ts, err := blockTimes.canonical(ctx, ev.BlockNumber)
		if err != nil {
			return nil, nil, nil, err
		}
		claims = append(claims, models.Claim{
			// Epoch is the processing epoch (when the payout landed);
			// BetEpoch is the epoch the reward is for. They differ when a
			// wallet claims old rounds late.
			Epoch:         epoch,
			ClaimTs:       ts,
			WalletAddress: models.NormalizeWallet(ev.Sender),
			ClaimAmount:   ev.Amount,
			BetEpoch:      ev.Epoch,
			TxHash:        ev.TxHash,
		})
	}

	return round, bets, claims, nil
}

// checkIntegrity validates the assembled epoch: the round must be closed and
// both sides of the book must have bets. Claims may legitimately be empty.
func (h *Historical) checkIntegrity(round *models.Round, batch *chain.EventBatch) error {
	var reason string
	switch {
	case round.CloseTs == "":
		reason = "round close time missing"
	case len(batch.BetBulls) == 0:
		reason = "no UP bets"
	case len(batch.BetBears) == 0:
		reason = "no DOWN bets"
	default:
		return nil
	}
	return &types.ServiceError{
		Code:    types.CodeIntegrityCheckFailed,
		Message: fmt.Sprintf("epoch %d integrity check failed: %s", round.Epoch, reason),
	}
}

// recordFailure deletes the partial row set and increments the strike
// counter; the third strike quarantines the epoch.
func (h *Historical) recordFailure(ctx context.Context, epoch int64, cause error) error {
	if err := h.store.DeleteEpochData(ctx, epoch); err != nil {
		log.Printf("[Historical] partial cleanup for epoch %d failed: %v", epoch, err)
	}
	count, err := h.store.RecordEpochFailure(ctx, epoch, cause.Error())
	if err != nil {
		log.Printf("[Historical] failure record for epoch %d failed: %v", epoch, err)
		return cause
	}
	if count >= maxEpochFailures {
		log.Printf("[Historical] epoch %d quarantined after %d failures: %v", epoch, count, cause)
	} else {
		log.Printf("[Historical] epoch %d failure %d/%d: %v", epoch, count, maxEpochFailures, cause)
	}
	return cause
}

// cleanupRealBets wipes the committed epoch from the hot table and sweeps
// rows older than the keep window. Best effort; failures only log.
func (h *Historical) cleanupRealBets(ctx context.Context, epoch int64) {
	if err := h.store.DeleteRealBetsForEpoch(ctx, epoch); err != nil {
		log.Printf("[Historical] realbet cleanup for epoch %d failed: %v", epoch, err)
	}
	current, err := h.chain.CurrentEpoch(ctx)
	if err != nil {
		log.Printf("[Historical] realbet sweep skipped, current epoch unavailable: %v", err)
		return
	}
	if err := h.store.DeleteRealBetsBefore(ctx, current-realbetKeepEpochs); err != nil {
		log.Printf("[Historical] realbet sweep failed: %v", err)
	}
}

// ProcessRange runs per-epoch processing over a closed interval, for the
// on-demand backfill mode. Errors are reported per epoch, not fatal.
func (h *Historical) ProcessRange(ctx context.Context, from, to int64) []EpochReport {
	if from > to {
		from, to = to, from
	}
	reports := make([]EpochReport, 0, to-from+1)
	for epoch := from; epoch <= to; epoch++ {
		if ctx.Err() != nil {
			break
		}
		report, err := h.ProcessEpoch(ctx, epoch)
		if err != nil {
			report.Reason = err.Error()
			log.Printf("[Historical] range: epoch %d failed: %v", epoch, err)
		}
		reports = append(reports, *report)
	}
	return reports
}

// Start launches the main backfill worker and the side recent-scan worker
func (h *Historical) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startMainLocked(ctx)
	h.startSideLocked(ctx)
}

func (h *Historical) startMainLocked(ctx context.Context) {
	h.mainStopCh = make(chan struct{})
	h.mainDoneCh = make(chan struct{})
	go h.runMain(ctx, h.mainStopCh, h.mainDoneCh)
}

func (h *Historical) startSideLocked(ctx context.Context) {
	h.sideStopCh = make(chan struct{})
	h.sideDoneCh = make(chan struct{})
	go h.runSide(ctx, h.sideStopCh, h.sideDoneCh)
}

// Stop signals both workers and waits for them to finish their current epoch
func (h *Historical) Stop() {
	h.mu.Lock()
	mainStop, mainDone := h.mainStopCh, h.mainDoneCh
	sideStop, sideDone := h.sideStopCh, h.sideDoneCh
	h.mainStopCh, h.sideStopCh = nil, nil
	h.mu.Unlock()

	if mainStop != nil {
		close(mainStop)
		<-mainDone
	}
	if sideStop != nil {
		close(sideStop)
		<-sideDone
	}
}

// runMain backtracks from currentEpoch-2 toward epoch 1, processing each
// epoch and pacing politely in between. The stop signal is honored between
// epochs; the current epoch always completes or rolls back cleanly.
func (h *Historical) runMain(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	current, err := h.chain.CurrentEpoch(ctx)
	if err != nil {
		log.Printf("[Historical] main worker cannot read current epoch: %v", err)
		return
	}

	log.Printf("[Historical] main worker starting at epoch %d", current-2)
	for epoch := current - 2; epoch > 0; epoch-- {
		select {
		case <-stopCh:
			log.Printf("[Historical] main worker stopped at epoch %d", epoch)
			return
		case <-ctx.Done():
			return
		default:
		}

		if _, err := h.ProcessEpoch(ctx, epoch); err != nil {
			log.Printf("[Historical] epoch %d failed: %v", epoch, err)
		}

		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(h.pace):
		}
	}
	log.Printf("[Historical] main worker reached the genesis epoch, backfill complete")
}

// runSide re-scans the recent window every interval, catching epochs the
// main worker has moved past. Already-stored rounds skip immediately.
func (h *Historical) runSide(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(h.sideInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.scanRecentWindow(ctx, stopCh)
		}
	}
}

func (h *Historical) scanRecentWindow(ctx context.Context, stopCh chan struct{}) {
	current, err := h.chain.CurrentEpoch(ctx)
	if err != nil {
		log.Printf("[Historical] side worker cannot read current epoch: %v", err)
		return
	}

	from, to := current-2-sideWindow, current-2
	log.Printf("[Historical] side worker scanning epochs [%d, %d]", from, to)
	for epoch := from; epoch <= to; epoch++ {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		if epoch <= 0 {
			continue
		}
		if _, err := h.ProcessEpoch(ctx, epoch); err != nil {
			log.Printf("[Historical] side worker: epoch %d failed: %v", epoch, err)
		}
	}
}

// GracefulRestart drains the workers, validates the recent window, and
// brings the workers back up. Validation failures are surfaced in the log
// but never block the restart.
func (h *Historical) GracefulRestart(ctx context.Context) {
	log.Printf("[Historical] graceful restart: stopping workers")
	h.stopWithTimeout()

	log.Printf("[Historical] graceful restart: settling %v", h.settleDelay)
	sleepCtx(ctx, h.settleDelay)

	h.validateRecentWindow(ctx)
	h.validateRealBetSweep(ctx)
	h.validateMultiClaims(ctx)

	sleepCtx(ctx, h.restartDelay)

	h.mu.Lock()
	h.startMainLocked(ctx)
	h.startSideLocked(ctx)
	h.mu.Unlock()
	log.Printf("[Historical] graceful restart: workers restarted")
}

// stopWithTimeout signals the workers and waits up to the drain timeout for
// the current epoch to finish before cutting over.
func (h *Historical) stopWithTimeout() {
	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(h.drainTimeout):
		log.Printf("[Historical] drain timeout after %v, proceeding with restart", h.drainTimeout)
	}
}

// validateRecentWindow checks that recent closed epochs are stored with rows
func (h *Historical) validateRecentWindow(ctx context.Context) {
	current, err := h.chain.CurrentEpoch(ctx)
	if err != nil {
		log.Printf("[Historical] validation skipped, current epoch unavailable: %v", err)
		return
	}

	for epoch := current - 2 - sideWindow; epoch <= current-2; epoch++ {
		if epoch <= 0 {
			continue
		}
		round, err := h.store.GetRound(ctx, epoch)
		if err != nil {
			log.Printf("[Historical] validation: round %d lookup failed: %v", epoch, err)
			continue
		}
		if round == nil {
			log.Printf("[Historical] validation: round %d not yet stored", epoch)
			continue
		}
		bets, err := h.store.CountHisBetsForEpoch(ctx, epoch)
		if err != nil {
			log.Printf("[Historical] validation: bet count for %d failed: %v", epoch, err)
			continue
		}
		if bets == 0 {
			log.Printf("[Historical] validation: round %d stored with zero bets", epoch)
		}
		claims, err := h.store.CountClaimsForEpoch(ctx, epoch)
		if err != nil {
			log.Printf("[Historical] validation: claim count for %d failed: %v", epoch, err)
			continue
		}
		log.Printf("[Historical] validation: round %d ok (%d bets, %d claims)", epoch, bets, claims)
	}
}

// validateRealBetSweep checks the hot table honors the keep window
func (h *Historical) validateRealBetSweep(ctx context.Context) {
	current, err := h.chain.CurrentEpoch(ctx)
	if err != nil {
		return
	}
	count, err := h.store.CountRealBetsBefore(ctx, current-realbetKeepEpochs)
	if err != nil {
		log.Printf("[Historical] validation: realbet count failed: %v", err)
		return
	}
	if count > 0 {
		log.Printf("[Historical] validation: %d stale realbet rows below epoch %d", count, current-realbetKeepEpochs)
	}
}

// validateMultiClaims runs the distinct-bet_epoch detector variant over the
// recent window: a wallet claiming many different prior rounds in one epoch
// is worth a log line even when the row-count variant stayed quiet.
func (h *Historical) validateMultiClaims(ctx context.Context) {
	current, err := h.chain.CurrentEpoch(ctx)
	if err != nil {
		return
	}
	for epoch := current - 2 - sideWindow; epoch <= current-2; epoch++ {
		if epoch <= 0 {
			continue
		}
		findings, err := h.offline.DetectEpochDistinct(ctx, epoch)
		if err != nil {
			log.Printf("[Historical] validation: distinct-claim scan for %d failed: %v", epoch, err)
			continue
		}
		for _, f := range findings {
			log.Printf("[Historical] validation: wallet %s claimed %d distinct rounds in epoch %d",
				f.WalletAddress, f.DistinctBets, epoch)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// blockTimeCache memoizes canonical block timestamps within one epoch's
// assembly, since many events share a block.
type blockTimeCache struct {
	reader chain.Reader
	byNum  map[uint64]string
}

func newBlockTimeCache(reader chain.Reader) *blockTimeCache {
	return &blockTimeCache{reader: reader, byNum: make(map[uint64]string)}
}

func (c *blockTimeCache) canonical(ctx context.Context, number uint64) (string, error) {
	if ts, ok := c.byNum[number]; ok {
		return ts, nil
	}
	block, err := c.reader.Block(ctx, number)
	if err != nil {
		return "", err
	}
	ts := timeutil.FromUnix(block.Timestamp)
	c.byNum[number] = ts
	return ts, nil
}
