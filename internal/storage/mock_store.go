package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/prediction-scanner/internal/models"
	"github.com/prediction-scanner/internal/timeutil"
)

// MockStore is an in-memory Store used by pipeline and detector tests.
// It mirrors the conflict-handling semantics of PostgresStore: rounds and
// multi-claims upsert, historical bets and claims dedupe on tx hash, and
// real bets are append-only.
type MockStore struct {
	mu           sync.RWMutex
	rounds       map[int64]*models.Round
	hisBets      map[string]models.HisBet // keyed by tx hash
	claims       map[string]models.Claim  // keyed by tx hash
	realBets     []models.RealBet
	multiClaims  map[int64]map[string]models.MultiClaim
	failedEpochs map[int64]*models.FailedEpoch
	walletNotes  map[string]*models.WalletNote

	// FailWith, when set, makes every subsequent call return this error.
	FailWith error
}

// NewMockStore creates an empty in-memory store
func NewMockStore() *MockStore {
	return &MockStore{
		rounds:       make(map[int64]*models.Round),
		hisBets:      make(map[string]models.HisBet),
		claims:       make(map[string]models.Claim),
		multiClaims:  make(map[int64]map[string]models.MultiClaim),
		failedEpochs: make(map[int64]*models.FailedEpoch),
		walletNotes:  make(map[string]*models.WalletNote),
	}
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) GetRound(ctx context.Context, epoch int64) (*models.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	r, ok := m.rounds[epoch]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MockStore) CommitEpoch(ctx context.Context, round *models.Round, bets []models.HisBet, claims []models.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	cp := *round
	m.rounds[round.Epoch] = &cp
	for _, b := range bets {
		m.hisBets[b.TxHash] = b
	}
	for _, c := range claims {
		m.claims[c.TxHash] = c
	}
	return nil
}

func (m *MockStore) DeleteEpochData(ctx context.Context, epoch int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	delete(m.rounds, epoch)
	for hash, b := range m.hisBets {
		if b.Epoch == epoch {
			delete(m.hisBets, hash)
		}
	}
	for hash, c := range m.claims {
		if c.Epoch == epoch {
			delete(m.claims, hash)
		}
	}
	return nil
}

func (m *MockStore) InsertRealBet(ctx context.Context, bet *models.RealBet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.realBets = append(m.realBets, *bet)
	return nil
}

func (m *MockStore) DeleteRealBetsForEpoch(ctx context.Context, epoch int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	kept := m.realBets[:0]
	for _, b := range m.realBets {
		if b.Epoch != epoch {
			kept = append(kept, b)
		}
	}
	m.realBets = kept
	return nil
}

func (m *MockStore) DeleteRealBetsBefore(ctx context.Context, epoch int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	kept := m.realBets[:0]
	for _, b := range m.realBets {
		if b.Epoch >= epoch {
			kept = append(kept, b)
		}
	}
	m.realBets = kept
	return nil
}

func (m *MockStore) CountRealBetsBefore(ctx context.Context, epoch int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	count := 0
	for _, b := range m.realBets {
		if b.Epoch < epoch {
			count++
		}
	}
	return count, nil
}

func (m *MockStore) RecentRealBets(ctx context.Context, limit int) ([]models.RealBet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	out := make([]models.RealBet, len(m.realBets))
	copy(out, m.realBets)
	sort.SliceStable(out, func(i, j int) bool { return out[i].BetTs > out[j].BetTs })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) ClaimsForEpoch(ctx context.Context, epoch int64) ([]models.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	var out []models.Claim
	for _, c := range m.claims {
		if c.Epoch == epoch {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimTs < out[j].ClaimTs })
	return out, nil
}

func (m *MockStore) UpsertMultiClaim(ctx context.Context, mc *models.MultiClaim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	byWallet, ok := m.multiClaims[mc.Epoch]
	if !ok {
		byWallet = make(map[string]models.MultiClaim)
		m.multiClaims[mc.Epoch] = byWallet
	}
	byWallet[models.NormalizeWallet(mc.WalletAddress)] = *mc
	return nil
}

func (m *MockStore) MultiClaimsForEpoch(ctx context.Context, epoch int64) ([]models.MultiClaim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	var out []models.MultiClaim
	for _, mc := range m.multiClaims[epoch] {
		out = append(out, mc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimCount > out[j].ClaimCount })
	return out, nil
}

func (m *MockStore) CountHisBetsForEpoch(ctx context.Context, epoch int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	count := 0
	for _, b := range m.hisBets {
		if b.Epoch == epoch {
			count++
		}
	}
	return count, nil
}

func (m *MockStore) CountClaimsForEpoch(ctx context.Context, epoch int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	count := 0
	for _, c := range m.claims {
		if c.Epoch == epoch {
			count++
		}
	}
	return count, nil
}

func (m *MockStore) GetFailedEpoch(ctx context.Context, epoch int64) (*models.FailedEpoch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	fe, ok := m.failedEpochs[epoch]
	if !ok {
		return nil, nil
	}
	cp := *fe
	return &cp, nil
}

func (m *MockStore) RecordEpochFailure(ctx context.Context, epoch int64, message string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	fe, ok := m.failedEpochs[epoch]
	if !ok {
		fe = &models.FailedEpoch{Epoch: epoch}
		m.failedEpochs[epoch] = fe
	}
	fe.ErrorMessage = message
	fe.LastAttemptTs = timeutil.Now()
	fe.FailureCount++
	return fe.FailureCount, nil
}

func (m *MockStore) GetWalletNote(ctx context.Context, wallet string) (*models.WalletNote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	n, ok := m.walletNotes[models.NormalizeWallet(wallet)]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (m *MockStore) UpsertWalletNote(ctx context.Context, note *models.WalletNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	key := models.NormalizeWallet(note.WalletAddress)
	now := timeutil.Now()
	existing, ok := m.walletNotes[key]
	if ok {
		existing.Note = note.Note
		existing.UpdatedAt = now
		return nil
	}
	cp := *note
	cp.WalletAddress = key
	if cp.CreatedAt == "" {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.walletNotes[key] = &cp
	return nil
}

// RealBetCount reports the hot-table size, for test assertions
func (m *MockStore) RealBetCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.realBets)
}

// RoundCount reports the number of committed rounds, for test assertions
func (m *MockStore) RoundCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rounds)
}
