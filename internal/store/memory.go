package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coinvault/coinvault/internal/domain"
)

// systemOwnerID is the reserved owner id for the treasury in the memory
// store. Test fixtures should use ids above it for user owners.
const systemOwnerID int64 = 1

// Memory is an in-process Store with the same transactional semantics as the
// Postgres implementation: per-wallet exclusive locks acquired in ascending
// id order, staged writes applied atomically at commit, and idempotency-key
// reservation. It backs the unit and concurrency tests.
type Memory struct {
	mu           sync.Mutex
	wallets      map[int64]*memWallet
	byOwnerAsset map[ownerAsset]int64
	treasury     map[string]int64
	entries      []domain.LedgerEntry
	idem         map[string]*domain.IdempotencyRecord
	nextWalletID int64
	nextEntryID  int64
}

type ownerAsset struct {
	ownerID   int64
	assetCode string
}

type memWallet struct {
	mu sync.Mutex
	domain.Wallet
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		wallets:      make(map[int64]*memWallet),
		byOwnerAsset: make(map[ownerAsset]int64),
		treasury:     make(map[string]int64),
		idem:         make(map[string]*domain.IdempotencyRecord),
	}
}

// AddWallet seeds a wallet for a user owner and returns its id.
func (m *Memory) AddWallet(ownerID int64, assetCode string, balance int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addWallet(ownerID, assetCode, balance)
}

// AddTreasuryWallet seeds the system wallet for an asset with its genesis
// supply and returns its id.
func (m *Memory) AddTreasuryWallet(assetCode string, genesis int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.addWallet(systemOwnerID, assetCode, genesis)
	m.treasury[assetCode] = id
	return id
}

func (m *Memory) addWallet(ownerID int64, assetCode string, balance int64) int64 {
	m.nextWalletID++
	id := m.nextWalletID
	m.wallets[id] = &memWallet{Wallet: domain.Wallet{
		ID:        id,
		OwnerID:   ownerID,
		AssetCode: assetCode,
		Balance:   balance,
		CreatedAt: time.Now().UTC(),
	}}
	m.byOwnerAsset[ownerAsset{ownerID, assetCode}] = id
	return id
}

// WalletBalance returns the committed balance of a wallet.
func (m *Memory) WalletBalance(walletID int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletID]
	if !ok {
		return 0, false
	}
	return w.Balance, true
}

// AllEntries returns a snapshot of every committed ledger entry.
func (m *Memory) AllEntries() []domain.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LedgerEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{m: m, staged: make(map[int64]int64)}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

type memTx struct {
	m         *Memory
	locked    []*memWallet
	staged    map[int64]int64
	entries   []domain.LedgerEntry
	reserved  string
	completed *domain.IdempotencyRecord
}

func (t *memTx) commit() {
	m := t.m
	m.mu.Lock()
	for id, balance := range t.staged {
		m.wallets[id].Balance = balance
	}
	for _, e := range t.entries {
		m.nextEntryID++
		e.ID = m.nextEntryID
		e.CreatedAt = time.Now().UTC()
		m.entries = append(m.entries, e)
	}
	if t.completed != nil {
		m.idem[t.completed.Key] = t.completed
	}
	m.mu.Unlock()
	t.unlock()
}

func (t *memTx) rollback() {
	m := t.m
	m.mu.Lock()
	if t.reserved != "" {
		if rec, ok := m.idem[t.reserved]; ok && rec.ResultStatus == domain.IdempotencyInProgress {
			delete(m.idem, t.reserved)
		}
	}
	m.mu.Unlock()
	t.unlock()
}

func (t *memTx) unlock() {
	for i := len(t.locked) - 1; i >= 0; i-- {
		t.locked[i].mu.Unlock()
	}
	t.locked = nil
}

func (t *memTx) IdempotencyRecord(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	rec, ok := t.m.idem[key]
	if !ok || rec.ResultStatus != domain.IdempotencyCompleted {
		return nil, nil
	}
	cp := *rec
	cp.ResultBody = append([]byte(nil), rec.ResultBody...)
	return &cp, nil
}

func (t *memTx) ReserveIdempotencyKey(_ context.Context, key string) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if _, exists := t.m.idem[key]; exists {
		return domain.ErrIdempotencyInProgress
	}
	t.m.idem[key] = &domain.IdempotencyRecord{
		Key:          key,
		ResultStatus: domain.IdempotencyInProgress,
		CreatedAt:    time.Now().UTC(),
	}
	t.reserved = key
	return nil
}

func (t *memTx) ResolveWallet(_ context.Context, ownerID int64, assetCode string) (int64, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	id, ok := t.m.byOwnerAsset[ownerAsset{ownerID, assetCode}]
	if !ok {
		return 0, domain.ErrWalletNotFound
	}
	return id, nil
}

func (t *memTx) ResolveTreasuryWallet(_ context.Context, assetCode string) (int64, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	id, ok := t.m.treasury[assetCode]
	if !ok {
		return 0, domain.ErrTreasuryMissing
	}
	return id, nil
}

// LockWallets blocks on each wallet mutex in ascending id order, mirroring
// the FOR UPDATE protocol of the Postgres store. Locks are held until commit
// or rollback.
func (t *memTx) LockWallets(_ context.Context, ids []int64) (map[int64]int64, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	balances := make(map[int64]int64, len(sorted))
	for _, id := range sorted {
		t.m.mu.Lock()
		w, ok := t.m.wallets[id]
		t.m.mu.Unlock()
		if !ok {
			return nil, domain.ErrWalletNotFound
		}
		w.mu.Lock()
		t.locked = append(t.locked, w)
		balances[id] = w.Balance
	}
	return balances, nil
}

func (t *memTx) SetBalance(_ context.Context, walletID, balance int64) error {
	if balance < 0 {
		return fmt.Errorf("negative balance for wallet %d", walletID)
	}
	t.staged[walletID] = balance
	return nil
}

func (t *memTx) AppendEntries(_ context.Context, entries []domain.LedgerEntry) error {
	t.entries = append(t.entries, entries...)
	return nil
}

func (t *memTx) CompleteIdempotencyKey(_ context.Context, key, status string, body []byte) error {
	t.completed = &domain.IdempotencyRecord{
		Key:          key,
		ResultStatus: status,
		ResultBody:   append([]byte(nil), body...),
		CreatedAt:    time.Now().UTC(),
	}
	return nil
}

func (m *Memory) Balance(_ context.Context, ownerID int64, assetCode string) (domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byOwnerAsset[ownerAsset{ownerID, assetCode}]
	if !ok {
		return domain.Balance{}, domain.ErrWalletNotFound
	}
	w := m.wallets[id]
	return domain.Balance{WalletID: id, OwnerID: ownerID, AssetCode: assetCode, Amount: w.Balance}, nil
}

func (m *Memory) AllBalances(_ context.Context, ownerID int64) ([]domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balances := []domain.Balance{}
	for key, id := range m.byOwnerAsset {
		if key.ownerID != ownerID {
			continue
		}
		balances = append(balances, domain.Balance{
			WalletID:  id,
			OwnerID:   ownerID,
			AssetCode: key.assetCode,
			Amount:    m.wallets[id].Balance,
		})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].AssetCode < balances[j].AssetCode })
	return balances, nil
}

func (m *Memory) History(_ context.Context, ownerID int64, filter domain.HistoryFilter) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.LedgerEntry{}
	skipped := 0
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		w, ok := m.wallets[e.WalletID]
		if !ok || w.OwnerID != ownerID {
			continue
		}
		if filter.AssetCode != "" && w.AssetCode != filter.AssetCode {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Transaction(_ context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.LedgerEntry{}
	for _, e := range m.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}
