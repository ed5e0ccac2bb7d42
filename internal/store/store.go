package store

import (
	"context"

	"github.com/coinvault/coinvault/internal/domain"
)

// Tx is the transactional surface the transfer protocol runs against. Every
// method executes inside the same atomic scope; if the enclosing WithinTx
// callback returns an error, none of the mutations become visible.
type Tx interface {
	// IdempotencyRecord returns the completed record for key, or nil when the
	// key has never finished processing.
	IdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error)

	// ReserveIdempotencyKey claims key for this transaction. A concurrent or
	// earlier claim surfaces as domain.ErrIdempotencyInProgress.
	ReserveIdempotencyKey(ctx context.Context, key string) error

	// ResolveWallet maps (owner, asset) to a wallet id.
	ResolveWallet(ctx context.Context, ownerID int64, assetCode string) (int64, error)

	// ResolveTreasuryWallet maps an asset to its system-owned wallet id.
	ResolveTreasuryWallet(ctx context.Context, assetCode string) (int64, error)

	// LockWallets acquires exclusive row locks on the given wallet ids, which
	// must be sorted ascending, and returns their current balances. Blocks
	// until any conflicting holder commits or rolls back.
	LockWallets(ctx context.Context, ids []int64) (map[int64]int64, error)

	// SetBalance writes a wallet balance. Callers must hold the row lock.
	SetBalance(ctx context.Context, walletID, balance int64) error

	// AppendEntries appends ledger entries. Entries are never updated or
	// deleted afterwards.
	AppendEntries(ctx context.Context, entries []domain.LedgerEntry) error

	// CompleteIdempotencyKey finalizes a reserved key with the stored result.
	CompleteIdempotencyKey(ctx context.Context, key, status string, body []byte) error
}

// Store is the persistence contract. Postgres backs production; Memory backs
// unit tests with the same locking semantics.
type Store interface {
	// WithinTx runs fn inside one atomic all-or-nothing scope.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Balance returns the wallet balance for (owner, asset).
	Balance(ctx context.Context, ownerID int64, assetCode string) (domain.Balance, error)

	// AllBalances returns every wallet balance for the owner, ordered by asset.
	AllBalances(ctx context.Context, ownerID int64) ([]domain.Balance, error)

	// History returns the owner's ledger entries newest-first.
	History(ctx context.Context, ownerID int64, filter domain.HistoryFilter) ([]domain.LedgerEntry, error)

	// Transaction returns the entry pair recorded under one transaction id.
	Transaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error)
}
