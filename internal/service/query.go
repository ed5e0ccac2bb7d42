package service

import (
	"context"

	"github.com/coinvault/coinvault/internal/domain"
	"github.com/coinvault/coinvault/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// QueryService serves read-only balance and history projections. It takes no
// row locks and never participates in the transfer protocol.
type QueryService struct {
	store store.Store
}

func NewQueryService(st store.Store) *QueryService {
	return &QueryService{store: st}
}

// Balance returns the owner's balance for one asset.
func (q *QueryService) Balance(ctx context.Context, ownerID int64, assetCode string) (domain.Balance, error) {
	return q.store.Balance(ctx, ownerID, assetCode)
}

// AllBalances returns the owner's balance for every asset it holds.
func (q *QueryService) AllBalances(ctx context.Context, ownerID int64) ([]domain.Balance, error) {
	return q.store.AllBalances(ctx, ownerID)
}

// History returns the owner's ledger entries newest-first, paginated and
// optionally filtered by asset.
func (q *QueryService) History(ctx context.Context, ownerID int64, filter domain.HistoryFilter) ([]domain.LedgerEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return q.store.History(ctx, ownerID, filter)
}

// Transaction returns the debit/credit pair for one transfer id.
func (q *QueryService) Transaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	return q.store.Transaction(ctx, transactionID)
}
