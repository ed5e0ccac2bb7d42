package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/coinvault/coinvault/internal/domain"
	"github.com/coinvault/coinvault/internal/store"
)

// TransferService executes double-entry transfers between an owner wallet and
// the per-asset treasury wallet as one atomic unit of work.
type TransferService struct {
	store  store.Store
	logger *slog.Logger
}

func NewTransferService(st store.Store, logger *slog.Logger) *TransferService {
	return &TransferService{store: st, logger: logger}
}

// Transfer runs one flow with exactly-once semantics under retries. The
// returned bool is true when the result was replayed from the idempotency
// store rather than processed.
//
// The whole protocol runs inside a single transaction: idempotency check and
// reservation, wallet resolution, id-ordered locking, balance validation,
// mutation, ledger append, idempotency completion. Any failure unwinds all of
// it.
func (s *TransferService) Transfer(ctx context.Context, flow domain.Flow, ownerID int64, assetCode string, amount int64, idempotencyKey string) (*domain.TransferResult, bool, error) {
	if !flow.Valid() {
		return nil, false, fmt.Errorf("%w: unknown flow %q", domain.ErrValidation, flow)
	}
	if amount <= 0 {
		return nil, false, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if idempotencyKey == "" {
		return nil, false, fmt.Errorf("%w: idempotency key is required", domain.ErrValidation)
	}
	if ownerID <= 0 || assetCode == "" {
		return nil, false, fmt.Errorf("%w: owner id and asset code are required", domain.ErrValidation)
	}

	var (
		result     *domain.TransferResult
		idempotent bool
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rec, err := tx.IdempotencyRecord(ctx, idempotencyKey)
		if err != nil {
			return err
		}
		if rec != nil {
			var stored domain.TransferResult
			if err := json.Unmarshal(rec.ResultBody, &stored); err != nil {
				return fmt.Errorf("stored result decode failed: %w", err)
			}
			result = &stored
			idempotent = true
			return nil
		}

		if err := tx.ReserveIdempotencyKey(ctx, idempotencyKey); err != nil {
			return err
		}

		ownerWallet, err := tx.ResolveWallet(ctx, ownerID, assetCode)
		if err != nil {
			return err
		}
		treasuryWallet, err := tx.ResolveTreasuryWallet(ctx, assetCode)
		if err != nil {
			return err
		}

		source, dest := flow.Endpoints(ownerWallet, treasuryWallet)
		if source == dest {
			return fmt.Errorf("%w: source and destination wallets are identical", domain.ErrValidation)
		}

		// Ascending-id lock order keeps the wait-for graph acyclic across all
		// concurrent transfers.
		ids := []int64{source, dest}
		if ids[0] > ids[1] {
			ids[0], ids[1] = ids[1], ids[0]
		}
		balances, err := tx.LockWallets(ctx, ids)
		if err != nil {
			return err
		}

		if balances[source] < amount {
			return domain.ErrInsufficientBalance
		}
		if balances[dest] > math.MaxInt64-amount {
			return domain.ErrBalanceOverflow
		}

		newSource := balances[source] - amount
		newDest := balances[dest] + amount
		if err := tx.SetBalance(ctx, source, newSource); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, dest, newDest); err != nil {
			return err
		}

		txID := uuid.NewString()
		description := flow.Description(amount, assetCode)
		entries := []domain.LedgerEntry{
			{TransactionID: txID, WalletID: source, EntryType: domain.EntryDebit, Amount: amount, BalanceAfter: newSource, Description: description},
			{TransactionID: txID, WalletID: dest, EntryType: domain.EntryCredit, Amount: amount, BalanceAfter: newDest, Description: description},
		}
		if err := tx.AppendEntries(ctx, entries); err != nil {
			return err
		}

		result = &domain.TransferResult{
			TransactionID:  txID,
			SourceWalletID: source,
			DestWalletID:   dest,
			Amount:         amount,
			SourceBalance:  newSource,
			DestBalance:    newDest,
			Description:    description,
		}

		body, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return tx.CompleteIdempotencyKey(ctx, idempotencyKey, domain.IdempotencyCompleted, body)
	})
	if err != nil {
		return nil, false, err
	}

	if !idempotent {
		s.logger.Info("transfer processed",
			slog.String("flow", string(flow)),
			slog.String("transaction_id", result.TransactionID),
			slog.Int64("owner_id", ownerID),
			slog.String("asset", assetCode),
			slog.Int64("amount", amount),
		)
	}
	return result, idempotent, nil
}
