package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/coinvault/coinvault/internal/domain"
	"github.com/coinvault/coinvault/internal/logging"
	"github.com/coinvault/coinvault/internal/store"
)

func seedHistory(t *testing.T, m *store.Memory, svc *TransferService, ownerID int64, assetCode string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("%s-%d-%d", assetCode, ownerID, i)
		if _, _, err := svc.Transfer(context.Background(), domain.FlowDeposit, ownerID, assetCode, int64(10+i), key); err != nil {
			t.Fatalf("seed transfer failed: %v", err)
		}
	}
}

func TestQueryBalances(t *testing.T) {
	m := store.NewMemory()
	q := NewQueryService(m)
	ctx := context.Background()

	m.AddTreasuryWallet("GOLD_COINS", 1_000)
	m.AddTreasuryWallet("GEM_SHARDS", 1_000)
	gold := m.AddWallet(100, "GOLD_COINS", 750)
	m.AddWallet(100, "GEM_SHARDS", 20)

	bal, err := q.Balance(ctx, 100, "GOLD_COINS")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.WalletID != gold || bal.Amount != 750 || bal.AssetCode != "GOLD_COINS" {
		t.Fatalf("unexpected balance: %+v", bal)
	}

	if _, err := q.Balance(ctx, 100, "UNKNOWN"); !errors.Is(err, domain.ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}

	all, err := q.AllBalances(ctx, 100)
	if err != nil {
		t.Fatalf("all balances: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(all))
	}
	// Ordered by asset code.
	if all[0].AssetCode != "GEM_SHARDS" || all[1].AssetCode != "GOLD_COINS" {
		t.Fatalf("balances out of order: %+v", all)
	}

	empty, err := q.AllBalances(ctx, 999)
	if err != nil {
		t.Fatalf("all balances for unknown owner: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no balances, got %d", len(empty))
	}
}

func TestQueryHistoryPagination(t *testing.T) {
	m := store.NewMemory()
	svc := NewTransferService(m, logging.Discard())
	q := NewQueryService(m)
	ctx := context.Background()

	m.AddTreasuryWallet("GOLD_COINS", 100_000)
	m.AddWallet(100, "GOLD_COINS", 0)
	seedHistory(t, m, svc, 100, "GOLD_COINS", 5)

	all, err := q.History(ctx, 100, domain.HistoryFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(all))
	}
	// Newest first: amounts were 10..14 in order, so the head is 14.
	if all[0].Amount != 14 || all[4].Amount != 10 {
		t.Fatalf("history not newest-first: %+v", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID > all[i-1].ID {
			t.Fatalf("history ids not descending at %d", i)
		}
	}

	page, err := q.History(ctx, 100, domain.HistoryFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("paged history: %v", err)
	}
	if len(page) != 2 || page[0].Amount != 13 || page[1].Amount != 12 {
		t.Fatalf("unexpected page: %+v", page)
	}

	tail, err := q.History(ctx, 100, domain.HistoryFilter{Limit: 10, Offset: 4})
	if err != nil {
		t.Fatalf("tail history: %v", err)
	}
	if len(tail) != 1 || tail[0].Amount != 10 {
		t.Fatalf("unexpected tail: %+v", tail)
	}
}

func TestQueryHistoryAssetFilter(t *testing.T) {
	m := store.NewMemory()
	svc := NewTransferService(m, logging.Discard())
	q := NewQueryService(m)
	ctx := context.Background()

	m.AddTreasuryWallet("GOLD_COINS", 100_000)
	m.AddTreasuryWallet("GEM_SHARDS", 100_000)
	m.AddWallet(100, "GOLD_COINS", 0)
	m.AddWallet(100, "GEM_SHARDS", 0)
	seedHistory(t, m, svc, 100, "GOLD_COINS", 3)
	seedHistory(t, m, svc, 100, "GEM_SHARDS", 2)

	gold, err := q.History(ctx, 100, domain.HistoryFilter{AssetCode: "GOLD_COINS"})
	if err != nil {
		t.Fatalf("filtered history: %v", err)
	}
	if len(gold) != 3 {
		t.Fatalf("expected 3 gold entries, got %d", len(gold))
	}

	both, err := q.History(ctx, 100, domain.HistoryFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(both) != 5 {
		t.Fatalf("expected 5 entries across assets, got %d", len(both))
	}

	// Only the owner's side of each transfer shows up, not the treasury's.
	for _, e := range both {
		if e.EntryType != domain.EntryCredit {
			t.Fatalf("owner history leaked a foreign entry: %+v", e)
		}
	}
}

func TestQueryTransaction(t *testing.T) {
	m := store.NewMemory()
	svc := NewTransferService(m, logging.Discard())
	q := NewQueryService(m)
	ctx := context.Background()

	m.AddTreasuryWallet("GOLD_COINS", 100_000)
	m.AddWallet(100, "GOLD_COINS", 0)

	res, _, err := svc.Transfer(ctx, domain.FlowDeposit, 100, "GOLD_COINS", 40, "t-1")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	entries, err := q.Transaction(ctx, res.TransactionID)
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected entry pair, got %d", len(entries))
	}

	missing, err := q.Transaction(ctx, "nope")
	if err != nil {
		t.Fatalf("missing transaction: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected no entries, got %d", len(missing))
	}
}
