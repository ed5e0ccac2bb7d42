package domain

import (
	"encoding/json"
	"time"
)

// OwnerKind distinguishes regular users from the single system owner that
// holds the treasury wallets.
type OwnerKind string

const (
	OwnerKindUser   OwnerKind = "user"
	OwnerKindSystem OwnerKind = "system"
)

// AssetType is immutable reference data for one asset, e.g. GOLD_COINS.
type AssetType struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Owner is a wallet holder. Exactly one system owner exists per deployment.
type Owner struct {
	ID   int64     `json:"id"`
	Kind OwnerKind `json:"kind"`
}

// Wallet holds a non-negative balance in the asset's smallest unit. There is
// at most one wallet per (owner, asset) pair and wallets are never deleted.
type Wallet struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	AssetCode string    `json:"asset_code"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// EntryType marks the direction of one ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// LedgerEntry is one immutable leg of a double-entry transfer. Every
// transaction id groups exactly one DEBIT and one CREDIT of equal amount.
type LedgerEntry struct {
	ID            int64     `json:"id"`
	TransactionID string    `json:"transaction_id"`
	WalletID      int64     `json:"wallet_id"`
	EntryType     EntryType `json:"entry_type"`
	Amount        int64     `json:"amount"`
	BalanceAfter  int64     `json:"balance_after"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// IdempotencyRecord holds the stored outcome for a client key. Written once,
// never overwritten; a replay returns ResultBody verbatim.
type IdempotencyRecord struct {
	Key          string          `json:"key"`
	ResultStatus string          `json:"result_status"`
	ResultBody   json.RawMessage `json:"result_body,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Idempotency record statuses.
const (
	IdempotencyInProgress = "in_progress"
	IdempotencyCompleted  = "completed"
)

// TransferResult is the canonical response for a processed transfer. The
// exact marshaled form is what the idempotency store persists and replays.
type TransferResult struct {
	TransactionID  string `json:"transaction_id"`
	SourceWalletID int64  `json:"source_wallet_id"`
	DestWalletID   int64  `json:"dest_wallet_id"`
	Amount         int64  `json:"amount"`
	SourceBalance  int64  `json:"source_balance"`
	DestBalance    int64  `json:"dest_balance"`
	Description    string `json:"description"`
}

// Balance is a point-in-time read of one wallet.
type Balance struct {
	WalletID  int64  `json:"wallet_id"`
	OwnerID   int64  `json:"owner_id"`
	AssetCode string `json:"asset_code"`
	Amount    int64  `json:"amount"`
}

// HistoryFilter narrows a ledger history read. AssetCode empty means all
// assets. Limit and Offset paginate the newest-first entry stream.
type HistoryFilter struct {
	AssetCode string
	Limit     int
	Offset    int
}
