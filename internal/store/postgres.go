package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coinvault/coinvault/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS asset_types (
    code TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS owners (
    id BIGSERIAL PRIMARY KEY,
    kind TEXT NOT NULL CHECK (kind IN ('user', 'system'))
);

CREATE TABLE IF NOT EXISTS wallets (
    id BIGSERIAL PRIMARY KEY,
    owner_id BIGINT NOT NULL REFERENCES owners(id),
    asset_code TEXT NOT NULL REFERENCES asset_types(code),
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (owner_id, asset_code)
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id BIGSERIAL PRIMARY KEY,
    transaction_id UUID NOT NULL,
    wallet_id BIGINT NOT NULL REFERENCES wallets(id),
    entry_type TEXT NOT NULL CHECK (entry_type IN ('DEBIT', 'CREDIT')),
    amount BIGINT NOT NULL CHECK (amount > 0),
    balance_after BIGINT NOT NULL,
    description TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_wallet ON ledger_entries (wallet_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_txid ON ledger_entries (transaction_id);

CREATE TABLE IF NOT EXISTS idempotency_keys (
    key TEXT PRIMARY KEY,
    result_status TEXT NOT NULL,
    result_body JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Postgres is the production Store backed by a bounded pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres builds a connection pool capped at maxConns and verifies
// connectivity. Pool exhaustion surfaces to callers as acquisition blocking,
// never as silent failure.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Migrate applies the schema. Idempotent; run by the seeder before seeding.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// WithinTx runs fn inside one database transaction. Row locks taken via
// LockWallets are held until commit or rollback, so overlapping transfers
// serialize in lock-acquisition order.
func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) IdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	rec := domain.IdempotencyRecord{Key: key}
	err := t.tx.QueryRow(ctx,
		"SELECT result_status, result_body, created_at FROM idempotency_keys WHERE key = $1 AND result_status = $2",
		key, domain.IdempotencyCompleted,
	).Scan(&rec.ResultStatus, &rec.ResultBody, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}
	return &rec, nil
}

func (t *pgTx) ReserveIdempotencyKey(ctx context.Context, key string) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO idempotency_keys (key, result_status) VALUES ($1, $2)",
		key, domain.IdempotencyInProgress,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrIdempotencyInProgress
		}
		return fmt.Errorf("key reservation failed: %w", err)
	}
	return nil
}

func (t *pgTx) ResolveWallet(ctx context.Context, ownerID int64, assetCode string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		"SELECT id FROM wallets WHERE owner_id = $1 AND asset_code = $2",
		ownerID, assetCode,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrWalletNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("wallet lookup failed: %w", err)
	}
	return id, nil
}

func (t *pgTx) ResolveTreasuryWallet(ctx context.Context, assetCode string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`SELECT w.id FROM wallets w
         JOIN owners o ON o.id = w.owner_id
         WHERE o.kind = 'system' AND w.asset_code = $1`,
		assetCode,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrTreasuryMissing
	}
	if err != nil {
		return 0, fmt.Errorf("treasury lookup failed: %w", err)
	}
	return id, nil
}

// LockWallets acquires FOR UPDATE locks one id at a time. Callers pass ids in
// ascending order, which keeps the wait-for graph acyclic across all
// concurrent transfers.
func (t *pgTx) LockWallets(ctx context.Context, ids []int64) (map[int64]int64, error) {
	balances := make(map[int64]int64, len(ids))
	for _, id := range ids {
		var balance int64
		err := t.tx.QueryRow(ctx, "SELECT balance FROM wallets WHERE id = $1 FOR UPDATE", id).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("lock acquisition failed: %w", err)
		}
		balances[id] = balance
	}
	return balances, nil
}

func (t *pgTx) SetBalance(ctx context.Context, walletID, balance int64) error {
	if _, err := t.tx.Exec(ctx, "UPDATE wallets SET balance = $1 WHERE id = $2", balance, walletID); err != nil {
		return fmt.Errorf("balance update failed: %w", err)
	}
	return nil
}

func (t *pgTx) AppendEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	for _, e := range entries {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO ledger_entries (transaction_id, wallet_id, entry_type, amount, balance_after, description)
             VALUES ($1, $2, $3, $4, $5, $6)`,
			e.TransactionID, e.WalletID, e.EntryType, e.Amount, e.BalanceAfter, e.Description,
		)
		if err != nil {
			return fmt.Errorf("ledger entry failed: %w", err)
		}
	}
	return nil
}

func (t *pgTx) CompleteIdempotencyKey(ctx context.Context, key, status string, body []byte) error {
	_, err := t.tx.Exec(ctx,
		"UPDATE idempotency_keys SET result_status = $1, result_body = $2 WHERE key = $3",
		status, body, key,
	)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	return nil
}

func (p *Postgres) Balance(ctx context.Context, ownerID int64, assetCode string) (domain.Balance, error) {
	var b domain.Balance
	err := p.pool.QueryRow(ctx,
		"SELECT id, owner_id, asset_code, balance FROM wallets WHERE owner_id = $1 AND asset_code = $2",
		ownerID, assetCode,
	).Scan(&b.WalletID, &b.OwnerID, &b.AssetCode, &b.Amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Balance{}, domain.ErrWalletNotFound
	}
	if err != nil {
		return domain.Balance{}, fmt.Errorf("balance query failed: %w", err)
	}
	return b, nil
}

func (p *Postgres) AllBalances(ctx context.Context, ownerID int64) ([]domain.Balance, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, owner_id, asset_code, balance FROM wallets WHERE owner_id = $1 ORDER BY asset_code",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("balances query failed: %w", err)
	}
	defer rows.Close()

	balances := []domain.Balance{}
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.WalletID, &b.OwnerID, &b.AssetCode, &b.Amount); err != nil {
			return nil, fmt.Errorf("balance scan failed: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (p *Postgres) History(ctx context.Context, ownerID int64, filter domain.HistoryFilter) ([]domain.LedgerEntry, error) {
	query := `SELECT e.id, e.transaction_id, e.wallet_id, e.entry_type, e.amount, e.balance_after, e.description, e.created_at
              FROM ledger_entries e
              JOIN wallets w ON w.id = e.wallet_id
              WHERE w.owner_id = $1`
	args := []interface{}{ownerID}
	if filter.AssetCode != "" {
		query += " AND w.asset_code = $2"
		args = append(args, filter.AssetCode)
	}
	query += fmt.Sprintf(" ORDER BY e.id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (p *Postgres) Transaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, transaction_id, wallet_id, entry_type, amount, balance_after, description, created_at
         FROM ledger_entries WHERE transaction_id = $1 ORDER BY id`,
		transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("transaction query failed: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	entries := []domain.LedgerEntry{}
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.WalletID, &e.EntryType, &e.Amount, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("entry scan failed: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Seeding helpers used by cmd/seeder.

// EnsureAsset creates the asset type if it does not exist.
func (p *Postgres) EnsureAsset(ctx context.Context, code, name string) error {
	_, err := p.pool.Exec(ctx,
		"INSERT INTO asset_types (code, name) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING",
		code, name,
	)
	return err
}

// EnsureTreasury guarantees the system owner and its wallet for the asset,
// seeding the genesis supply on first creation.
func (p *Postgres) EnsureTreasury(ctx context.Context, assetCode string, genesis int64) (int64, error) {
	var ownerID int64
	err := p.pool.QueryRow(ctx, "SELECT id FROM owners WHERE kind = 'system'").Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = p.pool.QueryRow(ctx, "INSERT INTO owners (kind) VALUES ('system') RETURNING id").Scan(&ownerID)
	}
	if err != nil {
		return 0, fmt.Errorf("system owner lookup failed: %w", err)
	}

	var walletID int64
	err = p.pool.QueryRow(ctx,
		`INSERT INTO wallets (owner_id, asset_code, balance) VALUES ($1, $2, $3)
         ON CONFLICT (owner_id, asset_code) DO UPDATE SET asset_code = EXCLUDED.asset_code
         RETURNING id`,
		ownerID, assetCode, genesis,
	).Scan(&walletID)
	if err != nil {
		return 0, fmt.Errorf("treasury wallet creation failed: %w", err)
	}
	return walletID, nil
}

// CreateUserOwner inserts one user owner and returns its id.
func (p *Postgres) CreateUserOwner(ctx context.Context) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, "INSERT INTO owners (kind) VALUES ('user') RETURNING id").Scan(&id)
	return id, err
}

// BulkCreateWallets creates one zero-balance wallet per owner for the asset
// using CopyFrom, which is the fastest bulk path pgx offers.
func (p *Postgres) BulkCreateWallets(ctx context.Context, ownerIDs []int64, assetCode string) (int64, error) {
	rows := make([][]interface{}, 0, len(ownerIDs))
	for _, ownerID := range ownerIDs {
		rows = append(rows, []interface{}{ownerID, assetCode, int64(0)})
	}
	return p.pool.CopyFrom(
		ctx,
		pgx.Identifier{"wallets"},
		[]string{"owner_id", "asset_code", "balance"},
		pgx.CopyFromRows(rows),
	)
}
