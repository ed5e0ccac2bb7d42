package domain

import "errors"

// Sentinel errors shared by the stores and the transfer service. The HTTP
// layer maps them to status codes; nothing below it knows about transport.
var (
	// ErrValidation covers malformed or missing request fields. No mutation
	// is attempted.
	ErrValidation = errors.New("validation failed")

	// ErrWalletNotFound means the owner has no wallet for the asset.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrTreasuryMissing means no system wallet exists for the asset. This is
	// a deployment misconfiguration, not a caller error, and retrying will
	// not help.
	ErrTreasuryMissing = errors.New("treasury wallet not configured")

	// ErrInsufficientBalance is the business-rule rejection. No state is
	// mutated.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBalanceOverflow means the credit would push the destination past the
	// maximum representable balance (math.MaxInt64). Rejected rather than
	// wrapped.
	ErrBalanceOverflow = errors.New("balance overflow")

	// ErrIdempotencyInProgress means another request holding the same key is
	// still in flight. Safe to retry once it settles.
	ErrIdempotencyInProgress = errors.New("request in progress")
)
