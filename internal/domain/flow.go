package domain

import "fmt"

// Flow is the closed set of supported transfer kinds. Deposit and Bonus move
// value treasury -> owner; Spend moves owner -> treasury.
type Flow string

const (
	FlowDeposit Flow = "deposit"
	FlowBonus   Flow = "bonus"
	FlowSpend   Flow = "spend"
)

// Valid reports whether f is one of the supported flows.
func (f Flow) Valid() bool {
	switch f {
	case FlowDeposit, FlowBonus, FlowSpend:
		return true
	}
	return false
}

// Endpoints maps the flow to its (source, dest) wallet pair. This is the only
// place direction is decided; the transfer protocol itself is flow-agnostic.
func (f Flow) Endpoints(ownerWalletID, treasuryWalletID int64) (source, dest int64) {
	if f == FlowSpend {
		return ownerWalletID, treasuryWalletID
	}
	return treasuryWalletID, ownerWalletID
}

// Description renders the human-readable ledger description for a transfer.
func (f Flow) Description(amount int64, assetCode string) string {
	switch f {
	case FlowDeposit:
		return fmt.Sprintf("Deposit of %d %s from treasury", amount, assetCode)
	case FlowBonus:
		return fmt.Sprintf("Bonus of %d %s from treasury", amount, assetCode)
	case FlowSpend:
		return fmt.Sprintf("Spend of %d %s to treasury", amount, assetCode)
	}
	return fmt.Sprintf("Transfer of %d %s", amount, assetCode)
}
