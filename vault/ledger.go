package vault

import "github.com/attestantio/go-eth2-client/spec/phase0"

// Ledger tracks aggregate custody per lifecycle phase, in gwei.
//
//	Pending:   reserved by open deposit records, still refundable
//	Committed: released to the deposit contract for active validators
//	Exited:    returned by exited validators, awaiting redemption claims
type Ledger struct {
	Pending   phase0.Gwei `json:"pending"`
	Committed phase0.Gwei `json:"committed"`
	Exited    phase0.Gwei `json:"exited"`
}

// reserve accounts for a new deposit entering custody.
func (l *Ledger) reserve(amount phase0.Gwei) {
	l.Pending += amount
}

// release moves a finalized deposit from pending custody to the committed
// pool. Underflow aborts the operation; the counters are never clamped.
func (l *Ledger) release(amount phase0.Gwei) error {
	if l.Pending < amount {
		return &LedgerError{Counter: "pending", Op: "release", Have: l.Pending, Want: amount}
	}
	l.Pending -= amount
	l.Committed += amount
	return nil
}

// refund removes a cancelled deposit from pending custody.
func (l *Ledger) refund(amount phase0.Gwei) error {
	if l.Pending < amount {
		return &LedgerError{Counter: "pending", Op: "refund", Have: l.Pending, Want: amount}
	}
	l.Pending -= amount
	return nil
}

// exit moves stake from the committed pool to the exited pool once the
// linked validator has left the active set.
func (l *Ledger) exit(amount phase0.Gwei) error {
	if l.Committed < amount {
		return &LedgerError{Counter: "committed", Op: "exit", Have: l.Committed, Want: amount}
	}
	l.Committed -= amount
	l.Exited += amount
	return nil
}

// payout removes a claimed redemption from the exited pool.
func (l *Ledger) payout(amount phase0.Gwei) error {
	if l.Exited < amount {
		return &LedgerError{Counter: "exited", Op: "payout", Have: l.Exited, Want: amount}
	}
	l.Exited -= amount
	return nil
}
