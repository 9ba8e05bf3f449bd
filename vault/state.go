package vault

import "fmt"

// RequestID identifies one deposit record or queue request. A single id
// space covers both capital directions.
type RequestID uint64

// DepositState is the lifecycle phase of a deposit record.
type DepositState uint8

const (
	StateNone DepositState = iota
	StateRequested
	StateAssigned
	StateConfirmed
	StateFinalized
	StateCancelled
)

func (s DepositState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateRequested:
		return "requested"
	case StateAssigned:
		return "assigned"
	case StateConfirmed:
		return "confirmed"
	case StateFinalized:
		return "finalized"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// Terminal reports whether no further transition is legal from s.
func (s DepositState) Terminal() bool {
	return s == StateFinalized || s == StateCancelled
}

// RequestState is the lifecycle phase of a queue request.
type RequestState uint8

const (
	RequestPending RequestState = iota
	RequestProcessing
	RequestClaimable
	RequestClaimed
	RequestCancelled
)

func (s RequestState) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestProcessing:
		return "processing"
	case RequestClaimable:
		return "claimable"
	case RequestClaimed:
		return "claimed"
	case RequestCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

func (s RequestState) Terminal() bool {
	return s == RequestClaimed || s == RequestCancelled
}

// RequestKind is the capital direction of a queue request.
type RequestKind uint8

const (
	KindDeposit RequestKind = iota
	KindRedeem
)

func (k RequestKind) String() string {
	if k == KindRedeem {
		return "redeem"
	}
	return "deposit"
}
