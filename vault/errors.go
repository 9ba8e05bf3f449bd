package vault

import (
	"errors"
	"fmt"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
)

// ErrAlreadyClaimed is returned when a payout is requested for a request
// that has already been claimed.
var ErrAlreadyClaimed = errors.New("request already claimed")

// ValidationError reports malformed input: wrong lengths, wrong amounts.
// The caller can fix the input and retry; no state was changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateViolationError reports an action attempted in the wrong lifecycle
// phase. It usually means the caller acted on a stale read; re-check the
// record state before retrying.
type StateViolationError struct {
	Action   string
	Required string
	Actual   string
}

func (e *StateViolationError) Error() string {
	return fmt.Sprintf("%s requires state %s, found %s", e.Action, e.Required, e.Actual)
}

// AuthorizationError reports an action attempted by the wrong actor.
type AuthorizationError struct {
	Actor common.Address
	Role  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s is not the %s", e.Actor, e.Role)
}

// AuthenticityError reports that the locally recomputed deposit data root
// does not match the supplied one. The assigned credentials are bad or
// malicious; the record cannot be finalized until reassigned.
type AuthenticityError struct {
	Want phase0.Root // recomputed from the stored credentials
	Got  phase0.Root // supplied by the caller
}

func (e *AuthenticityError) Error() string {
	return fmt.Sprintf("deposit data root mismatch: recomputed %#x, supplied %#x", e.Want, e.Got)
}

// CooldownError reports a cancellation attempted before the cooldown on a
// confirmed record has elapsed. The condition is transient.
type CooldownError struct {
	Until time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("confirmed record cannot be cancelled until %s", e.Until.UTC().Format(time.RFC3339))
}

// ExternalCallError reports a failed collaborator call. The transition that
// issued the call has been rolled back in full.
type ExternalCallError struct {
	Op  string
	Err error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error {
	return e.Err
}

// LedgerError reports a custody counter that would underflow or no longer
// matches the open records. This is never caller-fixable; the operation
// that triggered it has been aborted.
type LedgerError struct {
	Counter string
	Op      string
	Have    phase0.Gwei
	Want    phase0.Gwei
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s on %s: have %d gwei, need %d gwei", e.Op, e.Counter, e.Have, e.Want)
}
