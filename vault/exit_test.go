package vault

import (
	"errors"
	"testing"

	"github.com/attestantio/go-eth2-client/spec/phase0"
)

func (v *testVault) finalizedValidator(t *testing.T) RequestID {
	t.Helper()
	id := v.create(t)
	v.assign(t, id)
	v.confirm(t, id)
	v.finalize(t, id)
	return id
}

// Scenario: request, process at an exit epoch, claim once. A second claim
// fails with ErrAlreadyClaimed.
func TestRedeemLifecycle_HappyPath(t *testing.T) {
	v := newTestVault(t)
	validatorID := v.finalizedValidator(t)

	id, err := v.RequestRedeem(depositorAddr, validatorID, DefaultStakeUnit)
	if err != nil {
		t.Fatalf("Failed to request redeem: %v", err)
	}
	request, ok := v.Request(id)
	if !ok {
		t.Fatalf("Expected redeem request %d to exist", id)
	}
	if request.State != RequestPending {
		t.Fatalf("Expected state pending, got %s", request.State)
	}
	if request.Kind != KindRedeem {
		t.Fatalf("Expected redeem kind, got %s", request.Kind)
	}
	if request.ValidatorID != validatorID {
		t.Fatalf("Expected validator %d, got %d", validatorID, request.ValidatorID)
	}

	const exitEpoch = phase0.Epoch(194048)
	if err := v.ProcessRedeem(operatorAddr, id, exitEpoch); err != nil {
		t.Fatalf("Failed to process redeem: %v", err)
	}
	request, _ = v.Request(id)
	if request.State != RequestClaimable {
		t.Fatalf("Expected state claimable, got %s", request.State)
	}
	if request.ExitEpoch != exitEpoch {
		t.Fatalf("Expected exit epoch %d, got %d", exitEpoch, request.ExitEpoch)
	}
	record, _ := v.Record(validatorID)
	if record.ExitEpoch != exitEpoch {
		t.Fatalf("Expected validator exit epoch %d, got %d", exitEpoch, record.ExitEpoch)
	}
	totals := v.Totals()
	if totals.Committed != 0 || totals.Exited != DefaultStakeUnit {
		t.Fatalf("Expected stake moved to exited, got committed %d exited %d", totals.Committed, totals.Exited)
	}

	if err := v.ClaimRedeem(t.Context(), depositorAddr, id); err != nil {
		t.Fatalf("Failed to claim redeem: %v", err)
	}
	if len(v.transferor.calls) != 1 {
		t.Fatalf("Expected exactly one payout, got %d", len(v.transferor.calls))
	}
	payout := v.transferor.calls[0]
	if payout.to != depositorAddr || payout.amount != DefaultStakeUnit {
		t.Fatalf("Expected payout of %d to %s, got %d to %s", DefaultStakeUnit, depositorAddr, payout.amount, payout.to)
	}
	if got := v.Totals().Exited; got != 0 {
		t.Fatalf("Expected exited 0 after claim, got %d", got)
	}

	err = v.ClaimRedeem(t.Context(), depositorAddr, id)
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("Expected ErrAlreadyClaimed on second claim, got %v", err)
	}
	if len(v.transferor.calls) != 1 {
		t.Fatalf("Expected no second payout, got %d calls", len(v.transferor.calls))
	}
}

func TestRequestRedeem_Guards(t *testing.T) {
	v := newTestVault(t)

	// No validator yet.
	if _, err := v.RequestRedeem(depositorAddr, 7, DefaultStakeUnit); !isStateViolation(err) {
		t.Fatalf("Expected state violation for unknown validator, got %v", err)
	}

	// Not finalized yet.
	id := v.create(t)
	if _, err := v.RequestRedeem(depositorAddr, id, DefaultStakeUnit); !isStateViolation(err) {
		t.Fatalf("Expected state violation for unfinalized validator, got %v", err)
	}

	validatorID := v.finalizedValidator(t)

	if _, err := v.RequestRedeem(strangerAddr, validatorID, DefaultStakeUnit); !isAuthorizationError(err) {
		t.Fatalf("Expected AuthorizationError for stranger, got %v", err)
	}

	var validationErr *ValidationError
	if _, err := v.RequestRedeem(depositorAddr, validatorID, 0); !errors.As(err, &validationErr) {
		t.Fatalf("Expected ValidationError for zero amount, got %v", err)
	}
	if _, err := v.RequestRedeem(depositorAddr, validatorID, DefaultStakeUnit+1); !errors.As(err, &validationErr) {
		t.Fatalf("Expected ValidationError for excessive amount, got %v", err)
	}
}

// Partial redemptions lock their share of the claim; the locked total can
// never exceed the validator's stake, but a cancelled lock is released.
func TestRequestRedeem_ClaimAccounting(t *testing.T) {
	v := newTestVault(t)
	validatorID := v.finalizedValidator(t)
	half := DefaultStakeUnit / 2

	if _, err := v.RequestRedeem(depositorAddr, validatorID, half); err != nil {
		t.Fatalf("Failed to request first half: %v", err)
	}
	if _, err := v.RequestRedeem(depositorAddr, validatorID, half+1); err == nil {
		t.Fatalf("Expected over-subscription to be rejected")
	}
	second, err := v.RequestRedeem(depositorAddr, validatorID, half)
	if err != nil {
		t.Fatalf("Failed to request second half: %v", err)
	}
	if _, err := v.RequestRedeem(depositorAddr, validatorID, 1); err == nil {
		t.Fatalf("Expected fully locked claim to reject further requests")
	}

	if err := v.CancelRedeem(depositorAddr, second); err != nil {
		t.Fatalf("Failed to cancel redeem: %v", err)
	}
	request, _ := v.Request(second)
	if request.State != RequestCancelled {
		t.Fatalf("Expected cancelled, got %s", request.State)
	}

	// The cancelled lock is available again.
	if _, err := v.RequestRedeem(depositorAddr, validatorID, half); err != nil {
		t.Fatalf("Failed to re-request after cancel: %v", err)
	}
}

func TestProcessRedeem_Guards(t *testing.T) {
	v := newTestVault(t)
	validatorID := v.finalizedValidator(t)
	id, err := v.RequestRedeem(depositorAddr, validatorID, DefaultStakeUnit)
	if err != nil {
		t.Fatalf("Failed to request redeem: %v", err)
	}

	if err := v.ProcessRedeem(strangerAddr, id, 1); !isAuthorizationError(err) {
		t.Fatalf("Expected AuthorizationError for stranger keeper, got %v", err)
	}
	if err := v.ProcessRedeem(operatorAddr, 424242, 1); !isStateViolation(err) {
		t.Fatalf("Expected state violation for unknown request, got %v", err)
	}

	if err := v.ProcessRedeem(operatorAddr, id, 1); err != nil {
		t.Fatalf("Failed to process redeem: %v", err)
	}
	if err := v.ProcessRedeem(operatorAddr, id, 1); !isStateViolation(err) {
		t.Fatalf("Expected state violation for double process, got %v", err)
	}

	if err := v.CancelRedeem(depositorAddr, id); !isStateViolation(err) {
		t.Fatalf("Expected state violation cancelling a claimable request, got %v", err)
	}
}

func TestClaimRedeem_Guards(t *testing.T) {
	v := newTestVault(t)
	validatorID := v.finalizedValidator(t)
	id, err := v.RequestRedeem(depositorAddr, validatorID, DefaultStakeUnit)
	if err != nil {
		t.Fatalf("Failed to request redeem: %v", err)
	}

	// Not processed yet.
	if err := v.ClaimRedeem(t.Context(), depositorAddr, id); !isStateViolation(err) {
		t.Fatalf("Expected state violation claiming a pending request, got %v", err)
	}

	if err := v.ProcessRedeem(operatorAddr, id, 1); err != nil {
		t.Fatalf("Failed to process redeem: %v", err)
	}
	if err := v.ClaimRedeem(t.Context(), strangerAddr, id); !isAuthorizationError(err) {
		t.Fatalf("Expected AuthorizationError for stranger claim, got %v", err)
	}
}

func TestClaimRedeem_TransferFailureRollsBack(t *testing.T) {
	v := newTestVault(t)
	validatorID := v.finalizedValidator(t)
	id, err := v.RequestRedeem(depositorAddr, validatorID, DefaultStakeUnit)
	if err != nil {
		t.Fatalf("Failed to request redeem: %v", err)
	}
	if err := v.ProcessRedeem(operatorAddr, id, 1); err != nil {
		t.Fatalf("Failed to process redeem: %v", err)
	}

	v.transferor.err = errors.New("payout bounced")
	claimErr := v.ClaimRedeem(t.Context(), depositorAddr, id)
	var callErr *ExternalCallError
	if !errors.As(claimErr, &callErr) {
		t.Fatalf("Expected ExternalCallError, got %v", claimErr)
	}

	request, _ := v.Request(id)
	if request.State != RequestClaimable {
		t.Fatalf("Expected request back in claimable, got %s", request.State)
	}
	if got := v.Totals().Exited; got != DefaultStakeUnit {
		t.Fatalf("Expected exited restored to %d, got %d", DefaultStakeUnit, got)
	}

	// Claimable again once the transfer path recovers.
	v.transferor.err = nil
	if err := v.ClaimRedeem(t.Context(), depositorAddr, id); err != nil {
		t.Fatalf("Failed to claim after recovery: %v", err)
	}
}

// The deposit-kind queue entry mirrors the record lifecycle: processable
// only once the validator is finalized, then claimable exactly once.
func TestValidatorDepositQueue(t *testing.T) {
	v := newTestVault(t)

	id := v.create(t)
	request, ok := v.Request(id)
	if !ok {
		t.Fatalf("Expected deposit-kind request %d to exist", id)
	}
	if request.Kind != KindDeposit || request.State != RequestPending {
		t.Fatalf("Expected pending deposit request, got %s %s", request.Kind, request.State)
	}

	// Cannot process before the validator is finalized.
	if err := v.ProcessValidatorDeposit(operatorAddr, id); !isStateViolation(err) {
		t.Fatalf("Expected state violation before finalize, got %v", err)
	}

	v.assign(t, id)
	v.confirm(t, id)
	if err := v.ProcessValidatorDeposit(operatorAddr, id); !isStateViolation(err) {
		t.Fatalf("Expected state violation before finalize, got %v", err)
	}
	v.finalize(t, id)

	if err := v.ProcessValidatorDeposit(strangerAddr, id); !isAuthorizationError(err) {
		t.Fatalf("Expected AuthorizationError for stranger keeper, got %v", err)
	}
	if err := v.ProcessValidatorDeposit(operatorAddr, id); err != nil {
		t.Fatalf("Failed to process validator deposit: %v", err)
	}
	request, _ = v.Request(id)
	if request.State != RequestClaimable {
		t.Fatalf("Expected claimable, got %s", request.State)
	}

	if err := v.ClaimStake(strangerAddr, id); !isAuthorizationError(err) {
		t.Fatalf("Expected AuthorizationError for stranger claim, got %v", err)
	}
	if err := v.ClaimStake(depositorAddr, id); err != nil {
		t.Fatalf("Failed to claim stake: %v", err)
	}
	if err := v.ClaimStake(depositorAddr, id); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("Expected ErrAlreadyClaimed, got %v", err)
	}
}

// Redeem requests against two validators stay independent; many requests
// may reference one validator over its lifetime.
func TestRedeem_ManyRequestsPerValidator(t *testing.T) {
	v := newTestVault(t)
	validatorID := v.finalizedValidator(t)
	quarter := DefaultStakeUnit / 4

	ids := make([]RequestID, 0, 4)
	for i := 0; i < 4; i++ {
		id, err := v.RequestRedeem(depositorAddr, validatorID, quarter)
		if err != nil {
			t.Fatalf("Failed to request redeem %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	for i, id := range ids {
		if err := v.ProcessRedeem(operatorAddr, id, phase0.Epoch(1000+i)); err != nil {
			t.Fatalf("Failed to process redeem %d: %v", i, err)
		}
		if err := v.ClaimRedeem(t.Context(), depositorAddr, id); err != nil {
			t.Fatalf("Failed to claim redeem %d: %v", i, err)
		}
	}

	totals := v.Totals()
	if totals.Pending != 0 || totals.Committed != 0 || totals.Exited != 0 {
		t.Fatalf("Expected empty ledger after full exit, got %+v", totals)
	}
	if len(v.transferor.calls) != 4 {
		t.Fatalf("Expected 4 payouts, got %d", len(v.transferor.calls))
	}
}
