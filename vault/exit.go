package vault

import (
	"context"
	"fmt"

	"github.com/EthStaker/staking-vault/depositdata"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
)

// RequestRedeem locks part of the caller's claim on a finalized validator
// into custody and opens a Pending redeem request. The locked amount cannot
// exceed what is still redeemable against that validator.
func (v *Vault) RequestRedeem(owner common.Address, validatorID RequestID, amount phase0.Gwei) (RequestID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	record := v.records[validatorID]
	if record == nil {
		return 0, &StateViolationError{Action: "request redeem", Required: StateFinalized.String(), Actual: StateNone.String()}
	}
	if record.State != StateFinalized {
		return 0, &StateViolationError{Action: "request redeem", Required: StateFinalized.String(), Actual: record.State.String()}
	}
	if owner != record.Owner && owner != record.WithdrawalAddress {
		return 0, &AuthorizationError{Actor: owner, Role: "validator claim holder"}
	}
	if amount == 0 {
		return 0, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if remaining := v.redeemable(record); amount > remaining {
		return 0, &ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("exceeds redeemable claim: %d gwei remaining, %d requested", remaining, amount),
		}
	}

	v.nextID++
	id := v.nextID
	v.requests[id] = &QueueRequest{
		ID:          id,
		Kind:        KindRedeem,
		State:       RequestPending,
		Owner:       owner,
		Controller:  record.WithdrawalAddress,
		Amount:      amount,
		ValidatorID: validatorID,
		RequestedAt: v.now(),
	}

	v.logger.Info("redeem requested",
		"id", uint64(id),
		"validator_id", uint64(validatorID),
		"owner", owner,
		"amount_gwei", uint64(amount))
	return id, nil
}

// ProcessRedeem marks the linked validator as exited at the given epoch,
// moves the request's stake from the committed pool to the exited pool and
// makes the request claimable. Keeper only.
func (v *Vault) ProcessRedeem(keeper common.Address, id RequestID, exitEpoch phase0.Epoch) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.operators[keeper] {
		return &AuthorizationError{Actor: keeper, Role: "operator"}
	}
	request := v.requests[id]
	if request == nil || request.Kind != KindRedeem {
		return &StateViolationError{Action: "process redeem", Required: RequestPending.String(), Actual: "no redeem request"}
	}
	if request.State != RequestPending {
		return &StateViolationError{Action: "process redeem", Required: RequestPending.String(), Actual: request.State.String()}
	}
	record := v.records[request.ValidatorID]
	if record == nil || record.State != StateFinalized {
		return &StateViolationError{Action: "process redeem", Required: StateFinalized.String(), Actual: StateNone.String()}
	}

	requestSnapshot := *request
	ledgerSnapshot := v.ledger
	recordExitEpoch := record.ExitEpoch

	request.State = RequestProcessing
	record.ExitEpoch = exitEpoch
	request.ExitEpoch = exitEpoch
	if err := v.ledger.exit(request.Amount); err != nil {
		*request = requestSnapshot
		record.ExitEpoch = recordExitEpoch
		return err
	}
	request.State = RequestClaimable
	if err := v.checkConservation(); err != nil {
		*request = requestSnapshot
		record.ExitEpoch = recordExitEpoch
		v.ledger = ledgerSnapshot
		return err
	}

	v.logger.Info("redeem processed",
		"id", uint64(id),
		"validator_id", uint64(request.ValidatorID),
		"exit_epoch", uint64(exitEpoch),
		"amount_gwei", uint64(request.Amount))
	return nil
}

// ClaimRedeem pays a claimable redemption out to its owner, exactly once.
// The request is marked Claimed and the ledger settled before the transfer
// is made; a failed transfer rolls the whole transition back.
func (v *Vault) ClaimRedeem(ctx context.Context, actor common.Address, id RequestID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	request := v.requests[id]
	if request == nil || request.Kind != KindRedeem {
		return &StateViolationError{Action: "claim redeem", Required: RequestClaimable.String(), Actual: "no redeem request"}
	}
	if request.State == RequestClaimed {
		return ErrAlreadyClaimed
	}
	if request.State != RequestClaimable {
		return &StateViolationError{Action: "claim redeem", Required: RequestClaimable.String(), Actual: request.State.String()}
	}
	if actor != request.Owner {
		return &AuthorizationError{Actor: actor, Role: "request owner"}
	}

	requestSnapshot := *request
	ledgerSnapshot := v.ledger

	request.State = RequestClaimed
	if err := v.ledger.payout(request.Amount); err != nil {
		*request = requestSnapshot
		return err
	}
	if err := v.checkConservation(); err != nil {
		*request = requestSnapshot
		v.ledger = ledgerSnapshot
		return err
	}

	if err := v.transferor.Transfer(ctx, request.Owner, request.Amount); err != nil {
		*request = requestSnapshot
		v.ledger = ledgerSnapshot
		return &ExternalCallError{Op: "redemption transfer", Err: err}
	}

	v.logger.Info("redeem claimed", "id", uint64(id), "owner", request.Owner, "amount_gwei", uint64(request.Amount))
	return nil
}

// CancelRedeem releases a still-pending redemption lock.
func (v *Vault) CancelRedeem(actor common.Address, id RequestID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	request := v.requests[id]
	if request == nil || request.Kind != KindRedeem {
		return &StateViolationError{Action: "cancel redeem", Required: RequestPending.String(), Actual: "no redeem request"}
	}
	if request.State != RequestPending {
		return &StateViolationError{Action: "cancel redeem", Required: RequestPending.String(), Actual: request.State.String()}
	}
	if actor != request.Owner && actor != request.Controller && actor != v.owner {
		return &AuthorizationError{Actor: actor, Role: "request owner"}
	}

	request.State = RequestCancelled
	v.logger.Info("redeem cancelled", "id", uint64(id))
	return nil
}

// ProcessValidatorDeposit moves a deposit-kind request to Claimable once its
// validator has been finalized. The commitment root is recomputed from the
// stored credentials one more time: the queue must never hand out a claim on
// a validator whose on-chain registration could not have matched.
func (v *Vault) ProcessValidatorDeposit(keeper common.Address, id RequestID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.operators[keeper] {
		return &AuthorizationError{Actor: keeper, Role: "operator"}
	}
	request := v.requests[id]
	if request == nil || request.Kind != KindDeposit {
		return &StateViolationError{Action: "process validator deposit", Required: RequestPending.String(), Actual: "no deposit request"}
	}
	if request.State != RequestPending {
		return &StateViolationError{Action: "process validator deposit", Required: RequestPending.String(), Actual: request.State.String()}
	}
	record := v.records[request.ValidatorID]
	if record == nil || record.State != StateFinalized {
		actual := StateNone
		if record != nil {
			actual = record.State
		}
		return &StateViolationError{Action: "process validator deposit", Required: StateFinalized.String(), Actual: actual.String()}
	}

	recomputed, err := depositdata.Root(record.Pubkey[:], record.WithdrawalCredentials[:], record.Signature[:], record.Amount)
	if err != nil {
		return err
	}
	if recomputed != record.CommittedRoot {
		return &AuthenticityError{Want: recomputed, Got: record.CommittedRoot}
	}

	request.State = RequestClaimable

	v.logger.Info("validator deposit processed", "id", uint64(id), "validator_id", uint64(request.ValidatorID))
	return nil
}

// ClaimStake marks a claimable deposit-kind request as claimed, binding the
// validator's claim to its owner. The stake itself already left through the
// deposit contract at finalize, so nothing is transferred here.
func (v *Vault) ClaimStake(actor common.Address, id RequestID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	request := v.requests[id]
	if request == nil || request.Kind != KindDeposit {
		return &StateViolationError{Action: "claim stake", Required: RequestClaimable.String(), Actual: "no deposit request"}
	}
	if request.State == RequestClaimed {
		return ErrAlreadyClaimed
	}
	if request.State != RequestClaimable {
		return &StateViolationError{Action: "claim stake", Required: RequestClaimable.String(), Actual: request.State.String()}
	}
	if actor != request.Owner {
		return &AuthorizationError{Actor: actor, Role: "request owner"}
	}

	request.State = RequestClaimed
	v.logger.Info("stake claimed", "id", uint64(id), "owner", request.Owner)
	return nil
}

// redeemable is the portion of a validator's stake not yet locked by live
// redeem requests. Caller holds the lock.
func (v *Vault) redeemable(record *DepositRecord) phase0.Gwei {
	locked := phase0.Gwei(0)
	for _, request := range v.requests {
		if request.Kind != KindRedeem || request.ValidatorID != record.ID {
			continue
		}
		if request.State == RequestCancelled {
			continue
		}
		locked += request.Amount
	}
	if locked >= record.Amount {
		return 0
	}
	return record.Amount - locked
}
