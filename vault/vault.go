// Package vault is the deposit/validator lifecycle controller. It custodies
// pooled stake across the irreversible steps of validator creation, verifies
// the deposit contract's commitment root before any funds are released, and
// mirrors the same state machine shape for the redemption direction.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/EthStaker/staking-vault/depositdata"
	"github.com/EthStaker/staking-vault/eth1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultStakeUnit is the fixed deposit amount required to create one
	// validator, in gwei.
	DefaultStakeUnit = phase0.Gwei(32_000_000_000)

	// DefaultCancelCooldown is how long a confirmed record stays protected
	// from unilateral cancellation.
	DefaultCancelCooldown = 7 * 24 * time.Hour
)

// DepositRecord is one validator deposit moving through the lifecycle.
// Pubkey and Signature are immutable from Assigned onward.
type DepositRecord struct {
	ID                    RequestID
	State                 DepositState
	Owner                 common.Address
	WithdrawalAddress     common.Address
	WithdrawalCredentials [32]byte
	Pubkey                phase0.BLSPubKey
	Signature             phase0.BLSSignature
	CommittedRoot         phase0.Root
	Operator              common.Address
	Amount                phase0.Gwei
	ExitEpoch             phase0.Epoch
	CreatedAt             time.Time
	ConfirmedAt           time.Time
}

// QueueRequest is one async vault request. Deposit-kind requests shadow a
// deposit record through validator creation; redeem-kind requests reference
// an existing validator for exit. Many redeem requests may reference one
// validator over its lifetime.
type QueueRequest struct {
	ID          RequestID
	Kind        RequestKind
	State       RequestState
	Owner       common.Address
	Controller  common.Address
	Amount      phase0.Gwei
	ValidatorID RequestID
	ExitEpoch   phase0.Epoch
	RequestedAt time.Time
}

// Config carries the collaborators and policy knobs for a Vault.
type Config struct {
	Logger *slog.Logger

	// Owner may mutate the operator set and confirm or cancel any record.
	Owner common.Address

	// StakeUnit is the exact payment required per deposit. Defaults to
	// DefaultStakeUnit.
	StakeUnit phase0.Gwei

	// CancelCooldown gates cancellation of confirmed records. Defaults to
	// DefaultCancelCooldown.
	CancelCooldown time.Duration

	Sink       eth1.Sink
	Transferor eth1.Transferor

	// Now is the clock used for the cancellation cooldown. Defaults to
	// time.Now.
	Now func() time.Time
}

// Vault serializes every mutation behind one mutex, the closest analogue of
// the host ledger's transaction ordering. Any transition that issues an
// external call writes its own state change first and restores the full
// pre-transition snapshot if the call fails.
type Vault struct {
	logger     *slog.Logger
	owner      common.Address
	stakeUnit  phase0.Gwei
	cooldown   time.Duration
	sink       eth1.Sink
	transferor eth1.Transferor
	now        func() time.Time

	mu        sync.Mutex
	operators map[common.Address]bool
	records   map[RequestID]*DepositRecord
	requests  map[RequestID]*QueueRequest
	ledger    Ledger
	nextID    RequestID
}

func New(config Config) (*Vault, error) {
	if config.Sink == nil {
		return nil, fmt.Errorf("vault requires a deposit sink")
	}
	if config.Transferor == nil {
		return nil, fmt.Errorf("vault requires a transferor")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.StakeUnit == 0 {
		config.StakeUnit = DefaultStakeUnit
	}
	if config.CancelCooldown == 0 {
		config.CancelCooldown = DefaultCancelCooldown
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Vault{
		logger:     config.Logger.With("component", "vault"),
		owner:      config.Owner,
		stakeUnit:  config.StakeUnit,
		cooldown:   config.CancelCooldown,
		sink:       config.Sink,
		transferor: config.Transferor,
		now:        config.Now,
		operators:  make(map[common.Address]bool),
		records:    make(map[RequestID]*DepositRecord),
		requests:   make(map[RequestID]*QueueRequest),
	}, nil
}

// StakeUnit returns the exact payment required per deposit, in gwei.
func (v *Vault) StakeUnit() phase0.Gwei {
	return v.stakeUnit
}

// SetOperator adds or removes an operator. Only the vault owner may call it.
func (v *Vault) SetOperator(actor common.Address, operator common.Address, enabled bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if actor != v.owner {
		return &AuthorizationError{Actor: actor, Role: "vault owner"}
	}
	if enabled {
		v.operators[operator] = true
	} else {
		delete(v.operators, operator)
	}
	v.logger.Info("operator set updated", "operator", operator, "enabled", enabled)
	return nil
}

// IsOperator reports whether an address is on the operator allow-list.
func (v *Vault) IsOperator(addr common.Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.operators[addr]
}

// Operators returns the current operator allow-list.
func (v *Vault) Operators() []common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]common.Address, 0, len(v.operators))
	for addr := range v.operators {
		out = append(out, addr)
	}
	return out
}

// Record returns a copy of a deposit record.
func (v *Vault) Record(id RequestID) (DepositRecord, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	record, ok := v.records[id]
	if !ok {
		return DepositRecord{}, false
	}
	return *record, true
}

// RecordsByOwner returns copies of all deposit records whose handle is held
// by owner.
func (v *Vault) RecordsByOwner(owner common.Address) []DepositRecord {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]DepositRecord, 0)
	for _, record := range v.records {
		if record.Owner == owner {
			out = append(out, *record)
		}
	}
	return out
}

// RecordByPubkey returns a copy of the deposit record assigned the given
// validator public key, if any.
func (v *Vault) RecordByPubkey(pubkey phase0.BLSPubKey) (DepositRecord, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, record := range v.records {
		if record.State != StateRequested && record.Pubkey == pubkey {
			return *record, true
		}
	}
	return DepositRecord{}, false
}

// Request returns a copy of a queue request.
func (v *Vault) Request(id RequestID) (QueueRequest, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	request, ok := v.requests[id]
	if !ok {
		return QueueRequest{}, false
	}
	return *request, true
}

// Totals returns the current custody counters.
func (v *Vault) Totals() Ledger {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger
}

// Create opens a deposit record for an exact stake-unit payment and reserves
// the payment in custody. The record starts in Requested and a deposit-kind
// queue request with the same id starts in Pending.
func (v *Vault) Create(depositor common.Address, withdrawalAddress common.Address, compounding bool, payment phase0.Gwei) (RequestID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if payment != v.stakeUnit {
		return 0, &ValidationError{
			Field:  "payment",
			Reason: fmt.Sprintf("expected exactly %d gwei, got %d", v.stakeUnit, payment),
		}
	}

	credentials := depositdata.ExecutionCredentials(withdrawalAddress)
	if compounding {
		credentials = depositdata.CompoundingCredentials(withdrawalAddress)
	}

	v.nextID++
	id := v.nextID
	now := v.now()

	v.records[id] = &DepositRecord{
		ID:                    id,
		State:                 StateRequested,
		Owner:                 depositor,
		WithdrawalAddress:     withdrawalAddress,
		WithdrawalCredentials: credentials,
		Amount:                payment,
		CreatedAt:             now,
	}
	v.requests[id] = &QueueRequest{
		ID:          id,
		Kind:        KindDeposit,
		State:       RequestPending,
		Owner:       depositor,
		Controller:  withdrawalAddress,
		Amount:      payment,
		ValidatorID: id,
		RequestedAt: now,
	}
	v.ledger.reserve(payment)

	if err := v.checkConservation(); err != nil {
		delete(v.records, id)
		delete(v.requests, id)
		return 0, err
	}

	v.logger.Info("deposit requested",
		"id", uint64(id),
		"depositor", depositor,
		"withdrawal_address", withdrawalAddress,
		"amount_gwei", uint64(payment))
	return id, nil
}

// Assign attaches validator credentials to a requested record. Operator only.
// The pubkey and signature are immutable afterwards.
func (v *Vault) Assign(operator common.Address, id RequestID, pubkey []byte, signature []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.operators[operator] {
		return &AuthorizationError{Actor: operator, Role: "operator"}
	}
	record := v.records[id]
	if record == nil {
		return &StateViolationError{Action: "assign", Required: StateRequested.String(), Actual: StateNone.String()}
	}
	if record.State != StateRequested {
		return &StateViolationError{Action: "assign", Required: StateRequested.String(), Actual: record.State.String()}
	}
	if len(pubkey) != depositdata.PubkeyLength {
		return &ValidationError{
			Field:  "pubkey",
			Reason: fmt.Sprintf("expected %d bytes, got %d", depositdata.PubkeyLength, len(pubkey)),
		}
	}
	if len(signature) != depositdata.SignatureLength {
		return &ValidationError{
			Field:  "signature",
			Reason: fmt.Sprintf("expected %d bytes, got %d", depositdata.SignatureLength, len(signature)),
		}
	}

	copy(record.Pubkey[:], pubkey)
	copy(record.Signature[:], signature)
	record.Operator = operator
	record.State = StateAssigned

	v.logger.Info("deposit assigned", "id", uint64(id), "operator", operator, "pubkey", record.Pubkey.String())
	return nil
}

// Confirm verifies the assigned credentials against the supplied deposit
// data root. Only the withdrawal credential holder, the handle owner or the
// vault owner may confirm. The root is recomputed locally; a mismatch means
// the operator assigned bad credentials and blocks the finalize path.
func (v *Vault) Confirm(actor common.Address, id RequestID, root phase0.Root) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	record := v.records[id]
	if record == nil {
		return &StateViolationError{Action: "confirm", Required: StateAssigned.String(), Actual: StateNone.String()}
	}
	if record.State != StateAssigned {
		return &StateViolationError{Action: "confirm", Required: StateAssigned.String(), Actual: record.State.String()}
	}
	if actor != record.WithdrawalAddress && actor != record.Owner && actor != v.owner {
		return &AuthorizationError{Actor: actor, Role: "withdrawal credential holder"}
	}

	recomputed, err := depositdata.Root(record.Pubkey[:], record.WithdrawalCredentials[:], record.Signature[:], record.Amount)
	if err != nil {
		return err
	}
	if recomputed != root {
		return &AuthenticityError{Want: recomputed, Got: root}
	}

	record.CommittedRoot = root
	record.ConfirmedAt = v.now()
	record.State = StateConfirmed

	v.logger.Info("deposit confirmed", "id", uint64(id), "root", root.String())
	return nil
}

// Finalize releases a confirmed deposit to the deposit contract. Operator
// only. The record is marked Finalized and the ledger updated before the
// sink call is made; if the call fails the whole transition is rolled back.
func (v *Vault) Finalize(ctx context.Context, operator common.Address, id RequestID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.operators[operator] {
		return &AuthorizationError{Actor: operator, Role: "operator"}
	}
	record := v.records[id]
	if record == nil {
		return &StateViolationError{Action: "finalize", Required: StateConfirmed.String(), Actual: StateNone.String()}
	}
	if record.State != StateConfirmed {
		return &StateViolationError{Action: "finalize", Required: StateConfirmed.String(), Actual: record.State.String()}
	}

	snapshot := *record
	ledgerSnapshot := v.ledger

	// State first, external call second. A re-entrant attempt on the same
	// record now fails its state guard.
	record.State = StateFinalized
	if err := v.ledger.release(record.Amount); err != nil {
		*record = snapshot
		return err
	}
	if err := v.checkConservation(); err != nil {
		*record = snapshot
		v.ledger = ledgerSnapshot
		return err
	}

	err := v.sink.SubmitDeposit(ctx,
		record.Pubkey, record.WithdrawalCredentials, record.Signature,
		record.CommittedRoot, record.Amount)
	if err != nil {
		*record = snapshot
		v.ledger = ledgerSnapshot
		return &ExternalCallError{Op: "deposit sink", Err: err}
	}

	v.logger.Info("deposit finalized", "id", uint64(id), "pubkey", record.Pubkey.String(), "amount_gwei", uint64(record.Amount))
	return nil
}

// Cancel refunds a non-terminal deposit and deletes its record. Only the
// withdrawal credential holder, the handle owner or the vault owner may
// cancel. A confirmed record stays protected until the cooldown has elapsed,
// bounding the operator's liveness window without locking funds forever.
func (v *Vault) Cancel(ctx context.Context, actor common.Address, id RequestID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	record := v.records[id]
	if record == nil {
		return &StateViolationError{Action: "cancel", Required: "any non-terminal state", Actual: StateNone.String()}
	}
	if actor != record.WithdrawalAddress && actor != record.Owner && actor != v.owner {
		return &AuthorizationError{Actor: actor, Role: "withdrawal credential holder"}
	}
	if record.State.Terminal() {
		return &StateViolationError{Action: "cancel", Required: "any non-terminal state", Actual: record.State.String()}
	}
	if record.State == StateConfirmed {
		until := record.ConfirmedAt.Add(v.cooldown)
		if v.now().Before(until) {
			return &CooldownError{Until: until}
		}
	}

	request := v.requests[id]
	recordSnapshot := *record
	requestSnapshot := *request
	ledgerSnapshot := v.ledger

	refundTo := record.Owner
	amount := record.Amount

	// Remove the record and settle the ledger before the refund leaves.
	if err := v.ledger.refund(amount); err != nil {
		return err
	}
	delete(v.records, id)
	request.State = RequestCancelled
	if err := v.checkConservation(); err != nil {
		v.records[id] = record
		*record = recordSnapshot
		*request = requestSnapshot
		v.ledger = ledgerSnapshot
		return err
	}

	if err := v.transferor.Transfer(ctx, refundTo, amount); err != nil {
		v.records[id] = record
		*record = recordSnapshot
		*request = requestSnapshot
		v.ledger = ledgerSnapshot
		return &ExternalCallError{Op: "refund transfer", Err: err}
	}

	v.logger.Info("deposit cancelled", "id", uint64(id), "refund_to", refundTo, "amount_gwei", uint64(amount))
	return nil
}

// TransferHandle moves the handle identifying who may confirm and cancel a
// record. The handle is frozen while the record is active: an active claim
// must not change hands on a secondary market.
func (v *Vault) TransferHandle(from common.Address, to common.Address, id RequestID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	record := v.records[id]
	if record == nil {
		return &StateViolationError{Action: "transfer handle", Required: "a terminal state", Actual: StateNone.String()}
	}
	if record.Owner != from {
		return &AuthorizationError{Actor: from, Role: "handle owner"}
	}
	if !record.State.Terminal() {
		return &StateViolationError{Action: "transfer handle", Required: "a terminal state", Actual: record.State.String()}
	}

	record.Owner = to
	if request, ok := v.requests[id]; ok {
		request.Owner = to
	}
	v.logger.Info("handle transferred", "id", uint64(id), "from", from, "to", to)
	return nil
}

// checkConservation recomputes what every counter should be from the open
// records and compares. Called after every mutation; a mismatch means the
// bookkeeping leaked or double counted and aborts the operation.
func (v *Vault) checkConservation() error {
	var pending, finalized phase0.Gwei
	for _, record := range v.records {
		switch record.State {
		case StateRequested, StateAssigned, StateConfirmed:
			pending += record.Amount
		case StateFinalized:
			finalized += record.Amount
		}
	}

	var redeemed, exited phase0.Gwei
	for _, request := range v.requests {
		if request.Kind != KindRedeem {
			continue
		}
		switch request.State {
		case RequestClaimable:
			exited += request.Amount
			redeemed += request.Amount
		case RequestClaimed:
			redeemed += request.Amount
		}
	}
	committed := finalized - redeemed

	if v.ledger.Pending != pending {
		return &LedgerError{Counter: "pending", Op: "conservation check", Have: v.ledger.Pending, Want: pending}
	}
	if v.ledger.Committed != committed {
		return &LedgerError{Counter: "committed", Op: "conservation check", Have: v.ledger.Committed, Want: committed}
	}
	if v.ledger.Exited != exited {
		return &LedgerError{Counter: "exited", Op: "conservation check", Have: v.ledger.Exited, Want: exited}
	}
	return nil
}
