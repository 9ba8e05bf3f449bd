package test

import (
	"context"

	"github.com/EthStaker/staking-vault/eth1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
)

type SubmittedDeposit struct {
	Pubkey                phase0.BLSPubKey
	WithdrawalCredentials [32]byte
	Signature             phase0.BLSSignature
	DepositDataRoot       phase0.Root
	Amount                phase0.Gwei
}

type MockSink struct {
	Err       error
	Submitted []SubmittedDeposit
}

var _ eth1.Sink = (*MockSink)(nil)

func (m *MockSink) SubmitDeposit(ctx context.Context, pubkey phase0.BLSPubKey, withdrawalCredentials [32]byte, signature phase0.BLSSignature, depositDataRoot phase0.Root, amount phase0.Gwei) error {
	if m.Err != nil {
		return m.Err
	}
	m.Submitted = append(m.Submitted, SubmittedDeposit{
		Pubkey:                pubkey,
		WithdrawalCredentials: withdrawalCredentials,
		Signature:             signature,
		DepositDataRoot:       depositDataRoot,
		Amount:                amount,
	})
	return nil
}

type Payout struct {
	To     common.Address
	Amount phase0.Gwei
}

type MockTransferor struct {
	Err     error
	Payouts []Payout
}

var _ eth1.Transferor = (*MockTransferor)(nil)

func (m *MockTransferor) Transfer(ctx context.Context, to common.Address, amount phase0.Gwei) error {
	if m.Err != nil {
		return m.Err
	}
	m.Payouts = append(m.Payouts, Payout{To: to, Amount: amount})
	return nil
}
