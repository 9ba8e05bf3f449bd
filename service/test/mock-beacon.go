package test

import (
	"context"

	"github.com/EthStaker/staking-vault/beacon"
	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

type MockBeacon struct {
	MockValidators map[phase0.BLSPubKey]*apiv1.Validator
	MockActivity   map[phase0.BLSPubKey]beacon.Activity
}

var _ beacon.ValidatorProvider = (*MockBeacon)(nil)

func (m *MockBeacon) LookupValidator(ctx context.Context, pubkey phase0.BLSPubKey) (*apiv1.Validator, error) {
	validator, ok := m.MockValidators[pubkey]
	if !ok {
		return nil, nil
	}
	return validator, nil
}

func (m *MockBeacon) ValidatorActivity(pubkey phase0.BLSPubKey) (beacon.Activity, bool) {
	activity, ok := m.MockActivity[pubkey]
	return activity, ok
}

func (m *MockBeacon) ExitEpoch(pubkey phase0.BLSPubKey) (phase0.Epoch, bool) {
	activity, ok := m.MockActivity[pubkey]
	if !ok || !activity.Exited {
		return 0, false
	}
	return activity.ExitEpoch, true
}
