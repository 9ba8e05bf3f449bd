package beacon

import (
	"encoding/hex"
	"testing"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/electra"
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

func testPubkey(t *testing.T, s string) phase0.BLSPubKey {
	t.Helper()
	raw, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("Failed to decode pubkey: %v", err)
	}
	var pubkey phase0.BLSPubKey
	copy(pubkey[:], raw)
	return pubkey
}

func TestBuildActivity_ActiveValidator(t *testing.T) {
	pubkey := testPubkey(t, "111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111111")

	validators := map[phase0.ValidatorIndex]*apiv1.Validator{
		7: {
			Index:   7,
			Balance: 32_000_000_000,
			Status:  apiv1.ValidatorStateActiveOngoing,
			Validator: &phase0.Validator{
				PublicKey: pubkey,
				ExitEpoch: farFutureEpoch,
			},
		},
	}

	activity := buildActivity(validators, nil)

	entry, ok := activity[pubkey]
	if !ok {
		t.Fatalf("Expected an activity entry for the validator")
	}
	if entry.Index != 7 {
		t.Fatalf("Expected index 7, got %d", entry.Index)
	}
	if entry.Exited {
		t.Fatalf("Expected validator not to be exited")
	}
	if entry.PendingDeposits != 0 {
		t.Fatalf("Expected no pending deposits, got %d", entry.PendingDeposits)
	}
}

func TestBuildActivity_ExitedValidator(t *testing.T) {
	pubkey := testPubkey(t, "222222222222222222222222222222222222222222222222222222222222222222222222222222222222222222222222")

	validators := map[phase0.ValidatorIndex]*apiv1.Validator{
		3: {
			Index:  3,
			Status: apiv1.ValidatorStateExitedUnslashed,
			Validator: &phase0.Validator{
				PublicKey: pubkey,
				ExitEpoch: 194048,
			},
		},
	}

	activity := buildActivity(validators, nil)

	entry, ok := activity[pubkey]
	if !ok {
		t.Fatalf("Expected an activity entry for the validator")
	}
	if !entry.Exited {
		t.Fatalf("Expected validator to be exited")
	}
	if entry.ExitEpoch != 194048 {
		t.Fatalf("Expected exit epoch 194048, got %d", entry.ExitEpoch)
	}
}

func TestBuildActivity_PendingDepositWithoutValidator(t *testing.T) {
	pubkey := testPubkey(t, "333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333")

	deposits := []*electra.PendingDeposit{
		{Pubkey: pubkey},
		{Pubkey: pubkey},
	}

	activity := buildActivity(nil, deposits)

	entry, ok := activity[pubkey]
	if !ok {
		t.Fatalf("Expected an activity entry for the queued pubkey")
	}
	if entry.PendingDeposits != 2 {
		t.Fatalf("Expected 2 pending deposits, got %d", entry.PendingDeposits)
	}
	if entry.Exited {
		t.Fatalf("Expected a queued pubkey not to read as exited")
	}
}

func TestBuildActivity_PendingDepositOnExistingValidator(t *testing.T) {
	pubkey := testPubkey(t, "444444444444444444444444444444444444444444444444444444444444444444444444444444444444444444444444")

	validators := map[phase0.ValidatorIndex]*apiv1.Validator{
		9: {
			Index:  9,
			Status: apiv1.ValidatorStateActiveOngoing,
			Validator: &phase0.Validator{
				PublicKey: pubkey,
				ExitEpoch: farFutureEpoch,
			},
		},
	}
	deposits := []*electra.PendingDeposit{
		{Pubkey: pubkey},
	}

	activity := buildActivity(validators, deposits)

	entry := activity[pubkey]
	if entry.Index != 9 {
		t.Fatalf("Expected the validator entry to be kept, got index %d", entry.Index)
	}
	if entry.PendingDeposits != 1 {
		t.Fatalf("Expected 1 pending deposit, got %d", entry.PendingDeposits)
	}
	if entry.Exited {
		t.Fatalf("Expected top-up deposit not to mark the validator exited")
	}
}
