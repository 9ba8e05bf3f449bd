package beacon

import (
	"context"

	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

// Activity summarises what the consensus layer currently knows about one
// validator pubkey the vault cares about.
type Activity struct {
	Index           phase0.ValidatorIndex `json:"index"`
	Status          apiv1.ValidatorState  `json:"status"`
	Balance         phase0.Gwei           `json:"balance"`
	ExitEpoch       phase0.Epoch          `json:"exit_epoch,omitempty"`
	Exited          bool                  `json:"exited"`
	PendingDeposits int                   `json:"pending_deposits"`
}

// ValidatorProvider answers validator liveness questions for the vault: has
// a finalized deposit been picked up, has a validator left the active set
// and at which epoch.
type ValidatorProvider interface {
	// LookupValidator queries the beacon node directly for one pubkey.
	LookupValidator(ctx context.Context, pubkey phase0.BLSPubKey) (*apiv1.Validator, error)

	// ValidatorActivity reads the head-tracking cache. The second return is
	// false when the pubkey is unknown to the consensus layer.
	ValidatorActivity(pubkey phase0.BLSPubKey) (Activity, bool)

	// ExitEpoch reports the epoch at which a validator exited or is
	// scheduled to exit. The second return is false while no exit is known.
	ExitEpoch(pubkey phase0.BLSPubKey) (phase0.Epoch, bool)
}
