package eth1

import (
	"context"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
)

// Sink is the beacon chain deposit contract: it accepts validator
// credentials plus an exact stake payment and is the point of no return.
type Sink interface {
	SubmitDeposit(
		ctx context.Context,
		pubkey phase0.BLSPubKey,
		withdrawalCredentials [32]byte,
		signature phase0.BLSSignature,
		depositDataRoot phase0.Root,
		amount phase0.Gwei,
	) error
}

// Transferor sends value to an address. Implementations must translate
// non-reverting failure conventions (a false success flag, a failed
// receipt status) into an error.
type Transferor interface {
	Transfer(ctx context.Context, to common.Address, amount phase0.Gwei) error
}
