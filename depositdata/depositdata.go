// Package depositdata computes the deposit data root committed to by the
// beacon chain deposit contract. The contract recomputes this root on-chain
// and rejects any submission that doesn't match, so computing it locally
// turns a stake-burning mistake into a cheap revert.
package depositdata

import (
	"encoding/binary"
	"fmt"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
	"github.com/minio/sha256-simd"
)

const (
	// PubkeyLength is the length of a BLS public key.
	PubkeyLength = 48
	// SignatureLength is the length of a BLS signature.
	SignatureLength = 96
	// CredentialsLength is the length of withdrawal credentials.
	CredentialsLength = 32
)

// Withdrawal credential version prefixes.
const (
	BLSPrefix         = byte(0x00)
	ExecutionPrefix   = byte(0x01)
	CompoundingPrefix = byte(0x02)
)

// InvalidLengthError reports a credential field of the wrong size.
type InvalidLengthError struct {
	Field string
	Want  int
	Got   int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("invalid %s length: expected %d bytes, got %d", e.Field, e.Want, e.Got)
}

// Root computes the SSZ hash tree root of the deposit data
// (pubkey, withdrawal_credentials, amount, signature), producing the same
// value the deposit contract computes when the deposit is submitted.
//
// The tree shape follows the contract:
//
//	pubkeyRoot    = sha256(pubkey ++ zeros(16))
//	signatureRoot = sha256(sha256(sig[0:64]) ++ sha256(sig[64:96] ++ zeros(32)))
//	node          = sha256(sha256(pubkeyRoot ++ credentials) ++
//	                       sha256(amountLE64 ++ zeros(24) ++ signatureRoot))
//
// The amount leaf is the 8-byte little-endian gwei value padded to a full
// 32-byte chunk, concatenated directly rather than hashed on its own.
func Root(pubkey []byte, withdrawalCredentials []byte, signature []byte, amount phase0.Gwei) (phase0.Root, error) {
	if len(pubkey) != PubkeyLength {
		return phase0.Root{}, &InvalidLengthError{Field: "pubkey", Want: PubkeyLength, Got: len(pubkey)}
	}
	if len(withdrawalCredentials) != CredentialsLength {
		return phase0.Root{}, &InvalidLengthError{Field: "withdrawal credentials", Want: CredentialsLength, Got: len(withdrawalCredentials)}
	}
	if len(signature) != SignatureLength {
		return phase0.Root{}, &InvalidLengthError{Field: "signature", Want: SignatureLength, Got: len(signature)}
	}

	var buf [64]byte

	copy(buf[:48], pubkey)
	clear(buf[48:])
	pubkeyRoot := sha256.Sum256(buf[:])

	sigRootA := sha256.Sum256(signature[:64])
	copy(buf[:32], signature[64:])
	clear(buf[32:])
	sigRootB := sha256.Sum256(buf[:])
	copy(buf[:32], sigRootA[:])
	copy(buf[32:], sigRootB[:])
	signatureRoot := sha256.Sum256(buf[:])

	copy(buf[:32], pubkeyRoot[:])
	copy(buf[32:], withdrawalCredentials)
	left := sha256.Sum256(buf[:])

	clear(buf[:32])
	binary.LittleEndian.PutUint64(buf[:8], uint64(amount))
	copy(buf[32:], signatureRoot[:])
	right := sha256.Sum256(buf[:])

	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return phase0.Root(sha256.Sum256(buf[:])), nil
}

// ExecutionCredentials builds 0x01 withdrawal credentials for an execution
// layer address: a one-byte version prefix, eleven zero bytes, then the
// 20-byte address.
func ExecutionCredentials(addr common.Address) [32]byte {
	var creds [32]byte
	creds[0] = ExecutionPrefix
	copy(creds[12:], addr[:])
	return creds
}

// CompoundingCredentials builds 0x02 withdrawal credentials for an execution
// layer address.
func CompoundingCredentials(addr common.Address) [32]byte {
	creds := ExecutionCredentials(addr)
	creds[0] = CompoundingPrefix
	return creds
}
