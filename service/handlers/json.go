package handlers

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/EthStaker/staking-vault/depositdata"
	"github.com/EthStaker/staking-vault/vault"
	"github.com/ethereum/go-ethereum/common"
)

// statusFor maps the vault error taxonomy onto HTTP status codes, so
// automated keepers can tell transient conditions from permanent ones.
func statusFor(err error) int {
	var (
		validationErr   *vault.ValidationError
		lengthErr       *depositdata.InvalidLengthError
		authErr         *vault.AuthorizationError
		stateErr        *vault.StateViolationError
		cooldownErr     *vault.CooldownError
		authenticityErr *vault.AuthenticityError
		externalErr     *vault.ExternalCallError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &lengthErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.As(err, &stateErr), errors.As(err, &cooldownErr):
		return http.StatusConflict
	case errors.As(err, &authenticityErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &externalErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeVaultError reports a failed vault transition with the guard that
// failed, never a generic rejection.
func writeVaultError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseAddress decodes a 0x-prefixed execution address, mirroring what
// beacon nodes accept.
func parseAddress(s string) (common.Address, error) {
	if !strings.HasPrefix(s, "0x") {
		return common.Address{}, fmt.Errorf("address must be 0x-prefixed")
	}
	var addr common.Address
	count, err := hex.Decode(addr[:], []byte(s[2:]))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid address")
	}
	if count != len(addr) {
		return common.Address{}, fmt.Errorf("invalid address length")
	}
	return addr, nil
}

// parseBytes decodes a 0x-prefixed hex field of any length. Length guards
// belong to the vault, not the transport.
func parseBytes(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, fmt.Errorf("value must be 0x-prefixed")
	}
	out, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("invalid hex value")
	}
	return out, nil
}

func parseRequestID(r *http.Request) (vault.RequestID, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid request id")
	}
	return vault.RequestID(id), nil
}

type depositResponse struct {
	ID                    uint64 `json:"id"`
	State                 string `json:"state"`
	Owner                 string `json:"owner"`
	WithdrawalAddress     string `json:"withdrawal_address"`
	WithdrawalCredentials string `json:"withdrawal_credentials"`
	Pubkey                string `json:"pubkey,omitempty"`
	Signature             string `json:"signature,omitempty"`
	DepositDataRoot       string `json:"deposit_data_root,omitempty"`
	Operator              string `json:"operator,omitempty"`
	AmountGwei            uint64 `json:"amount_gwei"`
	ExitEpoch             uint64 `json:"exit_epoch,omitempty"`
	CreatedAt             string `json:"created_at"`
	ConfirmedAt           string `json:"confirmed_at,omitempty"`
}

func newDepositResponse(record vault.DepositRecord) depositResponse {
	out := depositResponse{
		ID:                    uint64(record.ID),
		State:                 record.State.String(),
		Owner:                 record.Owner.Hex(),
		WithdrawalAddress:     record.WithdrawalAddress.Hex(),
		WithdrawalCredentials: "0x" + hex.EncodeToString(record.WithdrawalCredentials[:]),
		AmountGwei:            uint64(record.Amount),
		ExitEpoch:             uint64(record.ExitEpoch),
		CreatedAt:             record.CreatedAt.UTC().Format(time.RFC3339),
	}
	if record.State != vault.StateRequested {
		out.Pubkey = record.Pubkey.String()
		out.Signature = record.Signature.String()
		out.Operator = record.Operator.Hex()
	}
	if !record.ConfirmedAt.IsZero() {
		out.ConfirmedAt = record.ConfirmedAt.UTC().Format(time.RFC3339)
		out.DepositDataRoot = record.CommittedRoot.String()
	}
	return out
}

type requestResponse struct {
	ID          uint64 `json:"id"`
	Kind        string `json:"kind"`
	State       string `json:"state"`
	Owner       string `json:"owner"`
	Controller  string `json:"controller"`
	AmountGwei  uint64 `json:"amount_gwei"`
	ValidatorID uint64 `json:"validator_id"`
	ExitEpoch   uint64 `json:"exit_epoch,omitempty"`
	RequestedAt string `json:"requested_at"`
}

func newRequestResponse(request vault.QueueRequest) requestResponse {
	return requestResponse{
		ID:          uint64(request.ID),
		Kind:        request.Kind.String(),
		State:       request.State.String(),
		Owner:       request.Owner.Hex(),
		Controller:  request.Controller.Hex(),
		AmountGwei:  uint64(request.Amount),
		ValidatorID: uint64(request.ValidatorID),
		ExitEpoch:   uint64(request.ExitEpoch),
		RequestedAt: request.RequestedAt.UTC().Format(time.RFC3339),
	}
}
