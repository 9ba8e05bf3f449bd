package handlers

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/EthStaker/staking-vault/beacon"
	"github.com/EthStaker/staking-vault/vault"
	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

const ByPubkeyPattern = "GET /api/v1/validator/{public_key}"

var _ Handler = (*ValidatorHandler)(nil)

// ValidatorHandler joins the consensus-layer view of a validator with the
// vault record that funded it.
type ValidatorHandler struct {
	logger *slog.Logger
	beacon beacon.ValidatorProvider
	vault  *vault.Vault
}

func NewValidatorHandler(logger *slog.Logger, provider beacon.ValidatorProvider, v *vault.Vault) Handler {
	logger = logger.With("component", "validator-handler")
	return &ValidatorHandler{
		logger: logger,
		beacon: provider,
		vault:  v,
	}
}

func (h *ValidatorHandler) Pattern() string {
	return ByPubkeyPattern
}

type validatorResponse struct {
	Validator *apiv1.Validator `json:"validator"`
	Activity  *beacon.Activity `json:"activity,omitempty"`
	Deposit   *depositResponse `json:"deposit,omitempty"`
}

func (h *ValidatorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	// Parse the public key from the request
	pubkeyString := r.PathValue("public_key")

	// There's no need to check for an empty public key string- the pattern doesn't match them.

	// For consistency with beacon nodes, ensure the public key is 0x-prefixed
	if !strings.HasPrefix(pubkeyString, "0x") {
		h.logger.Debug("received request with public key that is not 0x-prefixed", "public_key", pubkeyString)
		writeError(w, http.StatusBadRequest, "Public key must be 0x-prefixed")
		return
	}
	pubkeyString = pubkeyString[2:]

	var pubkey phase0.BLSPubKey
	pubkeyLength, err := hex.Decode(pubkey[:], []byte(pubkeyString))
	if err != nil {
		h.logger.Debug("received request with invalid public key", "public_key", pubkeyString, "error", err)
		writeError(w, http.StatusBadRequest, "Invalid public key")
		return
	}
	if pubkeyLength != 48 {
		h.logger.Debug("received request with invalid public key length", "public_key", pubkeyString, "length", pubkeyLength)
		writeError(w, http.StatusBadRequest, "Invalid public key length")
		return
	}

	// Lookup the validator
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	validator, err := h.beacon.LookupValidator(ctx, pubkey)
	if err != nil {
		h.logger.Debug("failed to lookup validator", "public_key", pubkeyString, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to lookup validator")
		return
	}

	record, haveRecord := h.vault.RecordByPubkey(pubkey)
	if validator == nil && !haveRecord {
		h.logger.Debug("validator not found", "public_key", pubkeyString)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	response := validatorResponse{
		Validator: validator,
	}
	if activity, ok := h.beacon.ValidatorActivity(pubkey); ok {
		response.Activity = &activity
	}
	if haveRecord {
		deposit := newDepositResponse(record)
		response.Deposit = &deposit
	}
	writeJSON(w, http.StatusOK, response)
}
