package handlers

import (
	"log/slog"
	"net/http"

	"github.com/EthStaker/staking-vault/beacon"
	"github.com/EthStaker/staking-vault/vault"
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

const (
	CreateRedemptionPattern = "POST /api/v1/redemptions"
	RequestActionPattern    = "POST /api/v1/requests/{id}/{action}"
	GetRequestPattern       = "GET /api/v1/requests/{id}"
)

var _ Handler = (*CreateRedemptionHandler)(nil)

// CreateRedemptionHandler locks part of a validator claim and opens a
// pending redemption.
type CreateRedemptionHandler struct {
	logger *slog.Logger
	vault  *vault.Vault
}

func NewCreateRedemptionHandler(logger *slog.Logger, v *vault.Vault) Handler {
	return &CreateRedemptionHandler{
		logger: logger.With("component", "create-redemption-handler"),
		vault:  v,
	}
}

func (h *CreateRedemptionHandler) Pattern() string {
	return CreateRedemptionPattern
}

func (h *CreateRedemptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Owner       string `json:"owner"`
		ValidatorID uint64 `json:"validator_id"`
		AmountGwei  uint64 `json:"amount_gwei"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := parseAddress(body.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid owner address")
		return
	}

	id, err := h.vault.RequestRedeem(owner, vault.RequestID(body.ValidatorID), phase0.Gwei(body.AmountGwei))
	if err != nil {
		h.logger.Debug("failed to request redemption", "validator_id", body.ValidatorID, "error", err)
		writeVaultError(w, err)
		return
	}

	request, _ := h.vault.Request(id)
	writeJSON(w, http.StatusCreated, newRequestResponse(request))
}

var _ Handler = (*RequestActionHandler)(nil)

// RequestActionHandler advances one queue request: process, claim or
// cancel. Process dispatches on the request kind; for redemptions without
// an explicit exit epoch it falls back to what the beacon observer knows
// about the linked validator.
type RequestActionHandler struct {
	logger *slog.Logger
	vault  *vault.Vault
	beacon beacon.ValidatorProvider
}

func NewRequestActionHandler(logger *slog.Logger, v *vault.Vault, provider beacon.ValidatorProvider) Handler {
	return &RequestActionHandler{
		logger: logger.With("component", "request-action-handler"),
		vault:  v,
		beacon: provider,
	}
}

func (h *RequestActionHandler) Pattern() string {
	return RequestActionPattern
}

func (h *RequestActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := parseRequestID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	request, ok := h.vault.Request(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	action := r.PathValue("action")
	switch action {
	case "process":
		err = h.process(r, request)
	case "claim":
		err = h.claim(r, request)
	case "cancel":
		err = h.cancel(r, request)
	default:
		writeError(w, http.StatusNotFound, "Unknown action")
		return
	}
	if err != nil {
		h.logger.Debug("request action failed", "id", uint64(id), "action", action, "error", err)
		writeVaultError(w, err)
		return
	}

	request, _ = h.vault.Request(id)
	writeJSON(w, http.StatusOK, newRequestResponse(request))
}

func (h *RequestActionHandler) process(r *http.Request, request vault.QueueRequest) error {
	var body struct {
		Keeper    string  `json:"keeper"`
		ExitEpoch *uint64 `json:"exit_epoch"`
	}
	if err := decodeBody(r, &body); err != nil {
		return &vault.ValidationError{Field: "body", Reason: err.Error()}
	}
	keeper, err := parseAddress(body.Keeper)
	if err != nil {
		return &vault.ValidationError{Field: "keeper", Reason: err.Error()}
	}

	if request.Kind == vault.KindDeposit {
		return h.vault.ProcessValidatorDeposit(keeper, request.ID)
	}

	var exitEpoch phase0.Epoch
	switch {
	case body.ExitEpoch != nil:
		exitEpoch = phase0.Epoch(*body.ExitEpoch)
	case h.beacon != nil:
		record, ok := h.vault.Record(request.ValidatorID)
		if !ok {
			return &vault.ValidationError{Field: "exit_epoch", Reason: "required: linked validator is unknown"}
		}
		epoch, exited := h.beacon.ExitEpoch(record.Pubkey)
		if !exited {
			return &vault.ValidationError{Field: "exit_epoch", Reason: "required: the consensus layer reports no exit yet"}
		}
		exitEpoch = epoch
	default:
		return &vault.ValidationError{Field: "exit_epoch", Reason: "required"}
	}
	return h.vault.ProcessRedeem(keeper, request.ID, exitEpoch)
}

func (h *RequestActionHandler) claim(r *http.Request, request vault.QueueRequest) error {
	var body struct {
		Actor string `json:"actor"`
	}
	if err := decodeBody(r, &body); err != nil {
		return &vault.ValidationError{Field: "body", Reason: err.Error()}
	}
	actor, err := parseAddress(body.Actor)
	if err != nil {
		return &vault.ValidationError{Field: "actor", Reason: err.Error()}
	}
	if request.Kind == vault.KindDeposit {
		return h.vault.ClaimStake(actor, request.ID)
	}
	return h.vault.ClaimRedeem(r.Context(), actor, request.ID)
}

func (h *RequestActionHandler) cancel(r *http.Request, request vault.QueueRequest) error {
	var body struct {
		Actor string `json:"actor"`
	}
	if err := decodeBody(r, &body); err != nil {
		return &vault.ValidationError{Field: "body", Reason: err.Error()}
	}
	actor, err := parseAddress(body.Actor)
	if err != nil {
		return &vault.ValidationError{Field: "actor", Reason: err.Error()}
	}
	return h.vault.CancelRedeem(actor, request.ID)
}

var _ Handler = (*GetRequestHandler)(nil)

type GetRequestHandler struct {
	logger *slog.Logger
	vault  *vault.Vault
}

func NewGetRequestHandler(logger *slog.Logger, v *vault.Vault) Handler {
	return &GetRequestHandler{
		logger: logger.With("component", "get-request-handler"),
		vault:  v,
	}
}

func (h *GetRequestHandler) Pattern() string {
	return GetRequestPattern
}

func (h *GetRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := parseRequestID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	request, ok := h.vault.Request(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newRequestResponse(request))
}
