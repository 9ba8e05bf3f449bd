package handlers

import (
	"log/slog"
	"net/http"

	"github.com/EthStaker/staking-vault/vault"
	"github.com/attestantio/go-eth2-client/spec/phase0"
)

const (
	CreateDepositPattern   = "POST /api/v1/deposits"
	DepositActionPattern   = "POST /api/v1/deposits/{id}/{action}"
	GetDepositPattern      = "GET /api/v1/deposits/{id}"
	DepositsByOwnerPattern = "GET /api/v1/owners/{address}/deposits"
)

var _ Handler = (*CreateDepositHandler)(nil)

// CreateDepositHandler opens a deposit record for an exact stake-unit
// payment.
type CreateDepositHandler struct {
	logger *slog.Logger
	vault  *vault.Vault
}

func NewCreateDepositHandler(logger *slog.Logger, v *vault.Vault) Handler {
	return &CreateDepositHandler{
		logger: logger.With("component", "create-deposit-handler"),
		vault:  v,
	}
}

func (h *CreateDepositHandler) Pattern() string {
	return CreateDepositPattern
}

func (h *CreateDepositHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Depositor         string `json:"depositor"`
		WithdrawalAddress string `json:"withdrawal_address"`
		Compounding       bool   `json:"compounding"`
		AmountGwei        uint64 `json:"amount_gwei"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.logger.Debug("received invalid create request", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	depositor, err := parseAddress(body.Depositor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid depositor address")
		return
	}
	withdrawalAddress, err := parseAddress(body.WithdrawalAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid withdrawal address")
		return
	}

	id, err := h.vault.Create(depositor, withdrawalAddress, body.Compounding, phase0.Gwei(body.AmountGwei))
	if err != nil {
		h.logger.Debug("failed to create deposit", "depositor", body.Depositor, "error", err)
		writeVaultError(w, err)
		return
	}

	record, _ := h.vault.Record(id)
	writeJSON(w, http.StatusCreated, newDepositResponse(record))
}

var _ Handler = (*DepositActionHandler)(nil)

// DepositActionHandler advances one deposit record through its lifecycle:
// assign, confirm, finalize, cancel or transfer.
type DepositActionHandler struct {
	logger *slog.Logger
	vault  *vault.Vault
}

func NewDepositActionHandler(logger *slog.Logger, v *vault.Vault) Handler {
	return &DepositActionHandler{
		logger: logger.With("component", "deposit-action-handler"),
		vault:  v,
	}
}

func (h *DepositActionHandler) Pattern() string {
	return DepositActionPattern
}

func (h *DepositActionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := parseRequestID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	action := r.PathValue("action")
	switch action {
	case "assign":
		err = h.assign(r, id)
	case "confirm":
		err = h.confirm(r, id)
	case "finalize":
		err = h.finalize(r, id)
	case "cancel":
		err = h.cancel(r, id)
	case "transfer":
		err = h.transfer(r, id)
	default:
		writeError(w, http.StatusNotFound, "Unknown action")
		return
	}
	if err != nil {
		h.logger.Debug("deposit action failed", "id", uint64(id), "action", action, "error", err)
		writeVaultError(w, err)
		return
	}

	record, ok := h.vault.Record(id)
	if !ok {
		// Cancelled records are deleted; report the surviving queue entry.
		request, _ := h.vault.Request(id)
		writeJSON(w, http.StatusOK, newRequestResponse(request))
		return
	}
	writeJSON(w, http.StatusOK, newDepositResponse(record))
}

func (h *DepositActionHandler) assign(r *http.Request, id vault.RequestID) error {
	var body struct {
		Operator  string `json:"operator"`
		Pubkey    string `json:"pubkey"`
		Signature string `json:"signature"`
	}
	if err := decodeBody(r, &body); err != nil {
		return &vault.ValidationError{Field: "body", Reason: err.Error()}
	}
	operator, err := parseAddress(body.Operator)
	if err != nil {
		return &vault.ValidationError{Field: "operator", Reason: err.Error()}
	}
	pubkey, err := parseBytes(body.Pubkey)
	if err != nil {
		return &vault.ValidationError{Field: "pubkey", Reason: err.Error()}
	}
	signature, err := parseBytes(body.Signature)
	if err != nil {
		return &vault.ValidationError{Field: "signature", Reason: err.Error()}
	}
	return h.vault.Assign(operator, id, pubkey, signature)
}

func (h *DepositActionHandler) confirm(r *http.Request, id vault.RequestID) error {
	var body struct {
		Actor           string `json:"actor"`
		DepositDataRoot string `json:"deposit_data_root"`
	}
	if err := decodeBody(r, &body); err != nil {
		return &vault.ValidationError{Field: "body", Reason: err.Error()}
	}
	actor, err := parseAddress(body.Actor)
	if err != nil {
		return &vault.ValidationError{Field: "actor", Reason: err.Error()}
	}
	raw, err := parseBytes(body.DepositDataRoot)
	if err != nil {
		return &vault.ValidationError{Field: "deposit_data_root", Reason: err.Error()}
	}
	if len(raw) != 32 {
		return &vault.ValidationError{Field: "deposit_data_root", Reason: "expected 32 bytes"}
	}
	var root phase0.Root
	copy(root[:], raw)
	return h.vault.Confirm(actor, id, root)
}

func (h *DepositActionHandler) finalize(r *http.Request, id vault.RequestID) error {
	var body struct {
		Operator string `json:"operator"`
	}
	if err := decodeBody(r, &body); err != nil {
		return &vault.ValidationError{Field: "body", Reason: err.Error()}
	}
	operator, err := parseAddress(body.Operator)
	if err != nil {
		return &vault.ValidationError{Field: "operator", Reason: err.Error()}
	}
	return h.vault.Finalize(r.Context(), operator, id)
}

func (h *DepositActionHandler) cancel(r *http.Request, id vault.RequestID) error {
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
	return h.vault.Cancel(r.Context(), actor, id)
}

func (h *DepositActionHandler) transfer(r *http.Request, id vault.RequestID) error {
	var body struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := decodeBody(r, &body); err != nil {
		return &vault.ValidationError{Field: "body", Reason: err.Error()}
	}
	from, err := parseAddress(body.From)
	if err != nil {
		return &vault.ValidationError{Field: "from", Reason: err.Error()}
	}
	to, err := parseAddress(body.To)
	if err != nil {
		return &vault.ValidationError{Field: "to", Reason: err.Error()}
	}
	return h.vault.TransferHandle(from, to, id)
}

var _ Handler = (*GetDepositHandler)(nil)

type GetDepositHandler struct {
	logger *slog.Logger
	vault  *vault.Vault
}

func NewGetDepositHandler(logger *slog.Logger, v *vault.Vault) Handler {
	return &GetDepositHandler{
		logger: logger.With("component", "get-deposit-handler"),
		vault:  v,
	}
}

func (h *GetDepositHandler) Pattern() string {
	return GetDepositPattern
}

func (h *GetDepositHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := parseRequestID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, ok := h.vault.Record(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newDepositResponse(record))
}

var _ Handler = (*DepositsByOwnerHandler)(nil)

// DepositsByOwnerHandler lists the deposit records whose handle an address
// currently holds.
type DepositsByOwnerHandler struct {
	logger *slog.Logger
	vault  *vault.Vault
}

func NewDepositsByOwnerHandler(logger *slog.Logger, v *vault.Vault) Handler {
	return &DepositsByOwnerHandler{
		logger: logger.With("component", "deposits-by-owner-handler"),
		vault:  v,
	}
}

func (h *DepositsByOwnerHandler) Pattern() string {
	return DepositsByOwnerPattern
}

func (h *DepositsByOwnerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(r.PathValue("address"))
	if err != nil {
		h.logger.Debug("received invalid owner address", "address", r.PathValue("address"), "error", err)
		writeError(w, http.StatusBadRequest, "Invalid owner address")
		return
	}

	records := h.vault.RecordsByOwner(owner)
	out := make([]depositResponse, 0, len(records))
	for _, record := range records {
		out = append(out, newDepositResponse(record))
	}
	writeJSON(w, http.StatusOK, out)
}
