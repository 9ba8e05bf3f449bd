package handlers

import (
	"log/slog"
	"net/http"

	"github.com/EthStaker/staking-vault/vault"
)

const (
	GetLedgerPattern       = "GET /api/v1/ledger"
	GetOperatorsPattern    = "GET /api/v1/operators"
	UpdateOperatorsPattern = "POST /api/v1/operators"
)

var _ Handler = (*LedgerHandler)(nil)

// LedgerHandler reports the aggregate custody counters.
type LedgerHandler struct {
	logger *slog.Logger
	vault  *vault.Vault
}

func NewLedgerHandler(logger *slog.Logger, v *vault.Vault) Handler {
	return &LedgerHandler{
		logger: logger.With("component", "ledger-handler"),
		vault:  v,
	}
}

func (h *LedgerHandler) Pattern() string {
	return GetLedgerPattern
}

func (h *LedgerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.vault.Totals())
}

var _ Handler = (*GetOperatorsHandler)(nil)

type GetOperatorsHandler struct {
	logger *slog.Logger
	vault  *vault.Vault
}

func NewGetOperatorsHandler(logger *slog.Logger, v *vault.Vault) Handler {
	return &GetOperatorsHandler{
		logger: logger.With("component", "get-operators-handler"),
		vault:  v,
	}
}

func (h *GetOperatorsHandler) Pattern() string {
	return GetOperatorsPattern
}

func (h *GetOperatorsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	operators := h.vault.Operators()
	out := make([]string, 0, len(operators))
	for _, operator := range operators {
		out = append(out, operator.Hex())
	}
	writeJSON(w, http.StatusOK, map[string][]string{"operators": out})
}

var _ Handler = (*UpdateOperatorsHandler)(nil)

// UpdateOperatorsHandler mutates the operator allow-list. The vault itself
// enforces that only the owner may do this.
type UpdateOperatorsHandler struct {
	logger *slog.Logger
	vault  *vault.Vault
}

func NewUpdateOperatorsHandler(logger *slog.Logger, v *vault.Vault) Handler {
	return &UpdateOperatorsHandler{
		logger: logger.With("component", "update-operators-handler"),
		vault:  v,
	}
}

func (h *UpdateOperatorsHandler) Pattern() string {
	return UpdateOperatorsPattern
}

func (h *UpdateOperatorsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor    string `json:"actor"`
		Operator string `json:"operator"`
		Enabled  bool   `json:"enabled"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor, err := parseAddress(body.Actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid actor address")
		return
	}
	operator, err := parseAddress(body.Operator)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid operator address")
		return
	}

	if err := h.vault.SetOperator(actor, operator, body.Enabled); err != nil {
		h.logger.Debug("failed to update operators", "actor", body.Actor, "error", err)
		writeVaultError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
