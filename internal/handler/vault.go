package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// Swapper executes vault swaps.
type Swapper interface {
	Swap(ctx context.Context, req model.VaultSwapRequest) (*model.VaultSwapResponse, error)
	Status(ctx context.Context) (*model.VaultStatusResponse, error)
}

// VaultHandler serves the vault swap endpoints.
type VaultHandler struct {
	swapper Swapper
	logger  *slog.Logger
}

func NewVaultHandler(s Swapper, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{swapper: s, logger: logger}
}

// Swap handles POST /vault-swap
// @Summary      Swap against the vault
// @Description  Pays the counter-asset from the vault wallet at the reference SOL price and waits for confirmation
// @Tags         vault
// @Accept       json
// @Produce      json
// @Param        request  body      model.VaultSwapRequest  true  "Swap request"
// @Success      200  {object}  model.VaultSwapResponse
// @Failure      400  {object}  model.ErrorResponse
// @Failure      502  {object}  model.ErrorResponse
// @Failure      504  {object}  model.ErrorResponse
// @Router       /vault-swap [post]
func (h *VaultHandler) Swap(w http.ResponseWriter, r *http.Request) {
	var req model.VaultSwapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp, err := h.swapper.Swap(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "vault swap settled",
		"direction", resp.Direction, "input", resp.InputAmount, "output", resp.OutputAmount, "tx", resp.TxSignature)
	writeJSON(w, http.StatusOK, resp)
}

// Status handles GET /vault-swap
// @Summary      Vault status
// @Description  Gets vault address, SOL and USDC balances and the reference price
// @Tags         vault
// @Produce      json
// @Success      200  {object}  model.VaultStatusResponse
// @Failure      502  {object}  model.ErrorResponse
// @Failure      503  {object}  model.ErrorResponse
// @Router       /vault-swap [get]
func (h *VaultHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp, err := h.swapper.Status(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
