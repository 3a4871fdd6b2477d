package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/config"
	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/payment"
)

const maxReceiptsLimit = 500

// ReceiptsHandler serves the receipt ledger and service health.
type ReceiptsHandler struct {
	ledger  payment.ReceiptLedger
	policy  string
	network model.Network
	pricing config.Pricing
	logger  *slog.Logger
}

func NewReceiptsHandler(ledger payment.ReceiptLedger, policy string, network model.Network, pricing config.Pricing, logger *slog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		ledger:  ledger,
		policy:  policy,
		network: network,
		pricing: pricing,
		logger:  logger,
	}
}

// List handles GET /receipts
// @Summary      List payment receipts
// @Description  Gets accepted payments, most recent first
// @Tags         payments
// @Produce      json
// @Param        limit  query     int  false  "Maximum receipts (default 50, max 500)"
// @Success      200  {object}  model.ReceiptsResponse
// @Failure      400  {object}  model.ErrorResponse
// @Router       /receipts [get]
func (h *ReceiptsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxReceiptsLimit {
			writeError(w, r, h.logger, apperr.Validation("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	receipts, err := h.ledger.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ReceiptsResponse{Receipts: receipts})
}

// Health handles GET /health
// @Summary      Health check
// @Description  Reports the active settlement policy, network and tool prices
// @Tags         system
// @Produce      json
// @Success      200  {object}  model.HealthResponse
// @Router       /health [get]
func (h *ReceiptsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{
		Status:  "ok",
		Policy:  h.policy,
		Network: h.network,
		Pricing: h.pricing,
	})
}
