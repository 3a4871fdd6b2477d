package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/common"
	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/vault"
)

const (
	SwapAgentTool = "swap_agent.optimized"

	slippageBps = 50
)

// Quoter prices swaps. *vault.Executor implements it.
type Quoter interface {
	Quote(ctx context.Context, direction model.SwapDirection, amount string) (*vault.SwapQuote, error)
}

type swapInput struct {
	Direction model.SwapDirection `json:"direction"`
	Amount    string              `json:"amount"`
}

// SwapResult is the swap_agent.optimized output.
type SwapResult struct {
	RecommendedRoute string `json:"recommendedRoute"`
	InputAmount      string `json:"inputAmount"`
	ExpectedOutput   string `json:"expectedOutput"`
	MinimumOutput    string `json:"minimumOutput"`
	Price            string `json:"price"`
	PriceSource      string `json:"priceSource"`
	PriceImpact      string `json:"priceImpact"`
	Slippage         string `json:"slippage"`
	Analysis         string `json:"analysis"`
}

const swapSchema = `{
	"type": "object",
	"required": ["direction", "amount"],
	"properties": {
		"direction": {"type": "string", "enum": ["SOL_TO_USDC", "USDC_TO_SOL"]},
		"amount":    {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"}
	}
}`

// SwapAgent quotes a SOL/USDC swap through the vault at the reference price.
func SwapAgent(q Quoter) Tool {
	return Tool{
		Name:        SwapAgentTool,
		Description: "SOL/USDC vault swap quote with slippage bound",
		Schema:      swapSchema,
		Handler: func(ctx context.Context, body json.RawMessage) (any, error) {
			var in swapInput
			if err := json.Unmarshal(body, &in); err != nil {
				return nil, apperr.Validation("invalid request body")
			}
			quote, err := q.Quote(ctx, in.Direction, in.Amount)
			if err != nil {
				return nil, err
			}

			decimals, symbol := common.USDCDecimals, "USDC"
			if in.Direction == model.SwapUSDCToSOL {
				decimals, symbol = common.SOLDecimals, "SOL"
			}
			minimum := quote.OutputUnits * (10_000 - slippageBps) / 10_000

			analysis := "Vault fills at the reference price with no pool price impact."
			if quote.PriceSource == vault.SourceFallback {
				analysis = "Price feed unavailable; quote uses the configured fallback price."
			}
			return &SwapResult{
				RecommendedRoute: "Vault Direct",
				InputAmount:      quote.InputAmount,
				ExpectedOutput:   quote.OutputAmount,
				MinimumOutput:    common.TrimUnits(minimum, decimals) + " " + symbol,
				Price:            "$" + quote.Price.String(),
				PriceSource:      quote.PriceSource,
				PriceImpact:      "0.00%",
				Slippage:         fmt.Sprintf("%s%%", common.TrimUnits(slippageBps, 2)),
				Analysis:         analysis,
			}, nil
		},
	}
}
