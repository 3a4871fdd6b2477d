package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/common"
	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/vault"
)

const (
	YieldAgentTool = "yield_agent.run"

	defaultSuggestedSOL = "0.1"
	projectionWindow    = 30 * 24 * time.Hour
)

// YieldSource reads vault APY and positions. *vault.Reader implements it.
type YieldSource interface {
	ApyBps(ctx context.Context) uint64
	Position(ctx context.Context, owner solana.PublicKey) (*model.Position, error)
}

type yieldInput struct {
	Amount string `json:"amount"`
	Owner  string `json:"owner"`
}

// YieldResult is the yield_agent.run output.
type YieldResult struct {
	Recommendation    string          `json:"recommendation"`
	SuggestedAmount   string          `json:"suggestedAmount"`
	CurrentApy        string          `json:"currentApy"`
	ProjectedYield30d string          `json:"projectedYield30d"`
	RiskLevel         string          `json:"riskLevel"`
	Notes             string          `json:"notes"`
	Position          *PositionReport `json:"position,omitempty"`
}

// PositionReport is an owner's current vault position in SOL.
type PositionReport struct {
	Deposited    string `json:"deposited"`
	PendingYield string `json:"pendingYield"`
	Since        string `json:"since,omitempty"`
}

const yieldSchema = `{
	"type": "object",
	"properties": {
		"amount": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"},
		"owner":  {"type": "string", "minLength": 32, "maxLength": 44}
	}
}`

// YieldAgent recommends a vault deposit sized by the request, projecting 30 days of
// yield at the vault's current APY.
func YieldAgent(src YieldSource, now func() time.Time) Tool {
	return Tool{
		Name:        YieldAgentTool,
		Description: "Vault yield recommendation with a 30 day projection",
		Schema:      yieldSchema,
		Handler: func(ctx context.Context, body json.RawMessage) (any, error) {
			var in yieldInput
			if err := json.Unmarshal(body, &in); err != nil {
				return nil, apperr.Validation("invalid request body")
			}
			if in.Amount == "" {
				in.Amount = defaultSuggestedSOL
			}
			lamports, err := common.SOLToLamports(in.Amount)
			if err != nil {
				return nil, apperr.Validation("invalid amount")
			}

			apy := src.ApyBps(ctx)
			projected := vault.CalculateYield(lamports, apy, 0, int64(projectionWindow/time.Second))

			res := &YieldResult{
				Recommendation:    "deposit",
				SuggestedAmount:   in.Amount,
				CurrentApy:        FormatApy(apy),
				ProjectedYield30d: common.TrimUnits(projected, common.SOLDecimals) + " SOL",
				RiskLevel:         "low",
				Notes:             "Single-asset SOL vault. Yield accrues linearly and is paid on withdrawal.",
			}

			if in.Owner != "" {
				owner, err := solana.PublicKeyFromBase58(in.Owner)
				if err != nil {
					return nil, apperr.Validation("invalid owner")
				}
				pos, err := src.Position(ctx, owner)
				if err != nil {
					return nil, apperr.Upstream("solana rpc unavailable", err)
				}
				if pos.Amount > 0 {
					res.Recommendation = "hold"
					res.Notes = "Existing position keeps accruing. Withdraw to collect pending yield."
					res.Position = &PositionReport{
						Deposited:    common.TrimUnits(pos.Amount, common.SOLDecimals),
						PendingYield: common.TrimUnits(vault.PendingYield(pos, apy, now()), common.SOLDecimals),
						Since:        time.Unix(pos.StartTime, 0).UTC().Format(time.RFC3339),
					}
				}
			}
			return res, nil
		},
	}
}

// FormatApy renders basis points as a percentage with two decimals, e.g. 500 -> "5.00%".
func FormatApy(bps uint64) string {
	return decimal.New(int64(bps), -2).StringFixed(2) + "%"
}
