package agent

import (
	"regexp"
	"strings"

	"github.com/AlexZinkM/allowance-gate/internal/model"
)

const (
	defaultSlippageBps = 50
	// nativeMint is the wrapped SOL mint used by swap routers for SOL legs.
	nativeMint = "So11111111111111111111111111111111111111112"
)

var (
	swapPattern  = regexp.MustCompile(`(?i)\bswap\s+([0-9]*\.?[0-9]+)\s*(sol|usdc)(?:\s*(?:to|->)\s*(sol|usdc))?`)
	vaultPattern = regexp.MustCompile(`(?i)\b(deposit|withdraw)\s+([0-9]*\.?[0-9]+)\s*sol\b`)
)

// SwapProposal extracts "swap <amount> <SOL|USDC> [to <SOL|USDC>]" from message.
// The output token defaults to the other one; same-token swaps yield nil.
func SwapProposal(message, usdcMint string) *model.ActionProposal {
	m := swapPattern.FindStringSubmatch(message)
	if m == nil {
		return nil
	}
	amount := m[1]
	from := strings.ToUpper(m[2])
	to := strings.ToUpper(m[3])
	if to == "" {
		to = "SOL"
		if from == "SOL" {
			to = "USDC"
		}
	}
	if from == to {
		return nil
	}

	mint := func(symbol string) string {
		if symbol == "SOL" {
			return nativeMint
		}
		return usdcMint
	}
	return &model.ActionProposal{
		Type:    model.ProposalSwap,
		Summary: "Swap " + amount + " " + from + " to " + to,
		Params: model.SwapParams{
			InputMint:   mint(from),
			OutputMint:  mint(to),
			Amount:      amount,
			SlippageBps: defaultSlippageBps,
		},
		RiskNotes: []string{"Review the exact amounts before signing in your wallet."},
		CTA:       model.CallToAction{Label: "Propose swap"},
	}
}

// VaultProposal extracts "deposit|withdraw <amount> SOL" from message.
func VaultProposal(message string) *model.ActionProposal {
	m := vaultPattern.FindStringSubmatch(message)
	if m == nil {
		return nil
	}
	action := strings.ToLower(m[1])
	amount := m[2]

	p := &model.ActionProposal{
		Type:    model.ProposalVaultDeposit,
		Summary: "Deposit " + amount + " SOL into yield vault",
		Params:  model.VaultParams{Amount: amount, Action: action},
		RiskNotes: []string{
			"Your funds will be moved to the vault program PDA.",
			"Yield accrues at the vault APY and is paid on withdrawal.",
		},
		CTA: model.CallToAction{Label: "Confirm Deposit"},
	}
	if action == "withdraw" {
		p.Type = model.ProposalVaultWithdraw
		p.Summary = "Withdraw " + amount + " SOL from yield vault"
		p.CTA.Label = "Confirm Withdraw"
	}
	return p
}
