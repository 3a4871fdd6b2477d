package agent

import (
	"context"
	"sort"
	"strings"

	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// RuleAssistant answers from keyword rules. It never fails.
type RuleAssistant struct{}

var intentKeywords = []struct {
	intent   model.Intent
	keywords []string
}{
	{model.IntentTxExplain, []string{"explain", "what happened in"}},
	{model.IntentSwap, []string{"swap", "exchange", "convert"}},
	{model.IntentVaultDeposit, []string{"deposit", "stake"}},
	{model.IntentVaultWithdraw, []string{"withdraw", "unstake"}},
	{model.IntentRecentTx, []string{"recent", "history", "transactions"}},
	{model.IntentBalances, []string{"balance", "how much", "holdings"}},
}

// Classify maps a message to an intent by keyword.
func Classify(message string) model.Intent {
	lower := strings.ToLower(message)
	for _, rule := range intentKeywords {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent
			}
		}
	}
	return model.IntentUnknown
}

func (RuleAssistant) Respond(_ context.Context, req *model.AgentRequest) (*model.AgentResponse, error) {
	intent := Classify(req.Message)
	resp := &model.AgentResponse{Intent: intent}

	switch intent {
	case model.IntentBalances:
		resp.AssistantText = balancesText(req.Context)
	case model.IntentRecentTx:
		if req.Context != nil && len(req.Context.RecentTx) > 0 {
			resp.AssistantText = "Your most recent transaction is " + req.Context.RecentTx[0] + ". Ask me to explain it for a detailed breakdown."
		} else {
			resp.AssistantText = "I don't see any recent transactions for this wallet."
		}
	case model.IntentSwap:
		resp.AssistantText = "I can prepare a SOL/USDC swap. You will review and sign it in your wallet."
		resp.ClarifyingQuestion = "How much would you like to swap, and in which direction?"
	case model.IntentVaultDeposit:
		resp.AssistantText = "Deposits go into the yield vault and accrue at the current APY."
		resp.ClarifyingQuestion = "How much SOL would you like to deposit?"
	case model.IntentVaultWithdraw:
		resp.AssistantText = "Withdrawals return your principal plus accrued yield."
		resp.ClarifyingQuestion = "How much SOL would you like to withdraw?"
	case model.IntentTxExplain:
		resp.AssistantText = "A deep transaction explanation is a paid tool call. Send the transaction signature to run it."
	default:
		resp.AssistantText = "I can show balances, explain transactions, quote swaps and manage vault deposits."
		resp.ClarifyingQuestion = "What would you like to do?"
	}
	return resp, nil
}

func balancesText(ctx *model.AgentContext) string {
	if ctx == nil || len(ctx.Balances) == 0 {
		return "I don't have balance information for this wallet yet."
	}
	tokens := make([]string, 0, len(ctx.Balances))
	for token := range ctx.Balances {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	parts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		parts = append(parts, ctx.Balances[token]+" "+token)
	}
	return "Your wallet holds " + strings.Join(parts, ", ") + "."
}
