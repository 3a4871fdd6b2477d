package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/client"
	"github.com/AlexZinkM/allowance-gate/internal/model"
)

const TxExplainTool = "tx_explain.deep"

// Explainer fetches and decodes a confirmed transaction. *client.SolanaClient implements it.
type Explainer interface {
	ExplainTransaction(ctx context.Context, sig solana.Signature) (*model.TransactionExplanation, error)
}

type explainInput struct {
	Signature string `json:"signature"`
}

// TokenChange is one balance movement in a TxExplainResult.
type TokenChange struct {
	Owner     string                  `json:"owner"`
	Token     string                  `json:"token"`
	Change    string                  `json:"change"`
	Direction model.TransferDirection `json:"direction"`
}

// TxExplainResult is the tx_explain.deep output.
type TxExplainResult struct {
	Signature        string        `json:"signature"`
	Status           string        `json:"status"`
	Slot             uint64        `json:"slot"`
	BlockTime        string        `json:"blockTime,omitempty"`
	Summary          string        `json:"summary"`
	TokenChanges     []TokenChange `json:"tokenChanges"`
	ProgramsInvolved []string      `json:"programsInvolved"`
	Memos            []string      `json:"memos,omitempty"`
	RiskAssessment   string        `json:"riskAssessment"`
	GasUsed          string        `json:"gasUsed"`
	Notes            string        `json:"notes"`
}

const explainSchema = `{
	"type": "object",
	"required": ["signature"],
	"properties": {
		"signature": {"type": "string", "minLength": 64, "maxLength": 90}
	}
}`

// ProgramLabels names well-known programs in explanations.
type ProgramLabels map[string]string

// DefaultProgramLabels covers the programs this service itself uses.
func DefaultProgramLabels(vaultProgram string) ProgramLabels {
	labels := ProgramLabels{
		solana.SystemProgramID.String():                    "System Program",
		solana.TokenProgramID.String():                     "Token Program",
		solana.Token2022ProgramID.String():                 "Token-2022 Program",
		solana.SPLAssociatedTokenAccountProgramID.String(): "Associated Token Program",
		solana.ComputeBudget.String():                      "Compute Budget",
		client.MemoProgramID.String():                      "Memo Program",
	}
	if vaultProgram != "" {
		labels[vaultProgram] = "Allowance Vault"
	}
	return labels
}

// TxExplain summarises a transaction's balance movements and invoked programs.
// Transactions touching only labelled programs are assessed low risk.
func TxExplain(e Explainer, labels ProgramLabels) Tool {
	return Tool{
		Name:        TxExplainTool,
		Description: "Explain a confirmed Solana transaction",
		Schema:      explainSchema,
		Handler: func(ctx context.Context, body json.RawMessage) (any, error) {
			var in explainInput
			if err := json.Unmarshal(body, &in); err != nil {
				return nil, apperr.Validation("invalid request body")
			}
			sig, err := solana.SignatureFromBase58(in.Signature)
			if err != nil {
				return nil, apperr.Validation("invalid signature")
			}

			tx, err := e.ExplainTransaction(ctx, sig)
			if err != nil {
				if errors.Is(err, client.ErrTransactionNotFound) {
					return nil, apperr.Wrap(apperr.KindNotFound, "transaction not found", err)
				}
				return nil, apperr.Upstream("solana rpc unavailable", err)
			}
			return explain(tx, labels), nil
		},
	}
}

func explain(tx *model.TransactionExplanation, labels ProgramLabels) *TxExplainResult {
	res := &TxExplainResult{
		Signature:        tx.Signature,
		Status:           tx.Status,
		Slot:             tx.Slot,
		TokenChanges:     make([]TokenChange, 0, len(tx.BalanceChanges)),
		ProgramsInvolved: make([]string, 0, len(tx.ProgramsInvolved)),
		Memos:            tx.Memos,
		GasUsed:          tx.FeeSOL + " SOL",
	}
	if tx.BlockTime != nil {
		res.BlockTime = tx.BlockTime.Format(time.RFC3339)
	}

	for _, c := range tx.BalanceChanges {
		res.TokenChanges = append(res.TokenChanges, TokenChange(c))
	}

	unknown := 0
	for _, id := range tx.ProgramsInvolved {
		if label, ok := labels[id]; ok {
			res.ProgramsInvolved = append(res.ProgramsInvolved, label)
			continue
		}
		unknown++
		res.ProgramsInvolved = append(res.ProgramsInvolved, id)
	}

	switch {
	case tx.Status == "failed":
		res.RiskAssessment = "low"
		res.Notes = "Transaction failed; only the fee was charged."
	case unknown > 0:
		res.RiskAssessment = "medium"
		res.Notes = fmt.Sprintf("Invokes %d unrecognised program(s); review before signing similar transactions.", unknown)
	default:
		res.RiskAssessment = "low"
		res.Notes = "Only well-known programs were invoked."
	}
	res.Summary = summarize(tx, res.ProgramsInvolved)
	return res
}

func summarize(tx *model.TransactionExplanation, programs []string) string {
	var tokens []string
	seen := make(map[string]bool)
	for _, c := range tx.BalanceChanges {
		if !seen[c.Token] {
			seen[c.Token] = true
			tokens = append(tokens, shortToken(c.Token))
		}
	}
	if len(tokens) == 0 {
		return fmt.Sprintf("%s transaction invoking %s with no balance changes", tx.Status, strings.Join(programs, ", "))
	}
	return fmt.Sprintf("%s transaction moving %s via %s", tx.Status, strings.Join(tokens, ", "), strings.Join(programs, ", "))
}

func shortToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:4] + "…" + token[len(token)-4:]
}
