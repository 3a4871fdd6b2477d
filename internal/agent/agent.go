// Package agent turns chat messages into intents and user-confirmable action proposals.
package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/logging"
	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/session"
)

const fallbackText = "I'm having trouble processing that request. Could you try again?"

// Assistant drafts the conversational part of a response. An LLM-backed implementation
// lives outside this module; RuleAssistant is the built-in default.
type Assistant interface {
	Respond(ctx context.Context, req *model.AgentRequest) (*model.AgentResponse, error)
}

// Agent answers POST /agent.
type Agent struct {
	assistant Assistant
	sessions  *session.Store
	pricing   map[model.Intent]pricedTool
	usdcMint  string
	logger    *slog.Logger
}

type pricedTool struct {
	tool  string
	price string
}

// Option configures an Agent.
type Option func(*Agent)

// WithSessions records every exchange that carries a sessionId.
func WithSessions(s *session.Store) Option {
	return func(a *Agent) { a.sessions = s }
}

// WithToolPrice advertises that intent is served by a priced tool.
func WithToolPrice(intent model.Intent, tool, price string) Option {
	return func(a *Agent) { a.pricing[intent] = pricedTool{tool: tool, price: price} }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// New creates an agent. usdcMint is the mint used in swap proposals.
func New(assistant Assistant, usdcMint string, opts ...Option) *Agent {
	a := &Agent{
		assistant: assistant,
		pricing:   make(map[model.Intent]pricedTool),
		usdcMint:  usdcMint,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle validates req, asks the assistant for a reply and overrides intent and
// proposals with those extracted directly from the message. Assistant failures
// degrade to a generic reply.
func (a *Agent) Handle(ctx context.Context, req *model.AgentRequest) (*model.AgentResponse, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" || req.WalletPubkey == "" {
		return nil, apperr.Validation("Invalid request: walletPubkey and message are required")
	}
	if _, err := solana.PublicKeyFromBase58(req.WalletPubkey); err != nil {
		return nil, apperr.Validation("Invalid request: walletPubkey is not a valid address")
	}
	if req.Mode != "" && req.Mode != "chat" && req.Mode != "tool" {
		return nil, apperr.Validation("Invalid request: mode must be chat or tool")
	}

	resp, err := a.assistant.Respond(ctx, req)
	if err != nil || resp == nil || resp.AssistantText == "" {
		if err != nil {
			a.logger.WarnContext(ctx, "assistant failed", "error", err)
		}
		resp = &model.AgentResponse{AssistantText: fallbackText, Intent: model.IntentUnknown}
	}

	if p := SwapProposal(req.Message, a.usdcMint); p != nil {
		resp.Intent = model.IntentSwap
		resp.ActionProposals = []model.ActionProposal{*p}
	}
	if p := VaultProposal(req.Message); p != nil {
		resp.Intent = model.Intent(p.Type)
		resp.ActionProposals = []model.ActionProposal{*p}
	}
	if priced, ok := a.pricing[resp.Intent]; ok {
		resp.Payment = &model.PaymentInfo{Required: true, PriceUSDC: priced.price, Tool: priced.tool}
	}

	a.record(req, resp)
	return resp, nil
}

func (a *Agent) record(req *model.AgentRequest, resp *model.AgentResponse) {
	if a.sessions == nil || req.SessionID == "" {
		return
	}
	if _, err := a.sessions.Append(req.SessionID, model.RoleUser, req.Message); err != nil {
		a.logger.Debug("session not recorded", "sessionId", req.SessionID, "error", err)
		return
	}
	_, _ = a.sessions.Append(req.SessionID, model.RoleAssistant, resp.AssistantText)
}
