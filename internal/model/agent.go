package model

// Intent classifies a user message.
type Intent string

const (
	IntentBalances      Intent = "BALANCES"
	IntentRecentTx      Intent = "RECENT_TX"
	IntentSwap          Intent = "SWAP"
	IntentVaultDeposit  Intent = "VAULT_DEPOSIT"
	IntentVaultWithdraw Intent = "VAULT_WITHDRAW"
	IntentTxExplain     Intent = "TX_EXPLAIN"
	IntentUnknown       Intent = "UNKNOWN"
)

// ProposalType is the kind of action an assistant proposes. Proposals are never executed
// server-side; the user signs them with their own wallet.
type ProposalType string

const (
	ProposalSwap          ProposalType = "SWAP"
	ProposalTransfer      ProposalType = "TRANSFER"
	ProposalVaultDeposit  ProposalType = "VAULT_DEPOSIT"
	ProposalVaultWithdraw ProposalType = "VAULT_WITHDRAW"
)

// SwapParams are the parameters of a SWAP proposal.
type SwapParams struct {
	InputMint   string `json:"inputMint"`
	OutputMint  string `json:"outputMint"`
	Amount      string `json:"amount"`
	SlippageBps int    `json:"slippageBps"`
}

// VaultParams are the parameters of a VAULT_DEPOSIT or VAULT_WITHDRAW proposal.
type VaultParams struct {
	Amount string `json:"amount"`
	Action string `json:"action"` // deposit | withdraw
}

// CallToAction labels the confirm button of a proposal.
type CallToAction struct {
	Label string `json:"label"`
}

// ActionProposal is a structured, user-confirmable action.
type ActionProposal struct {
	Type      ProposalType `json:"type"`
	Summary   string       `json:"summary"`
	Params    any          `json:"params"`
	RiskNotes []string     `json:"riskNotes,omitempty"`
	CTA       CallToAction `json:"cta"`
}

// AgentContext is optional client state attached to an agent request.
type AgentContext struct {
	Balances      map[string]string `json:"balances,omitempty"`
	RecentTx      []string          `json:"recentTx,omitempty"`
	SelectedToken string            `json:"selectedToken,omitempty"`
}

// AgentRequest represents request for POST /agent
type AgentRequest struct {
	WalletPubkey string        `json:"walletPubkey"`
	Message      string        `json:"message"`
	Mode         string        `json:"mode,omitempty"` // chat | tool
	Context      *AgentContext `json:"context,omitempty"`
	SessionID    string        `json:"sessionId,omitempty"`
}

// PaymentInfo tells the client a follow-up tool call is priced.
type PaymentInfo struct {
	Required  bool   `json:"required"`
	PriceUSDC string `json:"priceUsdc,omitempty"`
	Tool      string `json:"tool,omitempty"`
}

// AgentResponse represents response for POST /agent
type AgentResponse struct {
	AssistantText      string           `json:"assistantText"`
	Intent             Intent           `json:"intent"`
	ActionProposals    []ActionProposal `json:"actionProposals,omitempty"`
	ClarifyingQuestion string           `json:"clarifyingQuestion,omitempty"`
	Payment            *PaymentInfo     `json:"payment,omitempty"`
}

// SessionRole is the author of a session message.
type SessionRole string

const (
	RoleUser      SessionRole = "user"
	RoleAssistant SessionRole = "assistant"
)

// SessionMessage is one entry of a session's history.
type SessionMessage struct {
	Role      SessionRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp"` // epoch ms, set by the server
}

// SessionMessagesResponse represents response for GET /sessions/{id}/messages
type SessionMessagesResponse struct {
	Messages []SessionMessage `json:"messages"`
}

// SuccessResponse is the body of write endpoints with nothing else to return.
type SuccessResponse struct {
	Success bool `json:"success"`
}
