package allowance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/AlexZinkM/allowance-gate/internal/client"
	"github.com/AlexZinkM/allowance-gate/internal/common"
	"github.com/AlexZinkM/allowance-gate/internal/logging"
	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// ErrOverAllowance is returned when a requirement asks for more than the per-call cap.
var ErrOverAllowance = errors.New("requirement exceeds allowance")

// ErrRequirementExpiring is returned when an on-chain payment could still be confirming
// after the requirement expires. Nothing is paid in that case.
var ErrRequirementExpiring = errors.New("requirement expires before payment can confirm")

// TransferLedger submits the on-chain leg of a payment.
type TransferLedger interface {
	TokenTransferInstructions(ctx context.Context, from, to, mint solana.PublicKey, amount uint64, decimals uint8) ([]solana.Instruction, error)
	Submit(ctx context.Context, signer client.Signer, instructions []solana.Instruction) (solana.Signature, error)
	AwaitConfirmation(ctx context.Context, sig solana.Signature, timeout time.Duration) error
}

// OnchainPayer pays a requirement with an SPL transfer carrying the paymentId as memo.
type OnchainPayer struct {
	ledger   TransferLedger
	decimals uint8
	timeout  time.Duration
}

// NewOnchainPayer creates a payer for a token with the given decimals.
func NewOnchainPayer(ledger TransferLedger, decimals uint8, timeout time.Duration) *OnchainPayer {
	return &OnchainPayer{ledger: ledger, decimals: decimals, timeout: timeout}
}

// Pay transfers req.Amount of req.TokenMint to req.Recipient and waits for confirmation.
func (p *OnchainPayer) Pay(ctx context.Context, signer client.Signer, req *model.PaymentRequirements) (solana.Signature, error) {
	recipient, err := solana.PublicKeyFromBase58(req.Recipient)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid recipient: %w", err)
	}
	mint, err := solana.PublicKeyFromBase58(req.TokenMint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid token mint: %w", err)
	}
	amount, err := common.ParseUnits(req.Amount, int(p.decimals))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid amount: %w", err)
	}

	instructions, err := p.ledger.TokenTransferInstructions(ctx, signer.PublicKey(), recipient, mint, amount, p.decimals)
	if err != nil {
		return solana.Signature{}, err
	}
	instructions = append(instructions, client.MemoInstruction(req.PaymentID, signer.PublicKey()))

	sig, err := p.ledger.Submit(ctx, signer, instructions)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := p.ledger.AwaitConfirmation(context.WithoutCancel(ctx), sig, p.timeout); err != nil {
		return sig, err
	}
	return sig, nil
}

// PaidClient calls gated tools, answering 402 challenges with the allowance wallet.
type PaidClient struct {
	baseURL    string
	httpClient *http.Client
	wallet     *Wallet
	payer      *OnchainPayer
	maxAmount  decimal.Decimal
	logger     *slog.Logger
	now        func() time.Time
}

// ClientOption configures a PaidClient.
type ClientOption func(*PaidClient)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(p *PaidClient) { p.httpClient = c }
}

// WithOnchainPayment makes the client settle each requirement on-chain before retrying.
func WithOnchainPayment(payer *OnchainPayer) ClientOption {
	return func(p *PaidClient) { p.payer = payer }
}

// WithMaxAmount caps the amount a single requirement may ask for. Zero means no cap.
func WithMaxAmount(limit decimal.Decimal) ClientOption {
	return func(p *PaidClient) { p.maxAmount = limit }
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(p *PaidClient) { p.logger = l }
}

// NewPaidClient creates a client for the gate at baseURL. The wallet must be loaded
// before the first priced call.
func NewPaidClient(baseURL string, wallet *Wallet, opts ...ClientOption) *PaidClient {
	c := &PaidClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
		wallet:     wallet,
		logger:     logging.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CallResult is the final response of a tool call.
type CallResult struct {
	StatusCode int
	Body       json.RawMessage
	// Requirements is the challenge that was paid, nil for free tools.
	Requirements *model.PaymentRequirements
	// Settlement is the decoded X-Payment-Response header, nil for free tools.
	Settlement *model.PaymentResponse
}

// CallTool posts body to /tools/{tool}. A 402 answer is paid once and the request retried;
// any other status is returned as is.
func (c *PaidClient) CallTool(ctx context.Context, tool string, body []byte) (*CallResult, error) {
	if len(body) == 0 {
		body = []byte("{}")
	}

	resp, err := c.post(ctx, tool, body, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	req, err := requirementsFrom(resp)
	if err != nil {
		return nil, err
	}
	if req.Tool != tool {
		return nil, fmt.Errorf("requirement is for tool %q, not %q", req.Tool, tool)
	}
	if err := c.checkAllowance(req); err != nil {
		return nil, err
	}

	if c.payer != nil {
		if left := time.UnixMilli(req.ExpiresAt).Sub(c.now()); left <= c.payer.timeout {
			return nil, fmt.Errorf("%w: %s left, confirmation may take %s",
				ErrRequirementExpiring, left.Round(time.Second), c.payer.timeout)
		}
	}

	proof, err := c.wallet.SignRequirements(req, c.now())
	if err != nil {
		return nil, fmt.Errorf("failed to sign requirement: %w", err)
	}
	if c.payer != nil {
		signer, err := c.wallet.TxSigner()
		if err != nil {
			return nil, err
		}
		sig, err := c.payer.Pay(ctx, signer, req)
		if err != nil {
			return nil, fmt.Errorf("failed to pay requirement on-chain: %w", err)
		}
		proof.Transaction = sig.String()
	}

	header, err := json.Marshal(proof)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proof: %w", err)
	}
	c.logger.DebugContext(ctx, "paying requirement", "paymentId", req.PaymentID, "amount", req.Amount, "tool", tool)

	paid, err := c.post(ctx, tool, body, string(header))
	if err != nil {
		return nil, err
	}
	paid.Requirements = req
	if paid.StatusCode == http.StatusPaymentRequired {
		return paid, fmt.Errorf("payment rejected: %s", errorMessage(paid.Body))
	}
	return paid, nil
}

func (c *PaidClient) checkAllowance(req *model.PaymentRequirements) error {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fmt.Errorf("invalid requirement amount %q: %w", req.Amount, err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("invalid requirement amount %q", req.Amount)
	}
	if c.maxAmount.IsPositive() && amount.GreaterThan(c.maxAmount) {
		return fmt.Errorf("%w: %s > %s", ErrOverAllowance, amount, c.maxAmount)
	}
	return nil
}

func (c *PaidClient) post(ctx context.Context, tool string, body []byte, proof string) (*CallResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tools/"+tool, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if proof != "" {
		httpReq.Header.Set(model.HeaderPayment, proof)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", tool, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	result := &CallResult{StatusCode: resp.StatusCode, Body: data}
	if h := resp.Header.Get(model.HeaderPaymentResponse); h != "" {
		var settled model.PaymentResponse
		if err := json.Unmarshal([]byte(h), &settled); err != nil {
			return nil, fmt.Errorf("invalid %s header: %w", model.HeaderPaymentResponse, err)
		}
		result.Settlement = &settled
	}
	if h := resp.Header.Get(model.HeaderPaymentRequired); h != "" && resp.StatusCode == http.StatusPaymentRequired {
		var req model.PaymentRequirements
		if err := json.Unmarshal([]byte(h), &req); err == nil {
			result.Requirements = &req
		}
	}
	return result, nil
}

// requirementsFrom reads the challenge from the header, falling back to the body.
func requirementsFrom(r *CallResult) (*model.PaymentRequirements, error) {
	if r.Requirements != nil {
		return r.Requirements, nil
	}
	var body model.PaymentRequiredResponse
	if err := json.Unmarshal(r.Body, &body); err == nil && body.Requirements != nil {
		return body.Requirements, nil
	}
	return nil, errors.New("no payment requirements found in 402 response")
}

func errorMessage(body []byte) string {
	var e model.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
