package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/client"
	"github.com/AlexZinkM/allowance-gate/internal/common"
	"github.com/AlexZinkM/allowance-gate/internal/config"
	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// Ledger is the subset of the Solana client the executor drives.
type Ledger interface {
	AccountReader
	SOLBalance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
	TokenTransferInstructions(ctx context.Context, from, to, mint solana.PublicKey, amount uint64, decimals uint8) ([]solana.Instruction, error)
	Submit(ctx context.Context, signer client.Signer, instructions []solana.Instruction) (solana.Signature, error)
	AwaitConfirmation(ctx context.Context, sig solana.Signature, timeout time.Duration) error
	VerifyTransfer(ctx context.Context, sig solana.Signature, check client.TransferCheck) error
}

// Config is the executor's process-wide settlement configuration.
type Config struct {
	Network        model.Network
	USDCMint       solana.PublicKey
	USDCDecimals   uint8
	FeeReserve     uint64 // lamports kept back for transaction fees
	ConfirmTimeout time.Duration
	RequireInputTx bool
	ExplorerURL    func(sig string) string
}

// ConfigFrom extracts executor settings from the server configuration.
func ConfigFrom(cfg *config.Config) (Config, error) {
	mint, err := solana.PublicKeyFromBase58(cfg.VaultUSDCMint)
	if err != nil {
		return Config{}, fmt.Errorf("invalid VAULT_USDC_MINT: %w", err)
	}
	return Config{
		Network:        model.Network(cfg.SolanaNetwork),
		USDCMint:       mint,
		USDCDecimals:   common.USDCDecimals,
		FeeReserve:     cfg.VaultFeeReserve,
		ConfirmTimeout: cfg.ConfirmTimeout,
		RequireInputTx: cfg.VaultRequireInputTx,
		ExplorerURL:    cfg.ExplorerURL,
	}, nil
}

// LoadVaultKey parses VAULT_PRIVATE_KEY (base58). An empty value returns nil, nil:
// swaps then fail with ConfigurationMissing while the rest of the server runs.
func LoadVaultKey(encoded string) (client.Signer, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := solana.PrivateKeyFromBase58(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid VAULT_PRIVATE_KEY: %w", err)
	}
	return key, nil
}

const (
	msgInsufficientVault = "insufficient vault balance"
	msgRPCUnavailable    = "solana rpc unavailable"
)

// Executor moves value for swaps and vault deposits/withdrawals.
type Executor struct {
	cfg      Config
	vaultKey client.Signer
	ledger   Ledger
	oracle   *PriceOracle
	program  *Program
	reader   *Reader
	logger   *slog.Logger

	mu         sync.Mutex
	usedInputs map[string]struct{}
}

// NewExecutor creates an executor. vaultKey may be nil when only deposit/withdraw
// for user signers is needed.
func NewExecutor(cfg Config, vaultKey client.Signer, ledger Ledger, oracle *PriceOracle, program *Program, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:        cfg,
		vaultKey:   vaultKey,
		ledger:     ledger,
		oracle:     oracle,
		program:    program,
		reader:     NewReader(program, ledger),
		logger:     logger,
		usedInputs: make(map[string]struct{}),
	}
}

// Reader exposes the read-only program mirror.
func (e *Executor) Reader() *Reader {
	return e.reader
}

type swapPlan struct {
	direction    model.SwapDirection
	user         solana.PublicKey
	amount       decimal.Decimal
	inputUnits   uint64 // lamports or token base units the user sends
	outputUnits  uint64 // base units the vault pays out
	inputString  string
	outputString string
}

func parseSwap(req model.VaultSwapRequest) (*swapPlan, error) {
	if req.Direction == "" || req.Amount == "" || req.UserWallet == "" {
		return nil, apperr.Validation("missing required fields: direction, amount, userWallet")
	}
	if req.Direction != model.SwapSOLToUSDC && req.Direction != model.SwapUSDCToSOL {
		return nil, apperr.Validation("invalid direction. Use SOL_TO_USDC or USDC_TO_SOL")
	}
	user, err := solana.PublicKeyFromBase58(req.UserWallet)
	if err != nil {
		return nil, apperr.Validation("invalid userWallet")
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	return &swapPlan{direction: req.Direction, user: user, amount: amount}, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, apperr.Validation("invalid amount")
	}
	return amount, nil
}

// toUnits floors x to a base-unit count, rejecting values that do not fit a uint64.
func toUnits(x decimal.Decimal) (uint64, error) {
	n := x.Floor().BigInt()
	if !n.IsUint64() {
		return 0, apperr.Validation("amount too large")
	}
	return n.Uint64(), nil
}

// price fills in base-unit amounts at price. Rounding is floor.
func (e *Executor) price(p *swapPlan, price decimal.Decimal) error {
	usdcScale := decimal.New(1, int32(e.cfg.USDCDecimals))
	solScale := decimal.New(1, common.SOLDecimals)

	var in, out decimal.Decimal
	if p.direction == model.SwapSOLToUSDC {
		in = p.amount.Mul(solScale)
		out = p.amount.Mul(price).Mul(usdcScale)
	} else {
		in = p.amount.Mul(usdcScale)
		out = p.amount.Mul(solScale).Div(price)
	}

	var err error
	if p.inputUnits, err = toUnits(in); err != nil {
		return err
	}
	if p.outputUnits, err = toUnits(out); err != nil {
		return err
	}

	if p.direction == model.SwapSOLToUSDC {
		p.inputString = p.amount.String() + " SOL"
		p.outputString = common.TrimUnits(p.outputUnits, int(e.cfg.USDCDecimals)) + " USDC"
	} else {
		p.inputString = p.amount.String() + " USDC"
		p.outputString = common.TrimUnits(p.outputUnits, common.SOLDecimals) + " SOL"
	}
	if p.outputUnits == 0 {
		return apperr.Validation("amount too small")
	}
	return nil
}

// SwapQuote is a priced swap that has not been executed.
type SwapQuote struct {
	Direction    model.SwapDirection
	InputAmount  string
	OutputAmount string
	OutputUnits  uint64
	Price        decimal.Decimal
	PriceSource  string
}

// Quote prices a swap at the current reference price without touching the ledger.
func (e *Executor) Quote(ctx context.Context, direction model.SwapDirection, amount string) (*SwapQuote, error) {
	if direction != model.SwapSOLToUSDC && direction != model.SwapUSDCToSOL {
		return nil, apperr.Validation("invalid direction. Use SOL_TO_USDC or USDC_TO_SOL")
	}
	a, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	quote := e.oracle.SOLPrice(ctx)
	p := &swapPlan{direction: direction, amount: a}
	if err := e.price(p, quote.Price); err != nil {
		return nil, err
	}
	return &SwapQuote{
		Direction:    direction,
		InputAmount:  p.inputString,
		OutputAmount: p.outputString,
		OutputUnits:  p.outputUnits,
		Price:        quote.Price,
		PriceSource:  quote.Source,
	}, nil
}

// Swap pays the user the counter-asset of req at the reference price from the vault
// wallet, in one transfer, and waits for confirmation.
func (e *Executor) Swap(ctx context.Context, req model.VaultSwapRequest) (*model.VaultSwapResponse, error) {
	p, err := parseSwap(req)
	if err != nil {
		return nil, err
	}
	if e.vaultKey == nil {
		return nil, apperr.ConfigurationMissing("VAULT_PRIVATE_KEY not configured")
	}

	quote := e.oracle.SOLPrice(ctx)
	if err := e.price(p, quote.Price); err != nil {
		return nil, err
	}

	if e.cfg.RequireInputTx {
		if err := e.verifyInput(ctx, p, req.InputTx); err != nil {
			return nil, err
		}
	}

	vault := e.vaultKey.PublicKey()
	if err := e.checkBalance(ctx, vault, p); err != nil {
		return nil, err
	}

	var instructions []solana.Instruction
	if p.direction == model.SwapSOLToUSDC {
		instructions, err = e.ledger.TokenTransferInstructions(ctx, vault, p.user, e.cfg.USDCMint, p.outputUnits, e.cfg.USDCDecimals)
		if err != nil {
			return nil, apperr.Upstream(msgRPCUnavailable, err)
		}
	} else {
		instructions = []solana.Instruction{client.SOLTransferInstruction(vault, p.user, p.outputUnits)}
	}

	sig, err := e.settle(ctx, e.vaultKey, instructions)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "vault swap settled",
		"direction", p.direction,
		"user", p.user.String(),
		"input", p.inputString,
		"output", p.outputString,
		"price", quote.Price.String(),
		"price_source", quote.Source,
		"signature", sig.String(),
	)

	return &model.VaultSwapResponse{
		Success:      true,
		Direction:    p.direction,
		InputAmount:  p.inputString,
		OutputAmount: p.outputString,
		Price:        "$" + quote.Price.String(),
		TxSignature:  sig.String(),
		ExplorerURL:  e.cfg.ExplorerURL(sig.String()),
	}, nil
}

func (e *Executor) checkBalance(ctx context.Context, vault solana.PublicKey, p *swapPlan) error {
	lamports, err := e.ledger.SOLBalance(ctx, vault)
	if err != nil {
		return apperr.Upstream(msgRPCUnavailable, err)
	}
	if lamports < e.cfg.FeeReserve {
		return apperr.InsufficientFunds(msgInsufficientVault)
	}

	switch p.direction {
	case model.SwapSOLToUSDC:
		usdc, err := e.ledger.TokenBalance(ctx, vault, e.cfg.USDCMint)
		if err != nil {
			return apperr.Upstream(msgRPCUnavailable, err)
		}
		if usdc < p.outputUnits {
			return apperr.InsufficientFunds(msgInsufficientVault)
		}
	case model.SwapUSDCToSOL:
		if lamports-e.cfg.FeeReserve < p.outputUnits {
			return apperr.InsufficientFunds(msgInsufficientVault)
		}
	}
	return nil
}

// verifyInput checks the user's inbound leg and marks it used.
func (e *Executor) verifyInput(ctx context.Context, p *swapPlan, inputTx string) error {
	if inputTx == "" {
		return apperr.Validation("inputTx is required")
	}
	sig, err := solana.SignatureFromBase58(inputTx)
	if err != nil {
		return apperr.Validation("invalid inputTx")
	}

	e.mu.Lock()
	_, used := e.usedInputs[inputTx]
	e.mu.Unlock()
	if used {
		return apperr.Validation("inputTx already used")
	}

	check := client.TransferCheck{
		Recipient: e.vaultKey.PublicKey(),
		MinAmount: p.inputUnits,
		Payer:     p.user,
	}
	if p.direction == model.SwapUSDCToSOL {
		check.Mint = e.cfg.USDCMint
	}
	if err := e.ledger.VerifyTransfer(ctx, sig, check); err != nil {
		if errors.Is(err, client.ErrTransferMismatch) ||
			errors.Is(err, client.ErrTransactionFailed) ||
			errors.Is(err, client.ErrTransactionNotFound) {
			return apperr.Wrap(apperr.KindValidation, "inputTx does not pay the vault", err)
		}
		return apperr.Upstream(msgRPCUnavailable, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, used := e.usedInputs[inputTx]; used {
		return apperr.Validation("inputTx already used")
	}
	e.usedInputs[inputTx] = struct{}{}
	return nil
}

// settle submits and confirms. Once sent, confirmation is not tied to the caller's
// cancellation.
func (e *Executor) settle(ctx context.Context, signer client.Signer, instructions []solana.Instruction) (solana.Signature, error) {
	sig, err := e.ledger.Submit(ctx, signer, instructions)
	if err != nil {
		return solana.Signature{}, apperr.Upstream("failed to submit transaction", err)
	}

	if err := e.ledger.AwaitConfirmation(context.WithoutCancel(ctx), sig, e.cfg.ConfirmTimeout); err != nil {
		if errors.Is(err, client.ErrUnconfirmed) {
			e.logger.WarnContext(ctx, "transaction unconfirmed", "signature", sig.String())
			return solana.Signature{}, apperr.Unconfirmed(fmt.Sprintf("transaction %s not confirmed", sig), err)
		}
		return solana.Signature{}, apperr.Upstream(fmt.Sprintf("transaction %s failed", sig), err)
	}
	return sig, nil
}

// Status reports the vault wallet's balances and the reference price.
func (e *Executor) Status(ctx context.Context) (*model.VaultStatusResponse, error) {
	if e.vaultKey == nil {
		return nil, apperr.ConfigurationMissing("VAULT_PRIVATE_KEY not configured")
	}
	vault := e.vaultKey.PublicKey()

	lamports, err := e.ledger.SOLBalance(ctx, vault)
	if err != nil {
		return nil, apperr.Upstream(msgRPCUnavailable, err)
	}
	usdc, err := e.ledger.TokenBalance(ctx, vault, e.cfg.USDCMint)
	if err != nil {
		return nil, apperr.Upstream(msgRPCUnavailable, err)
	}
	quote := e.oracle.SOLPrice(ctx)

	return &model.VaultStatusResponse{
		VaultAddress: vault.String(),
		Balances: model.VaultBalances{
			SOL:  common.TrimUnits(lamports, common.SOLDecimals),
			USDC: common.TrimUnits(usdc, int(e.cfg.USDCDecimals)),
		},
		CurrentPrice: "$" + quote.Price.String(),
		PriceSource:  quote.Source,
		Network:      e.cfg.Network,
	}, nil
}

// Deposit moves lamports from signer into the vault program.
func (e *Executor) Deposit(ctx context.Context, signer client.Signer, lamports uint64) (solana.Signature, error) {
	if lamports == 0 {
		return solana.Signature{}, apperr.Validation("amount must be greater than zero")
	}
	balance, err := e.ledger.SOLBalance(ctx, signer.PublicKey())
	if err != nil {
		return solana.Signature{}, apperr.Upstream(msgRPCUnavailable, err)
	}
	if balance < lamports+e.cfg.FeeReserve {
		return solana.Signature{}, apperr.InsufficientFunds("insufficient wallet balance")
	}

	ix, err := e.program.DepositInstruction(signer.PublicKey(), lamports)
	if err != nil {
		return solana.Signature{}, err
	}
	return e.settle(ctx, signer, []solana.Instruction{ix})
}

// Withdraw returns lamports of signer's position plus all pending yield.
func (e *Executor) Withdraw(ctx context.Context, signer client.Signer, lamports uint64) (solana.Signature, error) {
	if lamports == 0 {
		return solana.Signature{}, apperr.Validation("amount must be greater than zero")
	}
	pos, err := e.reader.Position(ctx, signer.PublicKey())
	if err != nil {
		return solana.Signature{}, apperr.Upstream(msgRPCUnavailable, err)
	}
	if pos.Amount < lamports {
		return solana.Signature{}, apperr.InsufficientFunds("insufficient position balance")
	}

	ix, err := e.program.WithdrawInstruction(signer.PublicKey(), lamports)
	if err != nil {
		return solana.Signature{}, err
	}
	return e.settle(ctx, signer, []solana.Instruction{ix})
}
