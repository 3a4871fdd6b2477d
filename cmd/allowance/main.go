// Command allowance manages the device's allowance wallet and calls priced tools
// through the payment handshake.
//
// Usage:
//
//	allowance create
//	allowance address [-qr file.png]
//	allowance call [-max 0.01] <tool> [json]
//	allowance vault deposit|withdraw <SOL>
//	allowance vault position
//
// A PIN that does not unlock the stored wallet creates a new one in its place.
// Funds held by the old key are not moved.
//
// With ALLOWANCE_PAY_ONCHAIN=true each requirement is paid by an SPL transfer before the
// retry. A requirement with less time left than the 30s confirmation timeout is refused
// unpaid, so the gate's PAYMENT_TTL must exceed it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/AlexZinkM/allowance-gate/internal/allowance"
	"github.com/AlexZinkM/allowance-gate/internal/client"
	"github.com/AlexZinkM/allowance-gate/internal/common"
	"github.com/AlexZinkM/allowance-gate/internal/config"
	"github.com/AlexZinkM/allowance-gate/internal/logging"
	"github.com/AlexZinkM/allowance-gate/internal/vault"
)

const usage = `usage:
  allowance create
  allowance address [-qr file.png]
  allowance call [-max 0.01] <tool> [json]
  allowance vault deposit|withdraw <SOL>
  allowance vault position

with ALLOWANCE_PAY_ONCHAIN=true, requirements expiring within 30s are refused unpaid`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "allowance:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.ClientConfig
	wallet *allowance.Wallet
	rpc    *client.SolanaClient
	logger *slog.Logger
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	_ = godotenv.Load()
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, os.Getenv("LOG_LEVEL"), "text")

	storage, err := allowance.NewFileStorage(cfg.AllowanceDir)
	if err != nil {
		return err
	}
	a := &app{
		cfg:    cfg,
		wallet: allowance.New(storage, allowance.WithLogger(logger)),
		rpc:    client.NewSolanaClient(cfg.SolanaRPCURL, 0),
		logger: logger,
	}
	defer a.wallet.Unload()

	switch args[0] {
	case "create":
		return a.create()
	case "address":
		return a.address(args[1:])
	case "call":
		return a.call(ctx, args[1:])
	case "vault":
		return a.vault(ctx, args[1:])
	}
	return fmt.Errorf("unknown command %q\n%s", args[0], usage)
}

func (a *app) create() error {
	if a.wallet.Exists() {
		fmt.Fprintln(os.Stderr, "warning: replacing the stored allowance wallet")
	}
	pin, err := config.PromptForPIN("New PIN: ")
	if err != nil {
		return err
	}
	defer clear(pin)

	pub, err := a.wallet.Create(pin)
	if err != nil {
		return err
	}
	fmt.Println(pub)
	return nil
}

// unlock loads the wallet, creating one when the PIN does not open the stored record.
func (a *app) unlock() error {
	pin, err := config.PromptForPIN("PIN: ")
	if err != nil {
		return err
	}
	defer clear(pin)

	if a.wallet.Load(pin) {
		return nil
	}
	if a.wallet.Exists() {
		fmt.Fprintln(os.Stderr, "warning: PIN did not unlock the stored wallet, creating a new one")
	}
	_, err = a.wallet.Create(pin)
	return err
}

func (a *app) address(args []string) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	qrPath := fs.String("qr", "", "write a funding QR code PNG to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.unlock(); err != nil {
		return err
	}

	pub := a.wallet.PublicKey()
	fmt.Println(pub)
	if *qrPath == "" {
		return nil
	}
	png, err := allowance.FundingQRPNG(pub)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*qrPath, png, 0o644); err != nil {
		return fmt.Errorf("failed to write QR code: %w", err)
	}
	fmt.Fprintln(os.Stderr, "QR code written to", *qrPath)
	return nil
}

func (a *app) call(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	limit := fs.String("max", "0.01", "refuse requirements above this amount")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New(usage)
	}
	maxAmount, err := decimal.NewFromString(*limit)
	if err != nil {
		return fmt.Errorf("invalid -max: %w", err)
	}
	var body []byte
	if fs.NArg() > 1 {
		body = []byte(fs.Arg(1))
		if !json.Valid(body) {
			return errors.New("request body must be valid JSON")
		}
	}

	if err := a.unlock(); err != nil {
		return err
	}

	opts := []allowance.ClientOption{
		allowance.WithMaxAmount(maxAmount),
		allowance.WithClientLogger(a.logger),
	}
	if a.cfg.PayOnchain {
		opts = append(opts, allowance.WithOnchainPayment(
			allowance.NewOnchainPayer(a.rpc, common.USDCDecimals, 30*time.Second)))
	}
	c := allowance.NewPaidClient(a.cfg.GateURL, a.wallet, opts...)

	res, err := c.CallTool(ctx, fs.Arg(0), body)
	if err != nil {
		return err
	}
	if res.Settlement != nil {
		fmt.Fprintf(os.Stderr, "paid %s for %s (payment %s)\n",
			res.Requirements.Amount, fs.Arg(0), res.Settlement.PaymentID)
	}
	fmt.Println(string(res.Body))
	if res.StatusCode >= 400 {
		return fmt.Errorf("gate answered %d", res.StatusCode)
	}
	return nil
}

func (a *app) vault(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	program, err := vault.NewProgram(a.cfg.VaultProgram)
	if err != nil {
		return err
	}
	executor := vault.NewExecutor(vault.Config{ConfirmTimeout: 30 * time.Second}, nil, a.rpc, nil, program, a.logger)

	if err := a.unlock(); err != nil {
		return err
	}
	owner, err := solana.PublicKeyFromBase58(a.wallet.PublicKey())
	if err != nil {
		return err
	}

	switch args[0] {
	case "position":
		reader := executor.Reader()
		pos, err := reader.Position(ctx, owner)
		if err != nil {
			return err
		}
		apy := reader.ApyBps(ctx)
		fmt.Printf("deposited: %s SOL\npending yield: %s SOL\napy: %d bps\n",
			common.LamportsToSOL(pos.Amount),
			common.LamportsToSOL(vault.PendingYield(pos, apy, time.Now())),
			apy)
		return nil
	case "deposit", "withdraw":
	default:
		return fmt.Errorf("unknown vault command %q\n%s", args[0], usage)
	}

	if len(args) < 2 {
		return errors.New(usage)
	}
	lamports, err := common.SOLToLamports(args[1])
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	signer, err := a.wallet.TxSigner()
	if err != nil {
		return err
	}

	var sig solana.Signature
	if args[0] == "deposit" {
		sig, err = executor.Deposit(ctx, signer, lamports)
	} else {
		sig, err = executor.Withdraw(ctx, signer, lamports)
	}
	if err != nil {
		return err
	}
	fmt.Println(sig.String())
	return nil
}
