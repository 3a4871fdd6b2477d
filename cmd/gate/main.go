// Command gate serves priced tools behind the payment handshake, the vault swap
// endpoints and the chat agent.
//
// @title        Allowance Gate API
// @version      1.0
// @description  Pay-per-call tools behind a payment handshake, plus vault swaps.
// @BasePath     /
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/AlexZinkM/allowance-gate/internal/agent"
	"github.com/AlexZinkM/allowance-gate/internal/api"
	"github.com/AlexZinkM/allowance-gate/internal/client"
	"github.com/AlexZinkM/allowance-gate/internal/config"
	"github.com/AlexZinkM/allowance-gate/internal/handler"
	"github.com/AlexZinkM/allowance-gate/internal/logging"
	"github.com/AlexZinkM/allowance-gate/internal/model"
	"github.com/AlexZinkM/allowance-gate/internal/payment"
	"github.com/AlexZinkM/allowance-gate/internal/session"
	"github.com/AlexZinkM/allowance-gate/internal/tools"
	"github.com/AlexZinkM/allowance-gate/internal/vault"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gate:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pricing := config.DefaultPricing()
	if cfg.PricingFile != "" {
		pricing, err = config.LoadPricing(cfg.PricingFile, cfg.PaymentTokenDecimal)
		if err != nil {
			return err
		}
	}

	store, closeStore, err := openStateStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ledger, err := payment.OpenSQLiteReceiptLedger(cfg.ReceiptsDB)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	rpc := client.NewSolanaClient(cfg.SolanaRPCURL, cfg.ConfirmPollInterval)

	fallback, err := decimal.NewFromString(cfg.FallbackSOLPrice)
	if err != nil {
		return fmt.Errorf("invalid FALLBACK_SOL_PRICE: %w", err)
	}
	oracle := vault.NewPriceOracle(client.NewCoinGeckoClient(cfg.CoinGeckoURL), fallback, logger)

	program, err := vault.NewProgram(cfg.VaultProgramID)
	if err != nil {
		return err
	}
	vaultKey, err := vault.LoadVaultKey(cfg.VaultPrivateKey)
	if err != nil {
		return err
	}
	execCfg, err := vault.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	executor := vault.NewExecutor(execCfg, vaultKey, rpc, oracle, program, logger)

	registry := tools.NewDefaultRegistry(tools.Deps{
		Yield:        executor.Reader(),
		Quoter:       executor,
		Explainer:    rpc,
		VaultProgram: cfg.VaultProgramID,
	})

	verifierOpts := []payment.VerifierOption{payment.WithLogger(logger)}
	if cfg.PaymentPolicy == config.PolicyOnchain {
		verifierOpts = append(verifierOpts,
			payment.WithSettlementChecker(payment.NewOnchainChecker(rpc, cfg.PaymentTokenDecimal)))
	}
	issuer := payment.NewIssuer(payment.IssuerConfigFrom(cfg, pricing), store)
	verifier := payment.NewVerifier(store, ledger, verifierOpts...)

	limiter := handler.NewIPRateLimiter(cfg.IssueRatePerMinute, cfg.IssueBurst)
	go limiter.Run(ctx)

	sessions := session.NewStore(session.DefaultMaxMessages)
	agentOpts := []agent.Option{agent.WithSessions(sessions), agent.WithLogger(logger)}
	for intent, tool := range map[model.Intent]string{
		model.IntentTxExplain:    "tx_explain.deep",
		model.IntentSwap:         "swap_agent.optimized",
		model.IntentVaultDeposit: "yield_agent.run",
	} {
		if price, ok := pricing.Price(tool); ok {
			agentOpts = append(agentOpts, agent.WithToolPrice(intent, tool, price))
		}
	}

	router := api.SetupRouter(api.Handlers{
		Gate:     handler.NewGate(issuer, verifier, registry, limiter, logger),
		Tools:    handler.NewToolsHandler(registry, logger),
		Vault:    handler.NewVaultHandler(executor, logger),
		Receipts: handler.NewReceiptsHandler(ledger, verifier.Policy(), model.Network(cfg.SolanaNetwork), pricing, logger),
		Agent:    handler.NewAgentHandler(agent.New(agent.RuleAssistant{}, cfg.VaultUSDCMint, agentOpts...), sessions, logger),
	})

	if cfg.MerchantWallet == "" {
		logger.Warn("MERCHANT_WALLET not set, priced tools will answer 503")
	}
	if vaultKey == nil {
		logger.Warn("VAULT_PRIVATE_KEY not set, vault swaps are disabled")
	}
	logger.Info("starting gate",
		"port", cfg.Port,
		"network", cfg.SolanaNetwork,
		"policy", verifier.Policy(),
		"priced_tools", pricing.Tools(),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStateStore picks Redis when REDIS_ADDR is set, otherwise a process-local store.
func openStateStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (payment.StateStore, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory payment state store")
		return payment.NewMemoryStateStore(cfg.PaymentRetention), func() {}, nil
	}
	store := payment.NewRedisStateStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.PaymentRetention)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("using redis payment state store", "addr", cfg.RedisAddr)
	return store, func() { _ = store.Close() }, nil
}
