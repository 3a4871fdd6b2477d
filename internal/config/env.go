package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// Default devnet addresses.
const (
	DevnetUSDCMint  = "Gh9ZwEmdLJ8DscKNTkTqPbNwLNNBjuSzaG9Vp2KGtKJr"
	MainnetUSDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	VaultProgramID  = "Vox4Hta7Tank473DCBwbEdYUBqFBWxfntK3WwkdGf3L"
)

// Payment settlement policies.
const (
	// PolicySignature accepts a valid signature over the requirement as a capability token.
	PolicySignature = "signature"
	// PolicyOnchain additionally requires a confirmed transfer referenced by the proof.
	PolicyOnchain = "onchain"
)

// Config contains all configuration parameters of the gate server.
// It is loaded once at process start and injected into every component.
type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	SolanaRPCURL  string `envconfig:"SOLANA_RPC_URL" default:"https://api.devnet.solana.com"`
	SolanaNetwork string `envconfig:"SOLANA_NETWORK" default:"devnet"`

	MerchantWallet      string        `envconfig:"MERCHANT_WALLET"`
	PaymentTokenMint    string        `envconfig:"PAYMENT_TOKEN_MINT" default:"Gh9ZwEmdLJ8DscKNTkTqPbNwLNNBjuSzaG9Vp2KGtKJr"`
	PaymentTokenDecimal int           `envconfig:"PAYMENT_TOKEN_DECIMALS" default:"6"`
	PaymentTTL          time.Duration `envconfig:"PAYMENT_TTL" default:"60s"`
	PaymentPolicy       string        `envconfig:"PAYMENT_POLICY" default:"signature"`
	PaymentRetention    time.Duration `envconfig:"PAYMENT_RETENTION" default:"10m"`
	PricingFile         string        `envconfig:"PRICING_FILE"`
	IssueRatePerMinute  int           `envconfig:"ISSUE_RATE_PER_MINUTE" default:"120"`
	IssueBurst          int           `envconfig:"ISSUE_BURST" default:"20"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	ReceiptsDB    string `envconfig:"RECEIPTS_DB" default:"receipts.db"`

	VaultPrivateKey      string        `envconfig:"VAULT_PRIVATE_KEY"`
	VaultUSDCMint        string        `envconfig:"VAULT_USDC_MINT" default:"Gh9ZwEmdLJ8DscKNTkTqPbNwLNNBjuSzaG9Vp2KGtKJr"`
	VaultProgramID       string        `envconfig:"VAULT_PROGRAM_ID" default:"Vox4Hta7Tank473DCBwbEdYUBqFBWxfntK3WwkdGf3L"`
	VaultFeeReserve      uint64        `envconfig:"VAULT_FEE_RESERVE_LAMPORTS" default:"5000"`
	VaultRequireInputTx  bool          `envconfig:"VAULT_REQUIRE_INPUT_TX" default:"false"`
	FallbackSOLPrice     string        `envconfig:"FALLBACK_SOL_PRICE" default:"150"`
	CoinGeckoURL         string        `envconfig:"COINGECKO_URL" default:"https://api.coingecko.com/api/v3"`
	ConfirmTimeout       time.Duration `envconfig:"CONFIRM_TIMEOUT" default:"30s"`
	ConfirmPollInterval  time.Duration `envconfig:"CONFIRM_POLL_INTERVAL" default:"1s"`
	ExplorerTxURLPattern string        `envconfig:"EXPLORER_TX_URL" default:"https://solscan.io/tx/%s?cluster=devnet"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated values. Secrets are allowed to be empty here: the
// components that need them report ConfigurationMissing at use time.
func (c *Config) Validate() error {
	switch c.SolanaNetwork {
	case "devnet", "mainnet":
	default:
		return fmt.Errorf("SOLANA_NETWORK must be devnet or mainnet, got %q", c.SolanaNetwork)
	}
	switch c.PaymentPolicy {
	case PolicySignature, PolicyOnchain:
	default:
		return fmt.Errorf("PAYMENT_POLICY must be %s or %s, got %q", PolicySignature, PolicyOnchain, c.PaymentPolicy)
	}
	if c.PaymentTTL <= 0 {
		return errors.New("PAYMENT_TTL must be positive")
	}
	if c.PaymentTokenDecimal < 0 || c.PaymentTokenDecimal > 18 {
		return errors.New("PAYMENT_TOKEN_DECIMALS out of range")
	}
	if c.IssueRatePerMinute <= 0 || c.IssueBurst <= 0 {
		return errors.New("ISSUE_RATE_PER_MINUTE and ISSUE_BURST must be positive")
	}
	return nil
}

// ExplorerURL returns the block explorer link for a transaction signature.
func (c *Config) ExplorerURL(signature string) string {
	if !strings.Contains(c.ExplorerTxURLPattern, "%s") {
		return c.ExplorerTxURLPattern + signature
	}
	return fmt.Sprintf(c.ExplorerTxURLPattern, signature)
}

// ClientConfig is the configuration of the allowance CLI.
type ClientConfig struct {
	GateURL      string `envconfig:"GATE_URL" default:"http://localhost:8080"`
	AllowanceDir string `envconfig:"ALLOWANCE_DIR"`
	SolanaRPCURL string `envconfig:"SOLANA_RPC_URL" default:"https://api.devnet.solana.com"`
	VaultProgram string `envconfig:"VAULT_PROGRAM_ID" default:"Vox4Hta7Tank473DCBwbEdYUBqFBWxfntK3WwkdGf3L"`
	PayOnchain   bool   `envconfig:"ALLOWANCE_PAY_ONCHAIN" default:"false"`
}

// LoadClient reads the CLI configuration. AllowanceDir defaults to ~/.allowance.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if cfg.AllowanceDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.AllowanceDir = home + string(os.PathSeparator) + ".allowance"
	}
	return cfg, nil
}

// PromptForPIN prompts the user for the allowance PIN in the terminal.
// The PIN is read without echoing (hidden input).
// Caller must zero the returned slice after use.
func PromptForPIN(prompt string) ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("stdin is not a terminal: run interactively to enter PIN")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to read PIN: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("PIN cannot be empty")
	}
	return raw, nil
}
