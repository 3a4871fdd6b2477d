package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AlexZinkM/allowance-gate/internal/apperr"
	"github.com/AlexZinkM/allowance-gate/internal/config"
	"github.com/AlexZinkM/allowance-gate/internal/model"
)

// ErrNotPriced means the tool has no price and is served without payment.
var ErrNotPriced = errors.New("tool is not priced")

// IssuerConfig is the process-wide payment configuration the issuer is built with.
type IssuerConfig struct {
	Pricing   config.Pricing
	TTL       time.Duration
	TokenMint string
	Recipient string
	Network   model.Network
}

// IssuerConfigFrom extracts the issuer settings from the server configuration.
func IssuerConfigFrom(cfg *config.Config, pricing config.Pricing) IssuerConfig {
	return IssuerConfig{
		Pricing:   pricing,
		TTL:       cfg.PaymentTTL,
		TokenMint: cfg.PaymentTokenMint,
		Recipient: cfg.MerchantWallet,
		Network:   model.Network(cfg.SolanaNetwork),
	}
}

// Issuer creates single-use payment requirements for priced tools.
type Issuer struct {
	cfg   IssuerConfig
	store StateStore
	now   func() time.Time
}

// NewIssuer creates an issuer writing to store.
func NewIssuer(cfg IssuerConfig, store StateStore) *Issuer {
	return &Issuer{cfg: cfg, store: store, now: time.Now}
}

// Priced reports whether tool requires payment.
func (i *Issuer) Priced(tool string) bool {
	_, ok := i.cfg.Pricing.Price(tool)
	return ok
}

// Issue creates and records a fresh requirement for tool.
// The requirement is persisted before it is returned.
func (i *Issuer) Issue(ctx context.Context, tool string) (*model.PaymentRequirements, error) {
	price, ok := i.cfg.Pricing.Price(tool)
	if !ok {
		return nil, ErrNotPriced
	}
	if i.cfg.Recipient == "" {
		return nil, apperr.ConfigurationMissing("MERCHANT_WALLET not configured")
	}

	req := &model.PaymentRequirements{
		PaymentID: uuid.NewString(),
		Amount:    price,
		TokenMint: i.cfg.TokenMint,
		Recipient: i.cfg.Recipient,
		Network:   i.cfg.Network,
		ExpiresAt: i.now().Add(i.cfg.TTL).UnixMilli(),
		Tool:      tool,
	}
	if err := i.store.Issue(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to record requirement: %w", err)
	}
	return req, nil
}
