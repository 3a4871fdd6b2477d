package vault

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Price sources reported alongside a quote.
const (
	SourceFeed     = "coingecko"
	SourceFallback = "fallback"
)

// PriceFeed is an external SOL/USD price source.
type PriceFeed interface {
	SOLPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// Quote is a reference price and where it came from.
type Quote struct {
	Price  decimal.Decimal
	Source string
}

// PriceOracle is a best-effort price: the feed when it answers, otherwise a fixed fallback.
type PriceOracle struct {
	feed     PriceFeed
	fallback decimal.Decimal
	logger   *slog.Logger
}

// NewPriceOracle creates an oracle. feed may be nil, in which case the fallback is always used.
func NewPriceOracle(feed PriceFeed, fallback decimal.Decimal, logger *slog.Logger) *PriceOracle {
	return &PriceOracle{feed: feed, fallback: fallback, logger: logger}
}

// SOLPrice never fails.
func (o *PriceOracle) SOLPrice(ctx context.Context) Quote {
	if o.feed != nil {
		price, err := o.feed.SOLPriceUSD(ctx)
		if err == nil && price.IsPositive() {
			return Quote{Price: price, Source: SourceFeed}
		}
		o.logger.WarnContext(ctx, "price feed unavailable, using fallback",
			"fallback", o.fallback.String(), "error", err)
	}
	return Quote{Price: o.fallback, Source: SourceFallback}
}
