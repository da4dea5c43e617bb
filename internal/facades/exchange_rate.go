package facades

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	pb "github.com/sbilibin2017/proto-exchange/exchange"
)

// RateCache caches exchange rates with a short TTL.
type RateCache interface {
	GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error)
	SetRate(ctx context.Context, fromCurrency, toCurrency string, rate decimal.Decimal) error
}

// ExchangeRatesGRPCFacade supplies exchange rates from the exchanger gRPC
// service, with optional cache-aside via Redis.
type ExchangeRatesGRPCFacade struct {
	client pb.ExchangeServiceClient
	cache  RateCache
}

// NewExchangeRatesGRPCFacade creates a facade with a gRPC client and an
// optional cache (nil disables caching).
func NewExchangeRatesGRPCFacade(client pb.ExchangeServiceClient, cache RateCache) *ExchangeRatesGRPCFacade {
	return &ExchangeRatesGRPCFacade{client: client, cache: cache}
}

// Rate returns the exchange rate between two currencies. Cached values are
// preferred; a fetch from the exchanger refreshes the cache.
func (f *ExchangeRatesGRPCFacade) Rate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	if f.cache != nil {
		if rate, err := f.cache.GetRate(ctx, fromCurrency, toCurrency); err == nil {
			return rate, nil
		}
	}

	req := &pb.CurrencyRequest{
		FromCurrency: fromCurrency,
		ToCurrency:   toCurrency,
	}
	resp, err := f.client.GetExchangeRateForCurrency(ctx, req)
	if err != nil {
		logger.Log.Errorw("failed to fetch exchange rate via gRPC",
			"from", fromCurrency, "to", toCurrency, "error", err)
		return decimal.Zero, fmt.Errorf("fetch rate %s->%s: %w", fromCurrency, toCurrency, err)
	}

	rate := decimal.NewFromFloat32(resp.Rate)
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("exchanger returned non-positive rate %s for %s->%s", rate, fromCurrency, toCurrency)
	}

	if f.cache != nil {
		if err := f.cache.SetRate(ctx, fromCurrency, toCurrency, rate); err != nil {
			logger.Log.Errorw("failed to cache exchange rate",
				"from", fromCurrency, "to", toCurrency, "rate", rate, "error", err)
		}
	}
	return rate, nil
}
