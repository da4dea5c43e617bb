package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
)

// QuoteCacheRepository caches exchange rates and spot prices in Redis with a
// short TTL. Staleness beyond the drift tolerance is bounded by that TTL.
type QuoteCacheRepository struct {
	client *redis.Client
	exp    time.Duration
}

// NewQuoteCacheRepository creates a cache repository with the given TTL.
func NewQuoteCacheRepository(client *redis.Client, expiration time.Duration) *QuoteCacheRepository {
	return &QuoteCacheRepository{client: client, exp: expiration}
}

func (r *QuoteCacheRepository) get(ctx context.Context, key string) (decimal.Decimal, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return decimal.Zero, fmt.Errorf("cache miss for %s", key)
		}
		logger.Log.Errorw("cache read failed", "key", key, "error", err)
		return decimal.Zero, err
	}

	d, err := decimal.NewFromString(val)
	if err != nil {
		logger.Log.Errorw("cache holds malformed decimal", "key", key, "value", val, "error", err)
		return decimal.Zero, err
	}
	return d, nil
}

func (r *QuoteCacheRepository) set(ctx context.Context, key string, d decimal.Decimal) error {
	err := r.client.Set(ctx, key, d.String(), r.exp).Err()
	if err != nil {
		logger.Log.Errorw("cache write failed", "key", key, "error", err)
	}
	return err
}

// GetRate fetches a cached exchange rate between two currencies.
func (r *QuoteCacheRepository) GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	return r.get(ctx, fmt.Sprintf("exchange_rate:%s:%s", fromCurrency, toCurrency))
}

// SetRate caches an exchange rate.
func (r *QuoteCacheRepository) SetRate(ctx context.Context, fromCurrency, toCurrency string, rate decimal.Decimal) error {
	return r.set(ctx, fmt.Sprintf("exchange_rate:%s:%s", fromCurrency, toCurrency), rate)
}

// GetSpotPrice fetches a cached commodity spot price.
func (r *QuoteCacheRepository) GetSpotPrice(ctx context.Context, commodity, currency string) (decimal.Decimal, error) {
	return r.get(ctx, fmt.Sprintf("spot_price:%s:%s", commodity, currency))
}

// SetSpotPrice caches a commodity spot price.
func (r *QuoteCacheRepository) SetSpotPrice(ctx context.Context, commodity, currency string, price decimal.Decimal) error {
	return r.set(ctx, fmt.Sprintf("spot_price:%s:%s", commodity, currency), price)
}
