package facades

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// PriceCache caches spot prices with a short TTL.
type PriceCache interface {
	GetSpotPrice(ctx context.Context, commodity, currency string) (decimal.Decimal, error)
	SetSpotPrice(ctx context.Context, commodity, currency string, price decimal.Decimal) error
}

// PriceRecorder appends observations to the price history.
type PriceRecorder interface {
	RecordObservation(ctx context.Context, quote models.PriceQuote) error
}

// spotPriceResponse is the JSON body returned by the price provider.
type spotPriceResponse struct {
	PricePerGram decimal.Decimal `json:"price_per_gram"`
	Currency     string          `json:"currency"`
	ObservedAt   time.Time       `json:"observed_at"`
}

// PriceOracleHTTPFacade fetches the current commodity spot price from an
// external HTTP provider. Fresh quotes are cached with a short TTL and
// recorded into the append-only price history. There is no stale-price
// fallback: when the provider and the cache are both unavailable, the fetch
// fails and so does the trade.
type PriceOracleHTTPFacade struct {
	baseURL    string
	httpClient *http.Client
	cache      PriceCache
	recorder   PriceRecorder
}

// NewPriceOracleHTTPFacade creates a price oracle facade. cache and recorder
// may be nil to disable caching or history recording.
func NewPriceOracleHTTPFacade(baseURL string, cache PriceCache, recorder PriceRecorder) *PriceOracleHTTPFacade {
	return &PriceOracleHTTPFacade{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
		recorder:   recorder,
	}
}

// SpotPrice returns the current price per gram of the commodity in the given
// currency together with the observation time.
func (f *PriceOracleHTTPFacade) SpotPrice(ctx context.Context, commodity, currency string) (decimal.Decimal, time.Time, error) {
	if f.cache != nil {
		if price, err := f.cache.GetSpotPrice(ctx, commodity, currency); err == nil {
			return price, time.Now().UTC(), nil
		}
	}

	reqURL := fmt.Sprintf("%s/spot?commodity=%s&currency=%s",
		f.baseURL, url.QueryEscape(commodity), url.QueryEscape(currency))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("create spot price request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("fetch spot price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, time.Time{}, fmt.Errorf("price provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("read spot price response: %w", err)
	}

	var quote spotPriceResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("parse spot price response: %w", err)
	}
	if !quote.PricePerGram.IsPositive() {
		return decimal.Zero, time.Time{}, fmt.Errorf("price provider returned non-positive price %s", quote.PricePerGram)
	}
	observedAt := quote.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	if f.cache != nil {
		if err := f.cache.SetSpotPrice(ctx, commodity, currency, quote.PricePerGram); err != nil {
			logger.Log.Errorw("failed to cache spot price", "commodity", commodity, "currency", currency, "error", err)
		}
	}
	if f.recorder != nil {
		if err := f.recorder.RecordObservation(ctx, models.PriceQuote{
			PricePerGram: quote.PricePerGram,
			Currency:     currency,
			ObservedAt:   observedAt,
		}); err != nil {
			logger.Log.Errorw("failed to record price observation", "commodity", commodity, "currency", currency, "error", err)
		}
	}

	return quote.PricePerGram, observedAt, nil
}
