package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// PriceHistoryRepository persists spot-price observations. The history is
// append-only: rows are inserted and read, never updated or deleted.
type PriceHistoryRepository struct {
	db *sqlx.DB
}

// NewPriceHistoryRepository creates a price history repository.
func NewPriceHistoryRepository(db *sqlx.DB) *PriceHistoryRepository {
	return &PriceHistoryRepository{db: db}
}

// RecordObservation appends a spot-price quote to the history.
func (r *PriceHistoryRepository) RecordObservation(ctx context.Context, quote models.PriceQuote) error {
	const query = `
		INSERT INTO price_history (price_per_gram, currency, observed_at)
		VALUES ($1, $2, $3)
	`
	_, err := r.db.ExecContext(ctx, query, quote.PricePerGram, quote.Currency, quote.ObservedAt)
	if err != nil {
		logger.Log.Errorw("failed to record price observation",
			"price", quote.PricePerGram, "currency", quote.Currency, "error", err)
	}
	return err
}

// History returns observations in the given window, oldest first.
func (r *PriceHistoryRepository) History(ctx context.Context, currency string, since time.Time, limit int) ([]models.PriceQuote, error) {
	const query = `
		SELECT price_per_gram, currency, observed_at
		FROM price_history
		WHERE currency = $1 AND observed_at >= $2
		ORDER BY observed_at ASC
		LIMIT $3
	`
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	var rows []struct {
		PricePerGram decimal.Decimal `db:"price_per_gram"`
		Currency     string          `db:"currency"`
		ObservedAt   time.Time       `db:"observed_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, currency, since, limit); err != nil {
		return nil, err
	}

	quotes := make([]models.PriceQuote, 0, len(rows))
	for _, row := range rows {
		quotes = append(quotes, models.PriceQuote{
			PricePerGram: row.PricePerGram,
			Currency:     row.Currency,
			ObservedAt:   row.ObservedAt,
		})
	}
	return quotes, nil
}
