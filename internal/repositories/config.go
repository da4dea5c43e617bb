package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
	"github.com/sbilibin2017/gw-gold-wallet/internal/models"
)

// ConfigRepository is the Postgres-backed config store. Values are validated
// against their declared data type on read and write; every mutation appends
// to the config_changes history instead of overwriting it.
type ConfigRepository struct {
	db *sqlx.DB
}

// NewConfigRepository creates a config repository.
func NewConfigRepository(db *sqlx.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Get returns the stored value for a key. Absent keys yield
// models.ErrNotFound so callers can fall back to compiled-in defaults.
func (r *ConfigRepository) Get(ctx context.Context, key string) (*models.ConfigValue, error) {
	const query = `
		SELECT key, value, data_type, default_value, updated_at
		FROM config_values
		WHERE key = $1
	`
	var row struct {
		Key          string    `db:"key"`
		Value        string    `db:"value"`
		DataType     string    `db:"data_type"`
		DefaultValue string    `db:"default_value"`
		UpdatedAt    time.Time `db:"updated_at"`
	}
	err := r.db.GetContext(ctx, &row, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: config key %s", models.ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}

	cv := &models.ConfigValue{
		Key:          row.Key,
		Value:        row.Value,
		DataType:     models.ConfigDataType(row.DataType),
		DefaultValue: row.DefaultValue,
		UpdatedAt:    row.UpdatedAt,
	}
	if err := cv.Validate(); err != nil {
		return nil, err
	}
	return cv, nil
}

// Set upserts a config value and appends a change-history entry recording the
// previous value, the actor and the reason.
func (r *ConfigRepository) Set(ctx context.Context, key, value, actor, reason string) error {
	prev, err := r.Get(ctx, key)
	oldValue := ""
	dataType := models.ConfigString
	defaultValue := value
	switch {
	case err == nil:
		oldValue = prev.Value
		dataType = prev.DataType
		defaultValue = prev.DefaultValue
	case errors.Is(err, models.ErrNotFound):
		if def, ok := models.ConfigDefaults[key]; ok {
			dataType = def.DataType
			defaultValue = def.DefaultValue
			oldValue = def.DefaultValue
		}
	default:
		return err
	}

	next := models.ConfigValue{Key: key, Value: value, DataType: dataType, DefaultValue: defaultValue}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}

	const upsert = `
		INSERT INTO config_values (key, value, data_type, default_value, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	const appendChange = `
		INSERT INTO config_changes (key, old_value, actor, reason, changed_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsert, key, value, dataType, defaultValue); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, appendChange, key, oldValue, actor, reason); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logger.Log.Infow("config value changed", "key", key, "old", oldValue, "new", value, "actor", actor)
	return nil
}

// ChangeHistory returns the append-only change log for a key, newest first.
func (r *ConfigRepository) ChangeHistory(ctx context.Context, key string, limit int) ([]models.ConfigChange, error) {
	const query = `
		SELECT old_value, actor, reason, changed_at
		FROM config_changes
		WHERE key = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var rows []struct {
		OldValue  string    `db:"old_value"`
		Actor     string    `db:"actor"`
		Reason    string    `db:"reason"`
		ChangedAt time.Time `db:"changed_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, key, limit); err != nil {
		return nil, err
	}

	changes := make([]models.ConfigChange, 0, len(rows))
	for _, row := range rows {
		changes = append(changes, models.ConfigChange{
			OldValue:  row.OldValue,
			Actor:     row.Actor,
			Reason:    row.Reason,
			ChangedAt: row.ChangedAt,
		})
	}
	return changes, nil
}

// StaticConfigStore serves compiled-in defaults, optionally overridden. Used
// in tests and when no database-backed configuration is wanted.
type StaticConfigStore struct {
	values map[string]models.ConfigValue
}

// NewStaticConfigStore creates a store seeded with models.ConfigDefaults and
// the given overrides applied on top.
func NewStaticConfigStore(overrides map[string]string) (*StaticConfigStore, error) {
	values := make(map[string]models.ConfigValue, len(models.ConfigDefaults))
	for k, v := range models.ConfigDefaults {
		values[k] = v
	}
	for k, v := range overrides {
		cv, ok := values[k]
		if !ok {
			cv = models.ConfigValue{Key: k, DataType: models.ConfigString, DefaultValue: v}
		}
		cv.Value = v
		if err := cv.Validate(); err != nil {
			return nil, err
		}
		values[k] = cv
	}
	return &StaticConfigStore{values: values}, nil
}

// Get returns the value for a key or models.ErrNotFound.
func (s *StaticConfigStore) Get(ctx context.Context, key string) (*models.ConfigValue, error) {
	cv, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: config key %s", models.ErrNotFound, key)
	}
	return &cv, nil
}
