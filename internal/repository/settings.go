package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loyaltydesk/backoffice/internal/domain/settings"
)

const (
	getSettingSQL = `SELECT value FROM system_settings WHERE key = $1`

	putSettingSQL = `INSERT INTO system_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	listSettingsSQL = `SELECT key, value, updated_at FROM system_settings ORDER BY key`
)

var _ settings.Repository = (*SettingsRepository)(nil)

// SettingsRepository implements settings.Repository backed by PostgreSQL.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns the raw JSON value for a key, or settings.ErrNotFound.
func (r *SettingsRepository) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var value json.RawMessage
	err := r.pool.QueryRow(ctx, getSettingSQL, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settings.ErrNotFound
		}
		return nil, fmt.Errorf("getting setting %q: %w", key, err)
	}
	return value, nil
}

// Put upserts a setting value.
func (r *SettingsRepository) Put(ctx context.Context, key string, value json.RawMessage) error {
	_, err := r.pool.Exec(ctx, putSettingSQL, key, value)
	if err != nil {
		return fmt.Errorf("putting setting %q: %w", key, err)
	}
	return nil
}

// List returns every stored setting ordered by key.
func (r *SettingsRepository) List(ctx context.Context) ([]settings.Setting, error) {
	rows, err := r.pool.Query(ctx, listSettingsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (settings.Setting, error) {
		var s settings.Setting
		err := row.Scan(&s.Key, &s.Value, &s.UpdatedAt)
		return s, err
	})
}
