package postgres

import (
	"context"
	"database/sql"

	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

// SettingsRepository stores engine configuration documents by key
type SettingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

var _ settings.Repository = (*SettingsRepository)(nil)

func (r *SettingsRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, "SELECT document FROM engine_settings WHERE setting_key = ?", key).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, errors.ConfigMissing(key)
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to read settings", err)
	}
	return []byte(doc), nil
}

func (r *SettingsRepository) Put(ctx context.Context, key string, doc []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engine_settings (setting_key, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (setting_key) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`, key, string(doc), formatTime(timeNow()))
	if err != nil {
		return errors.DatabaseError("Failed to store settings", err)
	}
	return nil
}
