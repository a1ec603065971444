package store

import (
	"context"
	"encoding/json"
	"fmt"

	"atelier-service/internal/models"
)

// GetSetting retrieves a setting by key
func (s *Store) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	if err := s.db.GetContext(ctx, &setting, "SELECT * FROM settings WHERE key = $1", key); err != nil {
		return nil, notFound(err, "setting", key)
	}
	return &setting, nil
}

// ListSettings returns every setting ordered by key
func (s *Store) ListSettings(ctx context.Context) ([]models.Setting, error) {
	settings := []models.Setting{}
	err := s.db.SelectContext(ctx, &settings, "SELECT * FROM settings ORDER BY key")
	return settings, err
}

// UpsertSetting creates or replaces a setting value
func (s *Store) UpsertSetting(ctx context.Context, key string, value json.RawMessage) (*models.Setting, error) {
	var setting models.Setting
	err := s.db.GetContext(ctx, &setting, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		RETURNING *`, key, string(value))
	if err != nil {
		return nil, fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return &setting, nil
}
