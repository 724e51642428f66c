package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SettingsService reads and writes the per-user configuration record.
type SettingsService struct {
	store  Store
	logger *zap.Logger
}

func NewSettingsService(store Store, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{store: store, logger: logger}
}

// GetSettings returns the user's configuration record. A missing table, a
// missing row or a corrupt record all fall back to DefaultSettings.
func (s *SettingsService) GetSettings(ctx context.Context, userID string) (*Settings, error) {
	rows, err := s.store.Select(ctx, Query{
		Table:   TableSettings,
		Columns: []string{"data"},
		Filters: []Filter{Eq("user_id", userID)},
		Limit:   1,
	})
	if errors.Is(err, ErrTableNotFound) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	if len(rows) == 0 {
		return DefaultSettings(), nil
	}

	var raw []byte
	switch v := rows[0]["data"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		// jsonb columns come back already decoded
		if raw, err = json.Marshal(v); err != nil {
			return DefaultSettings(), nil
		}
	}

	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		s.logger.Warn("corrupt settings record, using defaults", zap.String("user", userID), zap.Error(err))
		return DefaultSettings(), nil
	}

	defaults := DefaultSettings()
	if len(settings.Priorities) == 0 {
		settings.Priorities = defaults.Priorities
	}
	if len(settings.Statuses) == 0 {
		settings.Statuses = defaults.Statuses
	}
	return &settings, nil
}

// SaveSettings creates or replaces the user's configuration record.
func (s *SettingsService) SaveSettings(ctx context.Context, userID string, settings *Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	err = s.store.Upsert(ctx, TableSettings, "user_id", Row{
		"user_id":    userID,
		"data":       string(data),
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert settings: %w", err)
	}
	return nil
}
