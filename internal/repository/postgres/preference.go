package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cyntientops/field-sync/internal/model"
	"github.com/cyntientops/field-sync/internal/repository"
)

// preferenceRow maps the notification_preferences table; the policy maps
// live in jsonb columns.
type preferenceRow struct {
	UserID     string          `db:"user_id"`
	UserRole   string          `db:"user_role"`
	Enabled    bool            `db:"enabled"`
	Types      json.RawMessage `db:"types"`
	Priorities json.RawMessage `db:"priority"`
	Channels   json.RawMessage `db:"delivery"`
	QuietHours json.RawMessage `db:"quiet_hours"`
	Sound      bool            `db:"sound"`
	Vibration  bool            `db:"vibration"`
	Badge      bool            `db:"badge"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

type preferenceRepository struct {
	BaseRepository
}

func NewPreferenceRepository(base BaseRepository) repository.PreferenceRepository {
	return &preferenceRepository{base}
}

func (r *preferenceRepository) Get(ctx context.Context, userID string) (*model.NotificationPreferences, error) {
	query := `
		SELECT user_id, user_role, enabled, types, priority, delivery,
			quiet_hours, sound, vibration, badge, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`
	var row preferenceRow
	err := r.db.GetContext(ctx, &row, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	prefs := &model.NotificationPreferences{
		UserID:    row.UserID,
		UserRole:  row.UserRole,
		Enabled:   row.Enabled,
		Sound:     row.Sound,
		Vibration: row.Vibration,
		Badge:     row.Badge,
		UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Types, &prefs.Types); err != nil {
		return nil, fmt.Errorf("failed to decode type map: %w", err)
	}
	if err := json.Unmarshal(row.Priorities, &prefs.Priorities); err != nil {
		return nil, fmt.Errorf("failed to decode priority map: %w", err)
	}
	if err := json.Unmarshal(row.Channels, &prefs.Channels); err != nil {
		return nil, fmt.Errorf("failed to decode channel map: %w", err)
	}
	if err := json.Unmarshal(row.QuietHours, &prefs.QuietHours); err != nil {
		return nil, fmt.Errorf("failed to decode quiet hours: %w", err)
	}
	return prefs, nil
}

func (r *preferenceRepository) Upsert(ctx context.Context, prefs *model.NotificationPreferences) error {
	if prefs == nil {
		return fmt.Errorf("preferences cannot be nil")
	}

	types, err := json.Marshal(prefs.Types)
	if err != nil {
		return fmt.Errorf("failed to encode type map: %w", err)
	}
	priorities, err := json.Marshal(prefs.Priorities)
	if err != nil {
		return fmt.Errorf("failed to encode priority map: %w", err)
	}
	channels, err := json.Marshal(prefs.Channels)
	if err != nil {
		return fmt.Errorf("failed to encode channel map: %w", err)
	}
	quietHours, err := json.Marshal(prefs.QuietHours)
	if err != nil {
		return fmt.Errorf("failed to encode quiet hours: %w", err)
	}

	query := `
		INSERT INTO notification_preferences (
			user_id, user_role, enabled, types, priority, delivery,
			quiet_hours, sound, vibration, badge, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			user_role = EXCLUDED.user_role,
			enabled = EXCLUDED.enabled,
			types = EXCLUDED.types,
			priority = EXCLUDED.priority,
			delivery = EXCLUDED.delivery,
			quiet_hours = EXCLUDED.quiet_hours,
			sound = EXCLUDED.sound,
			vibration = EXCLUDED.vibration,
			badge = EXCLUDED.badge,
			updated_at = NOW()
	`
	_, err = r.db.ExecContext(ctx, query,
		prefs.UserID, prefs.UserRole, prefs.Enabled,
		types, priorities, channels, quietHours,
		prefs.Sound, prefs.Vibration, prefs.Badge,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}
