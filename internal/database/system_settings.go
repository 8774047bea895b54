package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/models"
)

// Setting keys recording when each notification sweep last completed.
const (
	LastReminderSweepSetting   = "notifications.last_reminder_sweep"
	LastExpirationSweepSetting = "notifications.last_expiration_sweep"
)

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// RecordSweepRun stores the completion time of a sweep under key in RFC3339 form.
func RecordSweepRun(ctx context.Context, db *gorm.DB, key string, at time.Time) error {
	return UpsertSystemSetting(ctx, db, key, at.UTC().Format(time.RFC3339))
}

// LastSweepRun returns the last recorded completion time for key, or the zero time.
func LastSweepRun(ctx context.Context, db *gorm.DB, key string) (time.Time, error) {
	value, err := GetSystemSetting(ctx, db, key)
	if err != nil || strings.TrimSpace(value) == "" {
		return time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("system settings: parse %q: %w", key, err)
	}
	return at, nil
}
