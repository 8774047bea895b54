package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/loandesk/internal/models"
)

// DatabaseLocker implements Locker on the primary SQL database for deployments without Redis.
type DatabaseLocker struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseLocker constructs a database-backed Locker.
func NewDatabaseLocker(db *gorm.DB) (*DatabaseLocker, error) {
	if db == nil {
		return nil, errors.New("database locker: db is required")
	}
	return &DatabaseLocker{db: db, now: time.Now}, nil
}

// TryLock implements Locker. An expired lease is taken over.
func (l *DatabaseLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		return "", false, errors.New("database locker: ttl must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := l.now().UTC()
	token := uuid.NewString()
	acquired := false

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lease models.LockLease
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&lease, "name = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			acquired = true
			return tx.Create(&models.LockLease{
				Name:      key,
				Token:     token,
				ExpiresAt: now.Add(ttl),
			}).Error
		}
		if err != nil {
			return err
		}
		if lease.ExpiresAt.After(now) {
			return nil
		}

		result := tx.Model(&models.LockLease{}).
			Where("name = ? AND token = ?", key, lease.Token).
			Updates(map[string]any{"token": token, "expires_at": now.Add(ttl)})
		if result.Error != nil {
			return result.Error
		}
		acquired = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("database locker: acquire %q: %w", key, err)
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock implements Locker.
func (l *DatabaseLocker) Unlock(ctx context.Context, key, token string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := l.db.WithContext(ctx).
		Where("name = ? AND token = ?", key, token).
		Delete(&models.LockLease{}).Error; err != nil {
		return fmt.Errorf("database locker: release %q: %w", key, err)
	}
	return nil
}
