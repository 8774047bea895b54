package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/models"
	apperrors "github.com/charlesng35/loandesk/pkg/errors"
)

// ItemGateway answers availability questions about loanable items.
type ItemGateway interface {
	IsAvailableForLoan(ctx context.Context, itemID string) (bool, error)
	SetAvailability(ctx context.Context, itemID string, available bool) error
	// Names maps item ids to display names; unknown ids are omitted.
	Names(ctx context.Context, itemIDs []string) (map[string]string, error)
	WithTx(tx *gorm.DB) ItemGateway
}

// GormItemGateway is the relational ItemGateway.
type GormItemGateway struct {
	db *gorm.DB
}

// NewItemGateway constructs a gorm-backed ItemGateway.
func NewItemGateway(db *gorm.DB) (*GormItemGateway, error) {
	if db == nil {
		return nil, errors.New("item gateway: db is required")
	}
	return &GormItemGateway{db: db}, nil
}

// WithTx implements ItemGateway.
func (g *GormItemGateway) WithTx(tx *gorm.DB) ItemGateway {
	return &GormItemGateway{db: tx}
}

// IsAvailableForLoan reports the item's availability flag.
func (g *GormItemGateway) IsAvailableForLoan(ctx context.Context, itemID string) (bool, error) {
	ctx = ensureContext(ctx)

	var item models.Item
	if err := g.db.WithContext(ctx).Select("id", "available_for_loan").First(&item, "id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, apperrors.ErrNotFound.WithMessage("item %s not found", itemID)
		}
		return false, fmt.Errorf("item gateway: load item: %w", err)
	}
	return item.AvailableForLoan, nil
}

// SetAvailability updates the item's availability flag.
func (g *GormItemGateway) SetAvailability(ctx context.Context, itemID string, available bool) error {
	ctx = ensureContext(ctx)

	result := g.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ?", itemID).
		Update("available_for_loan", available)
	if result.Error != nil {
		return fmt.Errorf("item gateway: set availability: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	exists, err := rowExists(ctx, g.db, &models.Item{}, itemID)
	if err != nil {
		return fmt.Errorf("item gateway: lookup: %w", err)
	}
	if !exists {
		return apperrors.ErrNotFound.WithMessage("item %s not found", itemID)
	}
	return nil
}

// Names implements ItemGateway.
func (g *GormItemGateway) Names(ctx context.Context, itemIDs []string) (map[string]string, error) {
	ctx = ensureContext(ctx)

	names := make(map[string]string, len(itemIDs))
	ids := normaliseIDs(itemIDs)
	if len(ids) == 0 {
		return names, nil
	}

	var items []models.Item
	if err := g.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("item gateway: load names: %w", err)
	}
	for _, item := range items {
		names[item.ID] = item.Name
	}
	return names, nil
}
