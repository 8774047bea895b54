package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/models"
	apperrors "github.com/charlesng35/loandesk/pkg/errors"
)

// BorrowerDirectory resolves borrowers and manages their standing.
type BorrowerDirectory interface {
	ResolveByExternalID(ctx context.Context, externalID string) (*models.Borrower, error)
	Get(ctx context.Context, id string) (*models.Borrower, error)
	SetDefaulterStatus(ctx context.Context, id string) error
	ClearDefaulterStatus(ctx context.Context, id string) error
	// WithTx binds the directory to an open transaction.
	WithTx(tx *gorm.DB) BorrowerDirectory
}

// GormBorrowerDirectory is the relational BorrowerDirectory.
type GormBorrowerDirectory struct {
	db *gorm.DB
}

// NewBorrowerDirectory constructs a gorm-backed BorrowerDirectory.
func NewBorrowerDirectory(db *gorm.DB) (*GormBorrowerDirectory, error) {
	if db == nil {
		return nil, errors.New("borrower directory: db is required")
	}
	return &GormBorrowerDirectory{db: db}, nil
}

// WithTx implements BorrowerDirectory.
func (d *GormBorrowerDirectory) WithTx(tx *gorm.DB) BorrowerDirectory {
	return &GormBorrowerDirectory{db: tx}
}

// ResolveByExternalID looks a borrower up by document id.
func (d *GormBorrowerDirectory) ResolveByExternalID(ctx context.Context, externalID string) (*models.Borrower, error) {
	ctx = ensureContext(ctx)

	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperrors.NewBadRequest("borrower external id is required")
	}

	var borrower models.Borrower
	if err := d.db.WithContext(ctx).First(&borrower, "external_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("borrower %q not found", externalID)
		}
		return nil, fmt.Errorf("borrower directory: resolve borrower: %w", err)
	}
	return &borrower, nil
}

// Get loads a borrower by internal id.
func (d *GormBorrowerDirectory) Get(ctx context.Context, id string) (*models.Borrower, error) {
	ctx = ensureContext(ctx)

	var borrower models.Borrower
	if err := d.db.WithContext(ctx).First(&borrower, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("borrower %s not found", id)
		}
		return nil, fmt.Errorf("borrower directory: get borrower: %w", err)
	}
	return &borrower, nil
}

// SetDefaulterStatus marks the borrower as a defaulter.
func (d *GormBorrowerDirectory) SetDefaulterStatus(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := d.db.WithContext(ctx).
		Model(&models.Borrower{}).
		Where("id = ?", id).
		Update("status", models.BorrowerStatusDefaulter)
	if result.Error != nil {
		return fmt.Errorf("borrower directory: set defaulter: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	exists, err := rowExists(ctx, d.db, &models.Borrower{}, id)
	if err != nil {
		return fmt.Errorf("borrower directory: lookup: %w", err)
	}
	if !exists {
		return apperrors.ErrNotFound.WithMessage("borrower %s not found", id)
	}
	return nil
}

// ClearDefaulterStatus restores a defaulter to active standing. Suspended borrowers are left untouched.
func (d *GormBorrowerDirectory) ClearDefaulterStatus(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	if err := d.db.WithContext(ctx).
		Model(&models.Borrower{}).
		Where("id = ? AND status = ?", id, models.BorrowerStatusDefaulter).
		Update("status", models.BorrowerStatusActive).Error; err != nil {
		return fmt.Errorf("borrower directory: clear defaulter: %w", err)
	}
	return nil
}
