package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/models"
)

// CreateDetailInput describes one line item appended to a loan.
type CreateDetailInput struct {
	LoanID           string
	ItemID           string
	Quantity         int
	ExitConditionID  *string
	ExitObservations string
}

// LoanDetailStore persists the line items owned by a loan.
type LoanDetailStore struct {
	db *gorm.DB
}

// NewLoanDetailStore constructs a LoanDetailStore.
func NewLoanDetailStore(db *gorm.DB) (*LoanDetailStore, error) {
	if db == nil {
		return nil, errors.New("loan detail store: db is required")
	}
	return &LoanDetailStore{db: db}, nil
}

// WithTx returns a store bound to the supplied transaction.
func (s *LoanDetailStore) WithTx(tx *gorm.DB) *LoanDetailStore {
	return &LoanDetailStore{db: tx}
}

// CreateDetail inserts a single line item.
func (s *LoanDetailStore) CreateDetail(ctx context.Context, input CreateDetailInput) (*models.LoanDetail, error) {
	ctx = ensureContext(ctx)

	loanID := strings.TrimSpace(input.LoanID)
	itemID := strings.TrimSpace(input.ItemID)
	if loanID == "" || itemID == "" {
		return nil, errors.New("loan detail store: loan id and item id are required")
	}
	if input.Quantity < 1 {
		return nil, fmt.Errorf("loan detail store: quantity must be at least 1, got %d", input.Quantity)
	}

	detail := &models.LoanDetail{
		LoanID:           loanID,
		ItemID:           itemID,
		Quantity:         input.Quantity,
		ExitConditionID:  input.ExitConditionID,
		ExitObservations: strings.TrimSpace(input.ExitObservations),
	}
	if err := s.db.WithContext(ctx).Create(detail).Error; err != nil {
		return nil, fmt.Errorf("loan detail store: create detail: %w", err)
	}
	return detail, nil
}

// ListByLoan returns every detail attached to loanID.
func (s *LoanDetailStore) ListByLoan(ctx context.Context, loanID string) ([]models.LoanDetail, error) {
	ctx = ensureContext(ctx)

	var details []models.LoanDetail
	if err := s.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("created_at ASC").
		Find(&details).Error; err != nil {
		return nil, fmt.Errorf("loan detail store: list details: %w", err)
	}
	return details, nil
}

// ListByLoans groups the details of several loans by loan id.
func (s *LoanDetailStore) ListByLoans(ctx context.Context, loanIDs []string) (map[string][]models.LoanDetail, error) {
	ctx = ensureContext(ctx)

	grouped := make(map[string][]models.LoanDetail, len(loanIDs))
	ids := normaliseIDs(loanIDs)
	if len(ids) == 0 {
		return grouped, nil
	}

	var details []models.LoanDetail
	if err := s.db.WithContext(ctx).
		Where("loan_id IN ?", ids).
		Order("created_at ASC").
		Find(&details).Error; err != nil {
		return nil, fmt.Errorf("loan detail store: list details: %w", err)
	}
	for _, detail := range details {
		grouped[detail.LoanID] = append(grouped[detail.LoanID], detail)
	}
	return grouped, nil
}

// RecordExitCondition sets the hand-off condition of a detail.
func (s *LoanDetailStore) RecordExitCondition(ctx context.Context, detailID, conditionID, observations string) error {
	return s.updateDetail(ctx, detailID, map[string]any{
		"exit_condition_id": conditionID,
		"exit_observations": strings.TrimSpace(observations),
	})
}

// RecordReturnCondition sets the condition a detail came back in.
func (s *LoanDetailStore) RecordReturnCondition(ctx context.Context, detailID, conditionID, observations string) error {
	return s.updateDetail(ctx, detailID, map[string]any{
		"return_condition_id": conditionID,
		"return_observations": strings.TrimSpace(observations),
	})
}

func (s *LoanDetailStore) updateDetail(ctx context.Context, detailID string, updates map[string]any) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.LoanDetail{}).
		Where("id = ?", detailID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("loan detail store: update detail: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	exists, err := rowExists(ctx, s.db, &models.LoanDetail{}, detailID)
	if err != nil {
		return fmt.Errorf("loan detail store: lookup: %w", err)
	}
	if !exists {
		return fmt.Errorf("loan detail store: detail %s not found", detailID)
	}
	return nil
}

// attachDetails hydrates each loan with its line items.
func (s *LoanDetailStore) attachDetails(ctx context.Context, loans []models.Loan) error {
	if len(loans) == 0 {
		return nil
	}
	ids := make([]string, len(loans))
	for i := range loans {
		ids[i] = loans[i].ID
	}
	grouped, err := s.ListByLoans(ctx, ids)
	if err != nil {
		return err
	}
	for i := range loans {
		details := grouped[loans[i].ID]
		if details == nil {
			details = []models.LoanDetail{}
		}
		loans[i].Details = details
	}
	return nil
}
