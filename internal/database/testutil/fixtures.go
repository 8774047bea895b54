package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/models"
)

// MustCreateBorrower inserts an active borrower with the given external id.
func MustCreateBorrower(t *testing.T, db *gorm.DB, externalID, fullName string) *models.Borrower {
	t.Helper()

	borrower := &models.Borrower{
		ExternalID: externalID,
		FullName:   fullName,
		Email:      externalID + "@example.com",
		Status:     models.BorrowerStatusActive,
	}
	require.NoError(t, db.Create(borrower).Error)
	return borrower
}

// MustCreateItem inserts an item that is available for loan.
func MustCreateItem(t *testing.T, db *gorm.DB, code, name string) *models.Item {
	t.Helper()

	item := &models.Item{
		Code:             code,
		Name:             name,
		AvailableForLoan: true,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}
