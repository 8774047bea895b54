package models

// BorrowerStatus describes whether a borrower may take out new loans.
type BorrowerStatus string

const (
	BorrowerStatusActive    BorrowerStatus = "ACTIVE"
	BorrowerStatusDefaulter BorrowerStatus = "DEFAULTER"
	BorrowerStatusSuspended BorrowerStatus = "SUSPENDED"
)

// Borrower is a person who can request loans. ExternalID is the identifier
// other systems use, such as a national document number.
type Borrower struct {
	BaseModel

	ExternalID string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"external_id"`
	FullName   string         `gorm:"type:varchar(255);not null" json:"full_name"`
	Email      string         `gorm:"type:varchar(255)" json:"email,omitempty"`
	Status     BorrowerStatus `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status"`
}

// Eligible reports whether the borrower can take out a new loan.
func (b Borrower) Eligible() bool {
	return b.Status == BorrowerStatusActive
}
