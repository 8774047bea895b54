package models

// LoanDetail is one line item of a loan.
type LoanDetail struct {
	BaseModel

	LoanID             string  `gorm:"type:varchar(36);not null;index" json:"loan_id"`
	ItemID             string  `gorm:"type:varchar(36);not null;index" json:"item_id"`
	Quantity           int     `gorm:"not null;default:1" json:"quantity"`
	ExitConditionID    *string `gorm:"type:varchar(36)" json:"exit_condition_id,omitempty"`
	ExitObservations   string  `gorm:"type:text" json:"exit_observations,omitempty"`
	ReturnConditionID  *string `gorm:"type:varchar(36)" json:"return_condition_id,omitempty"`
	ReturnObservations string  `gorm:"type:text" json:"return_observations,omitempty"`
}
