package models

// Item is a loanable asset.
type Item struct {
	BaseModel

	Code             string `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Name             string `gorm:"type:varchar(255);not null" json:"name"`
	AvailableForLoan bool   `gorm:"not null;default:true" json:"available_for_loan"`
}
