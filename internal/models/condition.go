package models

// Condition tags recognised by the return processor.
const (
	ConditionTagGood    = "GOOD"
	ConditionTagFair    = "FAIR"
	ConditionTagDamaged = "DAMAGED"
)

// Condition is a catalog entry describing the physical state of an item.
type Condition struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string `gorm:"type:varchar(64);not null" json:"name"`
	Tag         string `gorm:"type:varchar(32);uniqueIndex;not null" json:"tag"`
	Description string `gorm:"type:varchar(255)" json:"description,omitempty"`
}

// IsDamaged reports whether the condition marks an item as damaged.
func (c Condition) IsDamaged() bool {
	return c.Tag == ConditionTagDamaged
}
