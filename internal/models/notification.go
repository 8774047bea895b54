package models

import (
	"time"

	"gorm.io/datatypes"
)

// TemplateType identifies the lifecycle event a notification template covers.
type TemplateType string

const (
	TemplateTypeLoan       TemplateType = "LOAN"
	TemplateTypeReturn     TemplateType = "RETURN"
	TemplateTypeExpiration TemplateType = "EXPIRATION"
)

// NotificationTemplate holds the title and body text rendered for an event type.
type NotificationTemplate struct {
	BaseModel

	Type  TemplateType `gorm:"type:varchar(20);uniqueIndex;not null" json:"type"`
	Title string       `gorm:"type:varchar(255);not null" json:"title"`
	Body  string       `gorm:"type:text;not null" json:"body"`
}

// Notification is a rendered message addressed to a borrower about a loan.
type Notification struct {
	BaseModel

	Type        TemplateType   `gorm:"type:varchar(20);not null;index" json:"type"`
	RecipientID string         `gorm:"type:varchar(36);not null;index" json:"recipient_id"`
	EntityType  string         `gorm:"type:varchar(32);not null" json:"entity_type"`
	EntityID    string         `gorm:"type:varchar(36);not null;index" json:"entity_id"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Content     string         `gorm:"type:text;not null" json:"content"`
	Delivered   bool           `gorm:"not null;default:false" json:"delivered"`
	Metadata    datatypes.JSON `gorm:"type:json" json:"metadata,omitempty"`

	Deliveries []DeliveryRecord `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"deliveries,omitempty"`
}

// DeliveryStatus is the outcome of a channel delivery.
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "SENT"
	DeliveryStatusFailed DeliveryStatus = "FAILED"
)

// DeliveryRecord captures one channel's attempt to deliver a notification.
type DeliveryRecord struct {
	BaseModel

	NotificationID string         `gorm:"type:varchar(36);not null;index" json:"notification_id"`
	Channel        string         `gorm:"type:varchar(32);not null" json:"channel"`
	Status         DeliveryStatus `gorm:"type:varchar(20);not null" json:"status"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	Error          string         `gorm:"type:text" json:"error,omitempty"`
	AttemptedAt    time.Time      `gorm:"not null" json:"attempted_at"`
}
