package models

import "time"

// LockLease is a named lease held by one process until ExpiresAt.
type LockLease struct {
	Name      string    `gorm:"primaryKey;size:128"`
	Token     string    `gorm:"type:varchar(36);not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
