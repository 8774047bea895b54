package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/loandesk/internal/models"
)

// Well-known condition identifiers created by SeedData.
const (
	ConditionGoodID    = "good"
	ConditionFairID    = "fair"
	ConditionDamagedID = "damaged"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Borrower{},
		&models.Item{},
		&models.Condition{},
		&models.Loan{},
		&models.LoanDetail{},
		&models.NotificationTemplate{},
		&models.Notification{},
		&models.DeliveryRecord{},
		&models.SystemSetting{},
		&models.LockLease{},
	)
}

// SeedData populates the condition catalog and default notification templates.
func SeedData(db *gorm.DB) error {
	conditions := []models.Condition{
		{ID: ConditionGoodID, Name: "Good", Tag: models.ConditionTagGood, Description: "Item works and shows no damage"},
		{ID: ConditionFairID, Name: "Fair", Tag: models.ConditionTagFair, Description: "Item works with cosmetic wear"},
		{ID: ConditionDamagedID, Name: "Damaged", Tag: models.ConditionTagDamaged, Description: "Item is damaged and needs repair"},
	}
	for _, condition := range conditions {
		if err := db.Where(models.Condition{ID: condition.ID}).Attrs(condition).FirstOrCreate(&models.Condition{}).Error; err != nil {
			return err
		}
	}

	templates := []models.NotificationTemplate{
		{
			BaseModel: models.BaseModel{ID: "template-loan"},
			Type:      models.TemplateTypeLoan,
			Title:     "Loan {{loanCode}} registered",
			Body:      "Hello {{userName}}, your loan {{loanCode}} for {{equipment}} is due on {{dueDate}}.",
		},
		{
			BaseModel: models.BaseModel{ID: "template-return"},
			Type:      models.TemplateTypeReturn,
			Title:     "Loan {{loanCode}} due soon",
			Body:      "Hello {{userName}}, please return {{equipment}} by {{dueDate}} ({{daysRemaining}} days remaining).",
		},
		{
			BaseModel: models.BaseModel{ID: "template-expiration"},
			Type:      models.TemplateTypeExpiration,
			Title:     "Loan {{loanCode}} overdue",
			Body:      "Hello {{userName}}, {{equipment}} was due on {{dueDate}} and is {{overdueDays}} days overdue.",
		},
	}
	for _, template := range templates {
		if err := db.Where(models.NotificationTemplate{Type: template.Type}).Attrs(template).FirstOrCreate(&models.NotificationTemplate{}).Error; err != nil {
			return err
		}
	}

	return nil
}
