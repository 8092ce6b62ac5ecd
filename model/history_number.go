package model

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HistoryCounter holds the last clinical history number issued per organization.
type HistoryCounter struct {
	gorm.Model
	OrganizationID uint `json:"organization_id" gorm:"uniqueIndex;not null"`
	Number         int  `json:"number"`
}

// NextHistoryNumber reserves the next clinical history number ("HC-000042") for
// orgID. Call it inside a transaction so the counter and the patient row commit together.
func NextHistoryNumber(tx *gorm.DB, orgID uint) (string, error) {
	var counter HistoryCounter
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ?", orgID).First(&counter).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		counter = HistoryCounter{OrganizationID: orgID, Number: 1}
		if err := tx.Create(&counter).Error; err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		counter.Number++
		if err := tx.Model(&counter).Update("number", counter.Number).Error; err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("HC-%06d", counter.Number), nil
}
