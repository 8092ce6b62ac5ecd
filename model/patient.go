package model

import (
	"time"

	"gorm.io/gorm"
)

type Patient struct {
	gorm.Model
	OrganizationID  uint       `json:"organization_id" gorm:"index;not null"`
	HistoryNumber   string     `json:"history_number" gorm:"type:varchar(32);index"`
	FullName        string     `json:"full_name" gorm:"type:varchar(191);not null"`
	DocumentNumber  string     `json:"document_number" gorm:"type:varchar(32);index"`
	BirthDate       *time.Time `json:"birth_date"`
	Gender          string     `json:"gender"`
	PhoneNumber     string     `json:"phone_number"`
	Email           string     `json:"email"`
	Address         string     `json:"address"`
	HealthInsurance string     `json:"health_insurance"`
	InsuranceNumber string     `json:"insurance_number"`
	HealthHistory   string     `json:"health_history"`
	SurgeryHistory  string     `json:"surgery_history"`
	Notes           string     `json:"notes"`
}

// Age returns the patient's age in whole years at now, or -1 when the birth date is unknown.
func (p Patient) Age(now time.Time) int {
	if p.BirthDate == nil {
		return -1
	}
	b := p.BirthDate.In(now.Location())
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// UpdatePatientRequest is a partial update; empty fields are left unchanged.
type UpdatePatientRequest struct {
	FullName        string `json:"full_name"`
	DocumentNumber  string `json:"document_number"`
	BirthDate       string `json:"birth_date" example:"1985-04-21"`
	Gender          string `json:"gender"`
	PhoneNumber     string `json:"phone_number" binding:"omitempty,ar_phone"`
	Email           string `json:"email" binding:"omitempty,email"`
	Address         string `json:"address"`
	HealthInsurance string `json:"health_insurance"`
	InsuranceNumber string `json:"insurance_number"`
	HealthHistory   string `json:"health_history"`
	SurgeryHistory  string `json:"surgery_history"`
	Notes           string `json:"notes"`
}
