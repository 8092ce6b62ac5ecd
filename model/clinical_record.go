package model

import (
	"time"

	"gorm.io/gorm"
)

// ClinicalRecord is one entry (evolución) in a patient's clinical history.
// @Description Clinical record information
type ClinicalRecord struct {
	gorm.Model
	OrganizationID uint      `json:"organization_id" gorm:"index;not null"`
	PatientID      uint      `json:"patient_id" gorm:"index;not null"`
	SpecialistID   uint      `json:"specialist_id" gorm:"index;not null"`
	SpecialtyID    uint      `json:"specialty_id" gorm:"index"`
	AppointmentID  *uint     `json:"appointment_id"`
	RecordDate     time.Time `json:"record_date" gorm:"not null" example:"2025-01-15T10:00:00Z"`
	Reason         string    `json:"reason" example:"Lumbalgia"`
	Diagnosis      string    `json:"diagnosis" example:"Contractura paravertebral"`
	Treatment      string    `json:"treatment" example:"Masoterapia, TENS"`
	Evolution      string    `json:"evolution" example:"Mejora del rango de movimiento"`

	Specialist *Specialist `json:"specialist,omitempty"`
	Specialty  *Specialty  `json:"specialty,omitempty"`
}
