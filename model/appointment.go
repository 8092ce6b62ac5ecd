package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusAttended  = "attended"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

var appointmentStatuses = []string{StatusScheduled, StatusConfirmed, StatusAttended, StatusCancelled, StatusNoShow}

// AppointmentStatuses returns every valid status in display order.
func AppointmentStatuses() []string {
	return append([]string(nil), appointmentStatuses...)
}

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s string) bool {
	for _, v := range appointmentStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Appointment is a turno: one patient with one specialist for one specialty in an
// optional box during [StartAt, EndAt).
type Appointment struct {
	gorm.Model
	OrganizationID uint            `json:"organization_id" gorm:"index;not null"`
	PatientID      uint            `json:"patient_id" gorm:"index;not null"`
	SpecialistID   uint            `json:"specialist_id" gorm:"index;not null"`
	SpecialtyID    uint            `json:"specialty_id" gorm:"index;not null"`
	BoxID          *uint           `json:"box_id" gorm:"index"`
	StartAt        time.Time       `json:"start_at" gorm:"index;not null"`
	EndAt          time.Time       `json:"end_at" gorm:"not null"`
	Status         string          `json:"status" gorm:"type:varchar(16);default:scheduled;index"`
	Notes          string          `json:"notes"`
	Price          decimal.Decimal `json:"price" gorm:"type:decimal(12,2);default:0"`

	Patient    *Patient    `json:"patient,omitempty"`
	Specialist *Specialist `json:"specialist,omitempty"`
	Specialty  *Specialty  `json:"specialty,omitempty"`
	Box        *Box        `json:"box,omitempty"`
}

// IsActive reports whether the appointment still occupies its slot.
func (a Appointment) IsActive() bool {
	return a.Status != StatusCancelled && a.Status != StatusNoShow
}

// Overlaps reports whether the appointment's interval intersects [start, end).
// Touching intervals (one ends exactly when the other starts) do not overlap.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.StartAt.Before(end) && start.Before(a.EndAt)
}
