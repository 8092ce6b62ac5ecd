package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification statuses.
const (
	NotificationPending   = "pending"
	NotificationSent      = "sent"
	NotificationFailed    = "failed"
	NotificationCancelled = "cancelled"
)

// Notification is a queued outbound WhatsApp message. The notifier process polls
// pending rows whose ScheduledFor has passed.
type Notification struct {
	gorm.Model
	OrganizationID uint           `json:"organization_id" gorm:"index;not null"`
	AppointmentID  *uint          `json:"appointment_id" gorm:"index"`
	PatientID      uint           `json:"patient_id" gorm:"index"`
	Recipient      string         `json:"recipient" gorm:"type:varchar(64)"`
	Message        string         `json:"message" gorm:"type:text"`
	MediaURL       string         `json:"media_url"`
	ScheduledFor   time.Time      `json:"scheduled_for" gorm:"index;not null"`
	Status         string         `json:"status" gorm:"type:varchar(16);default:pending;index"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"last_error" gorm:"type:text"`
	SentAt         *time.Time     `json:"sent_at"`
	ExternalRef    string         `json:"external_ref" gorm:"type:varchar(128)"`
	Payload        datatypes.JSON `json:"payload" gorm:"type:json"`
}
