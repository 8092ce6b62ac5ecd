package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SecurityLog is a persisted audit event. OrganizationID is zero for events
// raised before the caller was identified, such as failed logins.
type SecurityLog struct {
	gorm.Model
	EventType      string `json:"event_type" gorm:"column:event_type;type:varchar(64);index"`
	OrganizationID uint   `json:"organization_id" gorm:"index"`
	UserID         string `json:"user_id" gorm:"column:user_id;type:varchar(64);index"`
	Email          string `json:"email" gorm:"column:email;type:varchar(191);index"`
	IP             string `json:"ip" gorm:"column:ip;type:varchar(45)"`
	// "City/Country" when GeoIP resolves the address.
	Location  string         `json:"location" gorm:"column:location;type:varchar(255);index"`
	UserAgent string         `json:"user_agent" gorm:"column:user_agent;type:varchar(512)"`
	Message   string         `json:"message" gorm:"column:message;type:text"`
	Details   datatypes.JSON `json:"details" gorm:"column:details;type:json"`
}

// SecurityLogFilter narrows an audit log listing. Zero values are ignored.
type SecurityLogFilter struct {
	EventType string
	UserID    string
	From      time.Time
	To        time.Time
}

// Scope applies the filter to a query on security_logs.
func (f SecurityLogFilter) Scope(db *gorm.DB) *gorm.DB {
	if f.EventType != "" {
		db = db.Where("event_type = ?", f.EventType)
	}
	if f.UserID != "" {
		db = db.Where("user_id = ?", f.UserID)
	}
	if !f.From.IsZero() {
		db = db.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		db = db.Where("created_at < ?", f.To)
	}
	return db
}
