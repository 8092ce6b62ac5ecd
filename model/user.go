package model

import (
	"time"

	"gorm.io/gorm"
)

// User is an authenticated account. Specialists, receptionists and admins are all users.
type User struct {
	gorm.Model
	OrganizationID uint   `json:"organization_id" gorm:"index"`
	Name           string `json:"name" gorm:"type:varchar(191);not null"`
	Email          string `json:"email" gorm:"type:varchar(191);uniqueIndex;not null"`
	Password       string `json:"-"`
	PasswordSalt   string `json:"-"`
	RoleID         uint32 `json:"role_id"`
	FailedAttempts int    `json:"-"`
	LockedUntil    *int64 `json:"-"`
}

type Session struct {
	gorm.Model
	UserID       uint      `json:"user_id" gorm:"index"`
	SessionToken string    `json:"session_token" gorm:"type:varchar(512);uniqueIndex"`
	ExpiresAt    time.Time `json:"expires_at"`
	ClientIP     string    `json:"client_ip"`
	Browser      string    `json:"browser"`
}
