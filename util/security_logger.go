package util

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SecurityEventType represents different types of security events
type SecurityEventType string

const (
	EventLoginSuccess       SecurityEventType = "LOGIN_SUCCESS"
	EventLoginFailure       SecurityEventType = "LOGIN_FAILURE"
	EventSignupSuccess      SecurityEventType = "SIGNUP_SUCCESS"
	EventSignupRollback     SecurityEventType = "SIGNUP_ROLLBACK"
	EventLogout             SecurityEventType = "LOGOUT"
	EventAccountLocked      SecurityEventType = "ACCOUNT_LOCKED"
	EventPasswordChanged    SecurityEventType = "PASSWORD_CHANGED"
	EventUnauthorizedAccess SecurityEventType = "UNAUTHORIZED_ACCESS"
	EventRateLimitExceeded  SecurityEventType = "RATE_LIMIT_EXCEEDED"
	EventSuspiciousActivity SecurityEventType = "SUSPICIOUS_ACTIVITY"
	EventEndpointCall       SecurityEventType = "ENDPOINT_CALL"
)

// SecurityEvent represents a security event to be logged
type SecurityEvent struct {
	EventType      SecurityEventType
	OrganizationID uint
	UserID         string
	Email          string
	IP             string
	UserAgent      string
	Message        string
	Details        map[string]interface{}
}

var securityLogger = logrus.StandardLogger().WithField("component", "security")
var securityDB *gorm.DB

// SetSecurityLoggerDB sets a gorm DB instance used by the security logger.
// Call this during application startup after DB initialization.
func SetSecurityLoggerDB(db *gorm.DB) {
	securityDB = db
}

// sanitizeLogValue removes newlines and other characters that could break log parsing
func sanitizeLogValue(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\t", " ")
	if len(value) > 200 {
		value = value[:200] + "..."
	}
	return value
}

func formatLocation(city, country string) string {
	switch {
	case city != "" && country != "":
		return fmt.Sprintf("%s/%s", city, country)
	case country != "":
		return country
	default:
		return city
	}
}

// LogSecurityEvent logs a security event and persists it best-effort.
func LogSecurityEvent(event SecurityEvent) {
	fields := logrus.Fields{
		"event":      sanitizeLogValue(string(event.EventType)),
		"user_id":    sanitizeLogValue(event.UserID),
		"email":      sanitizeLogValue(event.Email),
		"ip":         sanitizeLogValue(event.IP),
		"user_agent": sanitizeLogValue(event.UserAgent),
	}
	if event.OrganizationID != 0 {
		fields["organization_id"] = event.OrganizationID
	}
	if len(event.Details) > 0 {
		// Details are persisted, not logged, to keep log lines injection-free.
		fields["details_count"] = len(event.Details)
	}
	securityLogger.WithFields(fields).Info(sanitizeLogValue(event.Message))

	if securityDB == nil {
		return
	}

	var details datatypes.JSON
	if event.Details != nil {
		if b, err := json.Marshal(event.Details); err == nil {
			details = datatypes.JSON(b)
		}
	}

	loc := GetIPLocation(event.IP)
	entry := model.SecurityLog{
		EventType:      string(event.EventType),
		OrganizationID: event.OrganizationID,
		UserID:         event.UserID,
		Email:          sanitizeLogValue(event.Email),
		IP:             sanitizeLogValue(event.IP),
		Location:       sanitizeLogValue(formatLocation(loc.City, loc.Country)),
		UserAgent:      sanitizeLogValue(event.UserAgent),
		Message:        sanitizeLogValue(event.Message),
		Details:        details,
	}
	if err := securityDB.Create(&entry).Error; err != nil {
		securityLogger.WithError(err).Warn("failed to persist security event")
	}
}

// LoginParams describes an authentication event.
type LoginParams struct {
	OrganizationID uint
	UserID         uint
	Email          string
	IP             string
	UserAgent      string
	Reason         string
}

// AccountLockParams describes an account lockout.
type AccountLockParams struct {
	OrganizationID uint
	UserID         uint
	Email          string
	IP             string
	Reason         string
}

// UnauthorizedAccessParams describes a rejected request.
type UnauthorizedAccessParams struct {
	OrganizationID uint
	UserID         string
	Email          string
	IP             string
	Resource       string
	Reason         string
}

// RateLimitParams describes a throttled request.
type RateLimitParams struct {
	Email    string
	IP       string
	Endpoint string
}

func formatUserID(id uint) string {
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("%d", id)
}

// LogLoginSuccess logs a successful login event
func LogLoginSuccess(p LoginParams) {
	LogSecurityEvent(SecurityEvent{
		EventType:      EventLoginSuccess,
		OrganizationID: p.OrganizationID,
		UserID:         formatUserID(p.UserID),
		Email:          p.Email,
		IP:             p.IP,
		UserAgent:      p.UserAgent,
		Message:        "User logged in successfully",
	})
}

// LogLoginFailure logs a failed login attempt
func LogLoginFailure(p LoginParams) {
	LogSecurityEvent(SecurityEvent{
		EventType:      EventLoginFailure,
		OrganizationID: p.OrganizationID,
		UserID:         formatUserID(p.UserID),
		Email:          p.Email,
		IP:             p.IP,
		UserAgent:      p.UserAgent,
		Message:        fmt.Sprintf("Login failed: %s", p.Reason),
	})
}

// LogLogout logs a logout event
func LogLogout(p LoginParams) {
	LogSecurityEvent(SecurityEvent{
		EventType:      EventLogout,
		OrganizationID: p.OrganizationID,
		UserID:         formatUserID(p.UserID),
		Email:          p.Email,
		IP:             p.IP,
		UserAgent:      p.UserAgent,
		Message:        "User logged out",
	})
}

// LogSignupRollback logs a registration that was undone after a partial failure.
func LogSignupRollback(p LoginParams) {
	LogSecurityEvent(SecurityEvent{
		EventType:      EventSignupRollback,
		OrganizationID: p.OrganizationID,
		UserID:         formatUserID(p.UserID),
		Email:          p.Email,
		IP:             p.IP,
		UserAgent:      p.UserAgent,
		Message:        fmt.Sprintf("Signup rolled back: %s", p.Reason),
	})
}

// LogAccountLocked logs when an account is locked
func LogAccountLocked(p AccountLockParams) {
	LogSecurityEvent(SecurityEvent{
		EventType:      EventAccountLocked,
		OrganizationID: p.OrganizationID,
		UserID:         formatUserID(p.UserID),
		Email:          p.Email,
		IP:             p.IP,
		Message:        fmt.Sprintf("Account locked: %s", p.Reason),
	})
}

// LogUnauthorizedAccess logs unauthorized access attempts
func LogUnauthorizedAccess(p UnauthorizedAccessParams) {
	LogSecurityEvent(SecurityEvent{
		EventType:      EventUnauthorizedAccess,
		OrganizationID: p.OrganizationID,
		UserID:         p.UserID,
		Email:          p.Email,
		IP:             p.IP,
		Message:        fmt.Sprintf("Unauthorized access to %s: %s", p.Resource, p.Reason),
	})
}

// LogRateLimitExceeded logs when rate limit is exceeded
func LogRateLimitExceeded(p RateLimitParams) {
	LogSecurityEvent(SecurityEvent{
		EventType: EventRateLimitExceeded,
		Email:     p.Email,
		IP:        p.IP,
		Message:   fmt.Sprintf("Rate limit exceeded for endpoint: %s", p.Endpoint),
	})
}

// SetSecurityLoggerForTest sets a custom logger for testing purposes and
// returns a function restoring the previous one.
func SetSecurityLoggerForTest(logger *logrus.Logger) func() {
	prev := securityLogger
	securityLogger = logger.WithField("component", "security")
	return func() { securityLogger = prev }
}
