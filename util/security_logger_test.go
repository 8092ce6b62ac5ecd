package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestLogger captures security log output in a buffer and returns a
// cleanup function restoring the original logger.
func setupTestLogger() (*bytes.Buffer, func()) {
	buf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return buf, SetSecurityLoggerForTest(logger)
}

func assertLogContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, substr := range expected {
		assert.Contains(t, output, substr)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "removes newlines", input: "hello\nworld", expected: "hello world"},
		{name: "removes carriage returns", input: "hello\rworld", expected: "hello world"},
		{name: "removes tabs", input: "hello\tworld", expected: "hello world"},
		{name: "truncates long values", input: strings.Repeat("a", 250), expected: strings.Repeat("a", 200) + "..."},
		{name: "handles normal strings", input: "normal string", expected: "normal string"},
		{name: "handles empty string", input: "", expected: ""},
		{name: "combines multiple issues", input: "line1\nline2\rline3\ttab", expected: "line1 line2 line3 tab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeLogValue(tt.input))
		})
	}
}

func TestFormatLocation(t *testing.T) {
	assert.Equal(t, "Rosario/Argentina", formatLocation("Rosario", "Argentina"))
	assert.Equal(t, "Argentina", formatLocation("", "Argentina"))
	assert.Equal(t, "Rosario", formatLocation("Rosario", ""))
	assert.Equal(t, "", formatLocation("", ""))
}

func TestLogSecurityEventBasic(t *testing.T) {
	buf, cleanup := setupTestLogger()
	defer cleanup()

	LogSecurityEvent(SecurityEvent{
		EventType:      EventLoginSuccess,
		OrganizationID: 4,
		UserID:         "123",
		Email:          "user@example.com",
		IP:             "192.168.1.1",
		UserAgent:      "Mozilla/5.0",
		Message:        "Login successful",
	})

	assertLogContains(t, buf.String(), []string{
		"event=LOGIN_SUCCESS",
		"user_id=123",
		"email=user@example.com",
		"ip=192.168.1.1",
		"user_agent=Mozilla/5.0",
		"organization_id=4",
		"component=security",
		`msg="Login successful"`,
	})
}

func TestLogSecurityEventSanitization(t *testing.T) {
	buf, cleanup := setupTestLogger()
	defer cleanup()

	LogSecurityEvent(SecurityEvent{
		EventType: EventLoginFailure,
		Email:     "user@example.com",
		Message:   "Failed\nlogin\rattempt",
	})

	out := buf.String()
	assertLogContains(t, out, []string{"event=LOGIN_FAILURE", `msg="Failed login attempt"`})
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestLogSecurityEventWithDetails(t *testing.T) {
	buf, cleanup := setupTestLogger()
	defer cleanup()

	LogSecurityEvent(SecurityEvent{
		EventType: EventSuspiciousActivity,
		Message:   "Suspicious activity detected",
		Details: map[string]interface{}{
			"reason": "multiple IPs",
			"count":  5,
		},
	})

	assertLogContains(t, buf.String(), []string{"event=SUSPICIOUS_ACTIVITY", "details_count=2"})
	assert.NotContains(t, buf.String(), "multiple IPs")
}

func TestLoginLogging(t *testing.T) {
	tests := []struct {
		name     string
		logFunc  func()
		contains []string
	}{
		{
			name: "LogLoginSuccess",
			logFunc: func() {
				LogLoginSuccess(LoginParams{UserID: 123, Email: "user@example.com", IP: "192.168.1.1", UserAgent: "Mozilla/5.0"})
			},
			contains: []string{"event=LOGIN_SUCCESS", "user_id=123", `msg="User logged in successfully"`},
		},
		{
			name: "LogLoginFailure",
			logFunc: func() {
				LogLoginFailure(LoginParams{Email: "user@example.com", IP: "192.168.1.1", Reason: "invalid password"})
			},
			contains: []string{"event=LOGIN_FAILURE", "email=user@example.com", `msg="Login failed: invalid password"`},
		},
		{
			name: "LogLogout",
			logFunc: func() {
				LogLogout(LoginParams{UserID: 456, Email: "user@example.com", IP: "192.168.1.2"})
			},
			contains: []string{"event=LOGOUT", "user_id=456", `msg="User logged out"`},
		},
		{
			name: "LogSignupRollback",
			logFunc: func() {
				LogSignupRollback(LoginParams{UserID: 9, Email: "new@example.com", Reason: "session create failed"})
			},
			contains: []string{"event=SIGNUP_ROLLBACK", "user_id=9", `msg="Signup rolled back: session create failed"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, cleanup := setupTestLogger()
			defer cleanup()

			tt.logFunc()
			assertLogContains(t, buf.String(), tt.contains)
		})
	}
}

func TestAccountAndAccessLogging(t *testing.T) {
	tests := []struct {
		name     string
		logFunc  func()
		contains []string
	}{
		{
			name: "LogAccountLocked",
			logFunc: func() {
				LogAccountLocked(AccountLockParams{UserID: 789, Email: "locked@example.com", Reason: "too many failed attempts"})
			},
			contains: []string{"event=ACCOUNT_LOCKED", "user_id=789", `msg="Account locked: too many failed attempts"`},
		},
		{
			name: "LogUnauthorizedAccess",
			logFunc: func() {
				LogUnauthorizedAccess(UnauthorizedAccessParams{UserID: "101", Resource: "/user", Reason: "insufficient permissions"})
			},
			contains: []string{"event=UNAUTHORIZED_ACCESS", "user_id=101", `msg="Unauthorized access to /user: insufficient permissions"`},
		},
		{
			name: "LogRateLimitExceeded",
			logFunc: func() {
				LogRateLimitExceeded(RateLimitParams{IP: "192.168.1.5", Endpoint: "/login"})
			},
			contains: []string{"event=RATE_LIMIT_EXCEEDED", "ip=192.168.1.5", `msg="Rate limit exceeded for endpoint: /login"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, cleanup := setupTestLogger()
			defer cleanup()

			tt.logFunc()
			assertLogContains(t, buf.String(), tt.contains)
		})
	}
}

func TestLogSecurityEvent_Persists(t *testing.T) {
	db := setupUtilTestDB(t)
	SetSecurityLoggerDB(db)
	t.Cleanup(func() { SetSecurityLoggerDB(nil) })
	_, cleanup := setupTestLogger()
	defer cleanup()

	LogAccountLocked(AccountLockParams{OrganizationID: 2, UserID: 5, Email: "a@b.com", IP: "127.0.0.1", Reason: "too many failed attempts"})

	var logs []model.SecurityLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, string(EventAccountLocked), logs[0].EventType)
	assert.Equal(t, uint(2), logs[0].OrganizationID)
	assert.Equal(t, "5", logs[0].UserID)
	assert.Equal(t, "", logs[0].Location)
}
