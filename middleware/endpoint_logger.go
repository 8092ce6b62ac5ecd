package middleware

import (
	"fmt"
	"time"

	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
)

// EndpointCallLogger logs each HTTP request as an ENDPOINT_CALL security event,
// annotated with the caller's identity when the request was authenticated.
func EndpointCallLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()

		userID, _ := GetUserID(c)
		roleID, _ := GetRoleID(c)
		orgID, _ := GetOrganizationID(c)

		details := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"raw_path":    c.Request.URL.Path,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"query":       c.Request.URL.RawQuery,
		}
		if roleID != 0 {
			details["role_id"] = roleID
		}

		var email, uid string
		if userID != 0 {
			uid = fmt.Sprintf("%d", userID)
			if identity, ok := util.LookupUser(GetDB(c), userID); ok {
				email = identity.Email
			}
		}

		util.LogSecurityEvent(util.SecurityEvent{
			EventType:      util.EventEndpointCall,
			OrganizationID: orgID,
			UserID:         uid,
			Email:          email,
			IP:             c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			Message:        fmt.Sprintf("%s %s -> %d", c.Request.Method, c.Request.URL.Path, status),
			Details:        details,
		})
	}
}
