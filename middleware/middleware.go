package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	DBKey             = "db"
	UserIDKey         = "user_id"
	RoleIDKey         = "role_id"
	OrganizationIDKey = "organization_id"
	SessionTokenKey   = "session_token"

	SessionTokenHeader = "session-token"
)

// CORSMiddleware configures CORS headers for incoming requests.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "X-Requested-With, Content-Type, Authorization, session-token")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		// For preflight requests, respond with 204 and abort further processing.
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// DatabaseMiddleware injects the shared gorm handle into every request context.
func DatabaseMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(DBKey, db)
		c.Next()
	}
}

// GetDB returns the request's gorm handle, or nil when DatabaseMiddleware is not installed.
func GetDB(c *gin.Context) *gorm.DB {
	v, ok := c.Get(DBKey)
	if !ok {
		return nil
	}
	db, _ := v.(*gorm.DB)
	return db
}

// GetUserID returns the authenticated user id set by ValidateLoginToken.
func GetUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// GetRoleID returns the authenticated user's role.
func GetRoleID(c *gin.Context) (uint32, bool) {
	v, ok := c.Get(RoleIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint32)
	return id, ok && id != 0
}

// GetOrganizationID returns the organization the authenticated user belongs to.
func GetOrganizationID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(OrganizationIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// TenantDB returns the request's gorm handle restricted to the caller's organization.
func TenantDB(c *gin.Context) (*gorm.DB, uint, bool) {
	db := GetDB(c)
	orgID, ok := GetOrganizationID(c)
	if db == nil || !ok {
		return nil, 0, false
	}
	return db.Scopes(model.ForOrganization(orgID)).Session(&gorm.Session{}), orgID, true
}

type sessionRow struct {
	UserID         uint
	RoleID         uint32
	OrganizationID uint
	ExpiresAt      time.Time
}

func lookupSessionInDB(db *gorm.DB, token string) (sessionRow, error) {
	var row sessionRow
	err := db.Table("sessions").
		Select("sessions.user_id, users.role_id, users.organization_id, sessions.expires_at").
		Joins("JOIN users ON users.id = sessions.user_id AND users.deleted_at IS NULL").
		Where("sessions.session_token = ? AND sessions.deleted_at IS NULL AND sessions.expires_at > ?", token, time.Now().UTC()).
		Take(&row).Error
	return row, err
}

func setIdentity(c *gin.Context, token string, info util.SessionInfo) {
	c.Set(SessionTokenKey, token)
	c.Set(UserIDKey, info.UserID)
	c.Set(RoleIDKey, info.RoleID)
	c.Set(OrganizationIDKey, info.OrganizationID)
}

func rejectToken(c *gin.Context, reason string) {
	util.LogUnauthorizedAccess(util.UnauthorizedAccessParams{
		IP:       c.ClientIP(),
		Resource: c.Request.URL.Path,
		Reason:   reason,
	})
	util.CallUserNotAuthorized(c, util.APIErrorParams{
		Msg: "Invalid or expired session",
		Err: fmt.Errorf("%s", reason),
	})
	c.Abort()
}

// ValidateLoginToken authenticates the session-token header. The Redis cache is
// consulted first; misses and malformed cache entries fall back to the
// sessions table and re-populate the cache.
func ValidateLoginToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(SessionTokenHeader)
		if token == "" {
			rejectToken(c, "session token not provided")
			return
		}

		db := GetDB(c)
		if db == nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Database connection not available", Err: fmt.Errorf("db is nil")})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		info, found, err := util.LookupSession(ctx, token)
		if err != nil {
			logrus.WithError(err).Debug("session cache lookup failed, falling back to database")
		}
		if found {
			setIdentity(c, token, info)
			c.Next()
			return
		}

		row, err := lookupSessionInDB(db, token)
		if err != nil {
			rejectToken(c, "session not found or expired")
			return
		}
		info = util.SessionInfo{UserID: row.UserID, RoleID: row.RoleID, OrganizationID: row.OrganizationID}
		if ttl := time.Until(row.ExpiresAt); ttl > 0 {
			if err := util.CacheSession(ctx, token, info, ttl); err != nil {
				logrus.WithError(err).Warn("failed to cache session")
			}
		}

		setIdentity(c, token, info)
		c.Next()
	}
}

// RequireRole lets the request through only when the caller has one of roles.
func RequireRole(roles ...uint32) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleID, ok := GetRoleID(c)
		if ok {
			for _, r := range roles {
				if r == roleID {
					c.Next()
					return
				}
			}
		}

		userID, _ := GetUserID(c)
		orgID, _ := GetOrganizationID(c)
		util.LogUnauthorizedAccess(util.UnauthorizedAccessParams{
			OrganizationID: orgID,
			UserID:         fmt.Sprintf("%d", userID),
			IP:             c.ClientIP(),
			Resource:       c.Request.URL.Path,
			Reason:         "insufficient role",
		})
		util.CallForbidden(c, util.APIErrorParams{
			Msg: "You do not have permission to perform this action",
			Err: fmt.Errorf("role %d not allowed", roleID),
		})
		c.Abort()
	}
}
