package endpoint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ariebrainware/kinesio-turnos/config"
	"github.com/ariebrainware/kinesio-turnos/middleware"
	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/notifier"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type clientInfo struct {
	IP    string
	Agent string
}

func clientInfoFrom(c *gin.Context) clientInfo {
	return clientInfo{IP: c.ClientIP(), Agent: c.Request.UserAgent()}
}

func bindJSONOrRespond(c *gin.Context, dst interface{}, msg string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: msg, Err: err})
		return false
	}
	return true
}

func getDBOrRespond(c *gin.Context) (*gorm.DB, bool) {
	db := middleware.GetDB(c)
	if db == nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Database connection not available", Err: fmt.Errorf("db is nil")})
		return nil, false
	}
	return db, true
}

// tenantScope bundles the unscoped handle (for inserts and cross-table
// transactions), the organization-scoped handle and the organization id.
type tenantScope struct {
	DB     *gorm.DB
	Tenant *gorm.DB
	OrgID  uint
}

func tenantOrRespond(c *gin.Context) (tenantScope, bool) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return tenantScope{}, false
	}
	tenant, orgID, ok := middleware.TenantDB(c)
	if !ok {
		util.CallUserNotAuthorized(c, util.APIErrorParams{Msg: "User not authenticated", Err: fmt.Errorf("organization not found in context")})
		return tenantScope{}, false
	}
	return tenantScope{DB: db, Tenant: tenant, OrgID: orgID}, true
}

// scoped returns a fresh organization-scoped handle on top of tx.
func (s tenantScope) scoped(tx *gorm.DB) *gorm.DB {
	return tx.Scopes(model.ForOrganization(s.OrgID))
}

// location returns the organization's timezone.
func (s tenantScope) location() *time.Location {
	var org model.Organization
	if err := s.DB.Select("id", "timezone").First(&org, s.OrgID).Error; err != nil {
		return config.LoadConfig().Location()
	}
	return notifier.OrganizationLocation(org, config.LoadConfig().Location())
}

// parseIDParam parses a positive integer path parameter.
func parseIDParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer", name)
	}
	if id == 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return uint(id), nil
}

func idParamOrRespond(c *gin.Context, name string) (uint, bool) {
	id, err := parseIDParam(c, name)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return 0, false
	}
	return id, true
}

// parsePositiveInt parses a positive integer from a query value returning a default
// when the value is missing or invalid. If max > 0 it caps the returned value.
func parsePositiveInt(q string, defaultVal, max int) int {
	if q == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(q)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// parseUintQuery parses an unsigned integer query parameter and returns 0 on error.
func parseUintQuery(c *gin.Context, name string) uint {
	v, err := strconv.ParseUint(c.Query(name), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}

type listQuery struct {
	Limit   int
	Offset  int
	Keyword string
}

func parseListQuery(c *gin.Context) listQuery {
	return listQuery{
		Limit:   parsePositiveInt(c.Query("limit"), 20, 100),
		Offset:  parsePositiveInt(c.Query("offset"), 0, 0),
		Keyword: c.Query("keyword"),
	}
}

func (q listQuery) apply(db *gorm.DB) *gorm.DB {
	db = db.Limit(q.Limit)
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	return db
}

// respondFetchError maps a lookup error to 404 or 500.
func respondFetchError(c *gin.Context, err error, what string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: what + " not found", Err: err})
		return
	}
	util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve " + strings.ToLower(what), Err: err})
}
