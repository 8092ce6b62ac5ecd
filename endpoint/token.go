package endpoint

import (
	"errors"
	"time"

	"github.com/ariebrainware/kinesio-turnos/middleware"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
)

// tokenInfo is what the front-end needs to restore a session after a reload.
type tokenInfo struct {
	UserID           uint      `json:"user_id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	RoleID           uint32    `json:"role_id"`
	Role             string    `json:"role"`
	OrganizationID   uint      `json:"organization_id"`
	OrganizationName string    `json:"organization_name"`
	Timezone         string    `json:"timezone"`
	SpecialistID     *uint     `json:"specialist_id"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// ValidateToken godoc
// @Summary      Validate session token
// @Description  Resolve the session token to the caller, their role and their organization
// @Tags         Authentication
// @Produce      json
// @Security     SessionToken
// @Success      200 {object} util.APIResponse "Valid session token"
// @Failure      401 {object} util.APIResponse "Invalid or expired session token"
// @Router       /token/validate [get]
func ValidateToken(c *gin.Context) {
	token := c.GetHeader(middleware.SessionTokenHeader)
	if token == "" {
		util.CallUserNotAuthorized(c, util.APIErrorParams{Msg: "Invalid session token", Err: errors.New("session token not provided")})
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	var info tokenInfo
	err := db.Table("sessions").
		Select(`users.id AS user_id, users.name, users.email, users.role_id, roles.name AS role,
			organizations.id AS organization_id, organizations.name AS organization_name,
			organizations.timezone, specialists.id AS specialist_id, sessions.expires_at`).
		Joins("JOIN users ON users.id = sessions.user_id AND users.deleted_at IS NULL").
		Joins("JOIN roles ON roles.id = users.role_id").
		Joins("JOIN organizations ON organizations.id = users.organization_id AND organizations.deleted_at IS NULL").
		Joins("LEFT JOIN specialists ON specialists.user_id = users.id AND specialists.deleted_at IS NULL").
		Where("sessions.session_token = ? AND sessions.deleted_at IS NULL AND sessions.expires_at > ?", token, time.Now().UTC()).
		Take(&info).Error
	if err != nil {
		util.CallUserNotAuthorized(c, util.APIErrorParams{Msg: "Session not found", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Valid session token", Data: info})
}
