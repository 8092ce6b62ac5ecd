package endpoint

import (
	"fmt"
	"strings"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
)

// ListSecurityLogs godoc
// @Summary      Audit log (admin only)
// @Description  Security events of the caller's organization, newest first
// @Tags         Security
// @Produce      json
// @Security     SessionToken
// @Param        event_type query string false "Event type, e.g. LOGIN_FAILURE"
// @Param        user_id query string false "Filter by user id"
// @Param        from query string false "From date (YYYY-MM-DD, inclusive)"
// @Param        to query string false "To date (YYYY-MM-DD, inclusive)"
// @Param        limit query int false "Page size (max 100)"
// @Param        offset query int false "Offset"
// @Success      200 {object} util.APIResponse{data=object} "Security logs retrieved"
// @Failure      400 {object} util.APIResponse "Invalid date"
// @Router       /security-log [get]
func ListSecurityLogs(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	loc := s.location()

	filter := model.SecurityLogFilter{
		EventType: strings.ToUpper(strings.TrimSpace(c.Query("event_type"))),
		UserID:    strings.TrimSpace(c.Query("user_id")),
	}
	if v := c.Query("from"); v != "" {
		from, err := util.ParseDate(v, loc)
		if err != nil {
			util.CallUserError(c, util.APIErrorParams{Msg: "from must be formatted as YYYY-MM-DD", Err: err})
			return
		}
		filter.From = from
	}
	if v := c.Query("to"); v != "" {
		to, err := util.ParseDate(v, loc)
		if err != nil {
			util.CallUserError(c, util.APIErrorParams{Msg: "to must be formatted as YYYY-MM-DD", Err: err})
			return
		}
		filter.To = to.AddDate(0, 0, 1)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		util.CallUserError(c, util.APIErrorParams{Msg: "to is before from", Err: fmt.Errorf("empty range")})
		return
	}

	q := parseListQuery(c)
	query := s.Tenant.Model(&model.SecurityLog{}).Scopes(filter.Scope)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count security logs", Err: err})
		return
	}
	var logs []model.SecurityLog
	if err := q.apply(query).Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve security logs", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Security logs retrieved",
		Data: map[string]interface{}{"total": total, "total_fetched": len(logs), "logs": logs},
	})
}
