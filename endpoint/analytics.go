package endpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/ariebrainware/kinesio-turnos/analytics"
	"github.com/ariebrainware/kinesio-turnos/config"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
)

const maxAnalyticsDays = 731

var ErrInvalidRange = errors.New("invalid date range")

// parseAnalyticsRange reads from/to as inclusive local dates and returns the
// half-open window [from, to+1d). Missing bounds default to the last 30 days.
func parseAnalyticsRange(c *gin.Context, loc *time.Location, now time.Time) (analytics.Range, error) {
	today := time.Date(now.In(loc).Year(), now.In(loc).Month(), now.In(loc).Day(), 0, 0, 0, 0, loc)
	from, to := today.AddDate(0, 0, -29), today

	if v := c.Query("from"); v != "" {
		t, err := util.ParseDate(v, loc)
		if err != nil {
			return analytics.Range{}, fmt.Errorf("%w: from must be formatted as YYYY-MM-DD", ErrInvalidRange)
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := util.ParseDate(v, loc)
		if err != nil {
			return analytics.Range{}, fmt.Errorf("%w: to must be formatted as YYYY-MM-DD", ErrInvalidRange)
		}
		to = t
	}
	if to.Before(from) {
		return analytics.Range{}, fmt.Errorf("%w: to is before from", ErrInvalidRange)
	}
	end := to.AddDate(0, 0, 1)
	if end.Sub(from) > maxAnalyticsDays*24*time.Hour {
		return analytics.Range{}, fmt.Errorf("%w: at most %d days", ErrInvalidRange, maxAnalyticsDays)
	}
	return analytics.Range{From: from, To: end}, nil
}

// GetAnalyticsSummary godoc
// @Summary      Appointment analytics
// @Description  Totals, status percentages, per-bucket counts, per-specialty and per-specialist breakdowns and revenue of attended appointments. Served from Redis for five minutes when available.
// @Tags         Analytics
// @Produce      json
// @Security     SessionToken
// @Param        from query string false "From date (YYYY-MM-DD, inclusive, default 29 days ago)"
// @Param        to query string false "To date (YYYY-MM-DD, inclusive, default today)"
// @Param        group_by query string false "day|week|month (default day)"
// @Success      200 {object} util.APIResponse{data=analytics.Summary} "Summary computed"
// @Failure      400 {object} util.APIResponse "Invalid range or granularity"
// @Router       /analytics/summary [get]
func GetAnalyticsSummary(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	loc := s.location()

	g, err := analytics.ParseGranularity(c.Query("group_by"))
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}
	r, err := parseAnalyticsRange(c, loc, time.Now())
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}

	ctx := c.Request.Context()
	summary, err := analytics.Cached(ctx, config.GetRedisClient(), analytics.CacheKey(s.OrgID, r, g), func() (analytics.Summary, error) {
		return analytics.Load(ctx, s.DB, s.OrgID, r, g, loc)
	})
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to compute analytics", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Summary computed", Data: summary})
}
