package endpoint

import (
	"fmt"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
)

type updateOrganizationRequest struct {
	Name     string `json:"name" example:"Centro Kinesio Palermo"`
	Phone    string `json:"phone" example:"1145678901"`
	Address  string `json:"address" example:"Av. Santa Fe 1234, CABA"`
	Timezone string `json:"timezone" example:"America/Argentina/Buenos_Aires"`
}

// GetOrganization godoc
// @Summary      Get the caller's organization
// @Tags         Organization
// @Produce      json
// @Security     SessionToken
// @Success      200 {object} util.APIResponse{data=model.Organization} "Organization retrieved"
// @Failure      404 {object} util.APIResponse "Organization not found"
// @Router       /organization [get]
func GetOrganization(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	var org model.Organization
	if err := s.DB.First(&org, s.OrgID).Error; err != nil {
		respondFetchError(c, err, "Organization")
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Organization retrieved", Data: org})
}

// UpdateOrganization godoc
// @Summary      Update the caller's organization (admin only)
// @Tags         Organization
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body updateOrganizationRequest true "Changes"
// @Success      200 {object} util.APIResponse{data=model.Organization} "Organization updated"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Router       /organization [patch]
func UpdateOrganization(c *gin.Context) {
	var req updateOrganizationRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			util.CallUserError(c, util.APIErrorParams{Msg: "Unknown timezone", Err: fmt.Errorf("unknown timezone %q: %w", req.Timezone, err)})
			return
		}
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var org model.Organization
	if err := s.DB.First(&org, s.OrgID).Error; err != nil {
		respondFetchError(c, err, "Organization")
		return
	}
	if name := util.NormalizeName(req.Name); name != "" {
		org.Name = name
	}
	if req.Phone != "" {
		org.Phone = req.Phone
	}
	if req.Address != "" {
		org.Address = req.Address
	}
	if req.Timezone != "" {
		org.Timezone = req.Timezone
	}
	if err := s.DB.Save(&org).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update organization", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Organization updated", Data: org})
}
