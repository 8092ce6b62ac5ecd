package endpoint

import (
	"fmt"
	"strings"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
)

type boxRequest struct {
	Name        string `json:"name" example:"Box 1"`
	Description string `json:"description" example:"Camilla y equipo de electroterapia"`
	IsActive    *bool  `json:"is_active"`
}

// ListBoxes godoc
// @Summary      List boxes
// @Tags         Box
// @Produce      json
// @Security     SessionToken
// @Param        keyword query string false "Search by name"
// @Success      200 {object} util.APIResponse{data=object} "Boxes retrieved"
// @Router       /box [get]
func ListBoxes(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	q := parseListQuery(c)

	query := s.Tenant.Model(&model.Box{})
	if q.Keyword != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q.Keyword)+"%")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count boxes", Err: err})
		return
	}
	var boxes []model.Box
	if err := q.apply(query).Order("name ASC").Find(&boxes).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve boxes", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Boxes retrieved",
		Data: map[string]interface{}{"total": total, "total_fetched": len(boxes), "boxes": boxes},
	})
}

// GetBox godoc
// @Summary      Get box
// @Tags         Box
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Box ID"
// @Success      200 {object} util.APIResponse{data=model.Box} "Box retrieved"
// @Failure      404 {object} util.APIResponse "Box not found"
// @Router       /box/{id} [get]
func GetBox(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	var box model.Box
	if err := s.Tenant.First(&box, id).Error; err != nil {
		respondFetchError(c, err, "Box")
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Box retrieved", Data: box})
}

// CreateBox godoc
// @Summary      Create box (admin only)
// @Tags         Box
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body boxRequest true "Box"
// @Success      201 {object} util.APIResponse{data=model.Box} "Box created"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Router       /box [post]
func CreateBox(c *gin.Context) {
	var req boxRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	name := util.NormalizeName(req.Name)
	if name == "" {
		util.CallUserError(c, util.APIErrorParams{Msg: "name is required", Err: fmt.Errorf("empty name")})
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	box := model.Box{OrganizationID: s.OrgID, Name: name, Description: req.Description, IsActive: true}
	if err := s.DB.Create(&box).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to create box", Err: err})
		return
	}
	// the column default would swallow a false on insert
	if req.IsActive != nil && !*req.IsActive {
		box.IsActive = false
		if err := s.DB.Model(&box).Update("is_active", false).Error; err != nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to create box", Err: err})
			return
		}
	}
	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Box created", Data: box})
}

// UpdateBox godoc
// @Summary      Update box (admin only)
// @Tags         Box
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Box ID"
// @Param        request body boxRequest true "Box"
// @Success      200 {object} util.APIResponse{data=model.Box} "Box updated"
// @Failure      404 {object} util.APIResponse "Box not found"
// @Router       /box/{id} [patch]
func UpdateBox(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	var req boxRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var box model.Box
	if err := s.Tenant.First(&box, id).Error; err != nil {
		respondFetchError(c, err, "Box")
		return
	}
	if name := util.NormalizeName(req.Name); name != "" {
		box.Name = name
	}
	if req.Description != "" {
		box.Description = req.Description
	}
	if req.IsActive != nil {
		box.IsActive = *req.IsActive
	}
	if err := s.DB.Save(&box).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update box", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Box updated", Data: box})
}

// DeleteBox godoc
// @Summary      Delete box (admin only)
// @Tags         Box
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Box ID"
// @Success      200 {object} util.APIResponse "Box deleted"
// @Failure      404 {object} util.APIResponse "Box not found"
// @Router       /box/{id} [delete]
func DeleteBox(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	var box model.Box
	if err := s.Tenant.First(&box, id).Error; err != nil {
		respondFetchError(c, err, "Box")
		return
	}
	if err := s.DB.Delete(&box).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to delete box", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Box deleted"})
}

// ListAvailableBoxes godoc
// @Summary      Boxes free in a window
// @Description  Active boxes with no active appointment intersecting [start, end).
// @Tags         Box
// @Produce      json
// @Security     SessionToken
// @Param        start query string true "Start (RFC3339 or YYYY-MM-DD HH:MM)"
// @Param        end query string true "End (RFC3339 or YYYY-MM-DD HH:MM)"
// @Success      200 {object} util.APIResponse{data=[]model.Box} "Available boxes"
// @Failure      400 {object} util.APIResponse "Invalid window"
// @Router       /box/available [get]
func ListAvailableBoxes(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	loc := s.location()

	start, err := parseDateTimeField("start", c.Query("start"), loc)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}
	end, err := parseDateTimeField("end", c.Query("end"), loc)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}
	if !end.After(start) {
		util.CallUserError(c, util.APIErrorParams{Msg: ErrInvalidInterval.Error(), Err: ErrInvalidInterval})
		return
	}

	busy := overlapping(s.scoped(s.DB), start, end, 0).Where("box_id IS NOT NULL").Select("box_id")
	var boxes []model.Box
	if err := s.Tenant.Where("is_active = ?", true).Where("id NOT IN (?)", busy).Order("name ASC").Find(&boxes).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve boxes", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Available boxes", Data: boxes})
}
