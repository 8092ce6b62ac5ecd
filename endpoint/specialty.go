package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var ErrSpecialtyExists = errors.New("specialty already exists")

type specialtyRequest struct {
	Name            string `json:"name" example:"Kinesiología"`
	Description     string `json:"description" example:"Rehabilitación kinésica"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,min=5,max=480" example:"45"`
}

func ensureSpecialtyNameAvailable(tenant *gorm.DB, name string, excludeID uint) error {
	var count int64
	if err := tenant.Model(&model.Specialty{}).Where("LOWER(name) = ? AND id != ?", strings.ToLower(name), excludeID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrSpecialtyExists
	}
	return nil
}

func respondSpecialtyWriteError(c *gin.Context, err error) {
	if errors.Is(err, ErrSpecialtyExists) {
		util.CallConflict(c, util.APIErrorParams{Msg: "Specialty already exists", Err: err})
		return
	}
	util.CallServerError(c, util.APIErrorParams{Msg: "Failed to save specialty", Err: err})
}

// ListSpecialties godoc
// @Summary      List specialties
// @Tags         Specialty
// @Produce      json
// @Security     SessionToken
// @Param        keyword query string false "Search by name"
// @Success      200 {object} util.APIResponse{data=object} "Specialties retrieved"
// @Router       /specialty [get]
func ListSpecialties(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	q := parseListQuery(c)

	query := s.Tenant.Model(&model.Specialty{})
	if q.Keyword != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q.Keyword)+"%")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count specialties", Err: err})
		return
	}
	var specialties []model.Specialty
	if err := q.apply(query).Order("name ASC").Find(&specialties).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve specialties", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Specialties retrieved",
		Data: map[string]interface{}{"total": total, "total_fetched": len(specialties), "specialties": specialties},
	})
}

// GetSpecialty godoc
// @Summary      Get specialty
// @Tags         Specialty
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Specialty ID"
// @Success      200 {object} util.APIResponse{data=model.Specialty} "Specialty retrieved"
// @Failure      404 {object} util.APIResponse "Specialty not found"
// @Router       /specialty/{id} [get]
func GetSpecialty(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	var specialty model.Specialty
	if err := s.Tenant.First(&specialty, id).Error; err != nil {
		respondFetchError(c, err, "Specialty")
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Specialty retrieved", Data: specialty})
}

// CreateSpecialty godoc
// @Summary      Create specialty (admin only)
// @Tags         Specialty
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body specialtyRequest true "Specialty"
// @Success      201 {object} util.APIResponse{data=model.Specialty} "Specialty created"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      409 {object} util.APIResponse "Specialty already exists"
// @Router       /specialty [post]
func CreateSpecialty(c *gin.Context) {
	var req specialtyRequest
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
	if err := ensureSpecialtyNameAvailable(s.Tenant, name, 0); err != nil {
		respondSpecialtyWriteError(c, err)
		return
	}

	specialty := model.Specialty{OrganizationID: s.OrgID, Name: name, Description: req.Description, DurationMinutes: req.DurationMinutes}
	if specialty.DurationMinutes == 0 {
		specialty.DurationMinutes = 30
	}
	if err := s.DB.Create(&specialty).Error; err != nil {
		respondSpecialtyWriteError(c, err)
		return
	}
	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Specialty created", Data: specialty})
}

// UpdateSpecialty godoc
// @Summary      Update specialty (admin only)
// @Tags         Specialty
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Specialty ID"
// @Param        request body specialtyRequest true "Specialty"
// @Success      200 {object} util.APIResponse{data=model.Specialty} "Specialty updated"
// @Failure      404 {object} util.APIResponse "Specialty not found"
// @Failure      409 {object} util.APIResponse "Specialty already exists"
// @Router       /specialty/{id} [patch]
func UpdateSpecialty(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	var req specialtyRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var specialty model.Specialty
	if err := s.Tenant.First(&specialty, id).Error; err != nil {
		respondFetchError(c, err, "Specialty")
		return
	}
	if name := util.NormalizeName(req.Name); name != "" {
		if err := ensureSpecialtyNameAvailable(s.Tenant, name, specialty.ID); err != nil {
			respondSpecialtyWriteError(c, err)
			return
		}
		specialty.Name = name
	}
	if req.Description != "" {
		specialty.Description = req.Description
	}
	if req.DurationMinutes != 0 {
		specialty.DurationMinutes = req.DurationMinutes
	}
	if err := s.DB.Save(&specialty).Error; err != nil {
		respondSpecialtyWriteError(c, err)
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Specialty updated", Data: specialty})
}

// DeleteSpecialty godoc
// @Summary      Delete specialty (admin only)
// @Tags         Specialty
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Specialty ID"
// @Success      200 {object} util.APIResponse "Specialty deleted"
// @Failure      404 {object} util.APIResponse "Specialty not found"
// @Router       /specialty/{id} [delete]
func DeleteSpecialty(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var specialty model.Specialty
		if err := s.scoped(tx).First(&specialty, id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM specialist_specialties WHERE specialty_id = ?", specialty.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&specialty).Error
	})
	if err != nil {
		respondFetchError(c, err, "Specialty")
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Specialty deleted"})
}
