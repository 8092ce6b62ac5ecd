package endpoint

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrUnknownSpecialty     = errors.New("one or more specialties do not exist")
	ErrSpecialistBusy       = errors.New("specialist has upcoming appointments")
	ErrOverlappingSchedules = errors.New("schedule blocks overlap")
)

// createSpecialistProfile is replaced in tests to exercise the user rollback.
var createSpecialistProfile = func(tx *gorm.DB, sp *model.Specialist) error {
	return tx.Create(sp).Error
}

type createSpecialistRequest struct {
	FullName      string `json:"full_name" binding:"required" example:"Lic. Ana Gómez"`
	Email         string `json:"email" binding:"required,email" example:"ana@kinesio.com"`
	Password      string `json:"password" binding:"required,min=8" example:"password123"`
	LicenseNumber string `json:"license_number" example:"MN 12345"`
	PhoneNumber   string `json:"phone_number" binding:"omitempty,ar_phone" example:"1156781234"`
	Color         string `json:"color" binding:"omitempty,hexcolor" example:"#4f46e5"`
	SpecialtyIDs  []uint `json:"specialty_ids" example:"1,2"`
}

type updateSpecialistRequest struct {
	FullName      string `json:"full_name"`
	LicenseNumber string `json:"license_number"`
	PhoneNumber   string `json:"phone_number" binding:"omitempty,ar_phone"`
	Email         string `json:"email" binding:"omitempty,email"`
	Color         string `json:"color" binding:"omitempty,hexcolor"`
	SpecialtyIDs  []uint `json:"specialty_ids"`
}

type scheduleBlock struct {
	Weekday   int    `json:"weekday" binding:"min=0,max=6" example:"1"`
	StartTime string `json:"start_time" binding:"required,hhmm" example:"09:00"`
	EndTime   string `json:"end_time" binding:"required,hhmm" example:"13:00"`
}

type scheduleRequest struct {
	Blocks []scheduleBlock `json:"blocks" binding:"dive"`
}

// loadSpecialties returns the organization's specialties with the given ids,
// failing when any id is unknown.
func loadSpecialties(tenant *gorm.DB, ids []uint) ([]model.Specialty, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	unique := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	var specialties []model.Specialty
	if err := tenant.Where("id IN ?", ids).Find(&specialties).Error; err != nil {
		return nil, err
	}
	if len(specialties) != len(unique) {
		return nil, ErrUnknownSpecialty
	}
	return specialties, nil
}

func preloadSpecialist(db *gorm.DB) *gorm.DB {
	return db.Preload("Specialties", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		Preload("Schedules", func(db *gorm.DB) *gorm.DB { return db.Order("weekday ASC, start_time ASC") })
}

// ListSpecialists godoc
// @Summary      List specialists
// @Tags         Specialist
// @Produce      json
// @Security     SessionToken
// @Param        keyword query string false "Search by name or license"
// @Param        specialty_id query int false "Only specialists offering this specialty"
// @Success      200 {object} util.APIResponse{data=object} "Specialists retrieved"
// @Router       /specialist [get]
func ListSpecialists(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	q := parseListQuery(c)

	query := s.Tenant.Model(&model.Specialist{})
	if q.Keyword != "" {
		kw := "%" + strings.ToLower(q.Keyword) + "%"
		query = query.Where("LOWER(full_name) LIKE ? OR license_number LIKE ?", kw, kw)
	}
	if specialtyID := parseUintQuery(c, "specialty_id"); specialtyID > 0 {
		query = query.Where("id IN (?)", s.DB.Table("specialist_specialties").Select("specialist_id").Where("specialty_id = ?", specialtyID))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count specialists", Err: err})
		return
	}
	var specialists []model.Specialist
	if err := preloadSpecialist(q.apply(query)).Order("full_name ASC").Find(&specialists).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve specialists", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Specialists retrieved",
		Data: map[string]interface{}{"total": total, "total_fetched": len(specialists), "specialists": specialists},
	})
}

// GetSpecialist godoc
// @Summary      Get specialist
// @Tags         Specialist
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Specialist ID"
// @Success      200 {object} util.APIResponse{data=model.Specialist} "Specialist retrieved"
// @Failure      404 {object} util.APIResponse "Specialist not found"
// @Router       /specialist/{id} [get]
func GetSpecialist(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	var specialist model.Specialist
	if err := preloadSpecialist(s.Tenant).First(&specialist, id).Error; err != nil {
		respondFetchError(c, err, "Specialist")
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Specialist retrieved", Data: specialist})
}

// CreateSpecialist godoc
// @Summary      Create specialist (admin only)
// @Description  Creates the login user with the specialist role, then the specialist profile. The user is removed if the profile cannot be stored.
// @Tags         Specialist
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body createSpecialistRequest true "Specialist"
// @Success      201 {object} util.APIResponse{data=model.Specialist} "Specialist created"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      409 {object} util.APIResponse "Email already exists"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /specialist [post]
func CreateSpecialist(c *gin.Context) {
	var req createSpecialistRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !ensureEmailAvailable(c, s.DB, email) {
		return
	}
	specialties, err := loadSpecialties(s.Tenant, req.SpecialtyIDs)
	if err != nil {
		respondSpecialtyLookupError(c, err)
		return
	}

	user := model.User{OrganizationID: s.OrgID, Name: util.NormalizeName(req.FullName), Email: email, RoleID: model.RoleSpecialist}
	if err := hashUserPassword(&user, req.Password); err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to hash password", Err: err})
		return
	}
	if err := s.DB.Create(&user).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to create user", Err: err})
		return
	}

	specialist := model.Specialist{
		OrganizationID: s.OrgID,
		UserID:         user.ID,
		FullName:       user.Name,
		LicenseNumber:  strings.TrimSpace(req.LicenseNumber),
		PhoneNumber:    strings.TrimSpace(req.PhoneNumber),
		Email:          email,
		Color:          req.Color,
		Specialties:    specialties,
	}
	if err := s.DB.Transaction(func(tx *gorm.DB) error { return createSpecialistProfile(tx, &specialist) }); err != nil {
		if delErr := s.DB.Unscoped().Delete(&user).Error; delErr != nil {
			logrus.WithError(delErr).WithField("user_id", user.ID).Error("failed to roll back specialist user")
		}
		ci := clientInfoFrom(c)
		util.LogSignupRollback(util.LoginParams{OrganizationID: s.OrgID, UserID: user.ID, Email: email, IP: ci.IP, UserAgent: ci.Agent, Reason: "specialist profile: " + err.Error()})
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to create specialist", Err: err})
		return
	}

	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Specialist created", Data: specialist})
}

func respondSpecialtyLookupError(c *gin.Context, err error) {
	if errors.Is(err, ErrUnknownSpecialty) {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}
	util.CallServerError(c, util.APIErrorParams{Msg: "Failed to load specialties", Err: err})
}

// UpdateSpecialist godoc
// @Summary      Update specialist (admin only)
// @Tags         Specialist
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Specialist ID"
// @Param        request body updateSpecialistRequest true "Specialist"
// @Success      200 {object} util.APIResponse{data=model.Specialist} "Specialist updated"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      404 {object} util.APIResponse "Specialist not found"
// @Router       /specialist/{id} [patch]
func UpdateSpecialist(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	var req updateSpecialistRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var specialist model.Specialist
	if err := s.Tenant.First(&specialist, id).Error; err != nil {
		respondFetchError(c, err, "Specialist")
		return
	}

	var specialties []model.Specialty
	if req.SpecialtyIDs != nil {
		var err error
		if specialties, err = loadSpecialties(s.Tenant, req.SpecialtyIDs); err != nil {
			respondSpecialtyLookupError(c, err)
			return
		}
	}

	if name := util.NormalizeName(req.FullName); name != "" {
		specialist.FullName = name
	}
	if req.LicenseNumber != "" {
		specialist.LicenseNumber = strings.TrimSpace(req.LicenseNumber)
	}
	if req.PhoneNumber != "" {
		specialist.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	}
	if req.Email != "" {
		specialist.Email = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if req.Color != "" {
		specialist.Color = req.Color
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Specialties", "Schedules").Save(&specialist).Error; err != nil {
			return err
		}
		if req.SpecialtyIDs == nil {
			return nil
		}
		return tx.Model(&specialist).Association("Specialties").Replace(specialties)
	})
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update specialist", Err: err})
		return
	}

	if err := preloadSpecialist(s.Tenant).First(&specialist, specialist.ID).Error; err != nil {
		respondFetchError(c, err, "Specialist")
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Specialist updated", Data: specialist})
}

// DeleteSpecialist godoc
// @Summary      Delete specialist (admin only)
// @Description  Removes the specialist profile, weekly hours and login user. Refused while upcoming appointments exist.
// @Tags         Specialist
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Specialist ID"
// @Success      200 {object} util.APIResponse "Specialist deleted"
// @Failure      404 {object} util.APIResponse "Specialist not found"
// @Failure      409 {object} util.APIResponse "Specialist has upcoming appointments"
// @Router       /specialist/{id} [delete]
func DeleteSpecialist(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var userID uint
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var specialist model.Specialist
		if err := s.scoped(tx).First(&specialist, id).Error; err != nil {
			return err
		}
		var upcoming int64
		if err := tx.Model(&model.Appointment{}).
			Where("specialist_id = ? AND start_at > ? AND status IN ?", specialist.ID, time.Now().UTC(), []string{model.StatusScheduled, model.StatusConfirmed}).
			Count(&upcoming).Error; err != nil {
			return err
		}
		if upcoming > 0 {
			return ErrSpecialistBusy
		}
		if err := tx.Where("specialist_id = ?", specialist.ID).Delete(&model.Schedule{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&specialist).Association("Specialties").Clear(); err != nil {
			return err
		}
		if err := tx.Delete(&specialist).Error; err != nil {
			return err
		}
		userID = specialist.UserID
		if userID == 0 {
			return nil
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.Session{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.User{}, userID).Error
	})
	if errors.Is(err, ErrSpecialistBusy) {
		util.CallConflict(c, util.APIErrorParams{Msg: "Specialist has upcoming appointments", Err: err})
		return
	}
	if err != nil {
		respondFetchError(c, err, "Specialist")
		return
	}

	if userID != 0 {
		if err := util.InvalidateUserSessions(c.Request.Context(), userID); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("failed to drop cached sessions")
		}
		util.ForgetUser(userID)
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Specialist deleted"})
}

// buildSchedules validates blocks and converts them to rows. Blocks on the same
// weekday may touch but not overlap.
func buildSchedules(orgID, specialistID uint, blocks []scheduleBlock) ([]model.Schedule, error) {
	rows := make([]model.Schedule, 0, len(blocks))
	for _, b := range blocks {
		if b.StartTime >= b.EndTime {
			return nil, fmt.Errorf("%w: %s-%s ends before it starts", ErrInvalidInterval, b.StartTime, b.EndTime)
		}
		rows = append(rows, model.Schedule{
			OrganizationID: orgID,
			SpecialistID:   specialistID,
			Weekday:        b.Weekday,
			StartTime:      b.StartTime,
			EndTime:        b.EndTime,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Weekday != rows[j].Weekday {
			return rows[i].Weekday < rows[j].Weekday
		}
		return rows[i].StartTime < rows[j].StartTime
	})
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.Weekday == cur.Weekday && cur.StartTime < prev.EndTime {
			return nil, fmt.Errorf("%w: weekday %d", ErrOverlappingSchedules, cur.Weekday)
		}
	}
	return rows, nil
}

// ReplaceSchedule godoc
// @Summary      Replace weekly working hours
// @Description  Replaces every schedule block of the specialist. Times are HH:MM in the organization timezone, weekday 0 is Sunday.
// @Tags         Specialist
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Specialist ID"
// @Param        request body scheduleRequest true "Schedule blocks"
// @Success      200 {object} util.APIResponse{data=[]model.Schedule} "Schedule updated"
// @Failure      400 {object} util.APIResponse "Invalid blocks"
// @Failure      404 {object} util.APIResponse "Specialist not found"
// @Router       /specialist/{id}/schedule [put]
func ReplaceSchedule(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	var req scheduleRequest
	if !bindJSONOrRespond(c, &req, "Invalid schedule payload") {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var specialist model.Specialist
	if err := s.Tenant.First(&specialist, id).Error; err != nil {
		respondFetchError(c, err, "Specialist")
		return
	}

	rows, err := buildSchedules(s.OrgID, specialist.ID, req.Blocks)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("specialist_id = ?", specialist.ID).Delete(&model.Schedule{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update schedule", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Schedule updated", Data: rows})
}
