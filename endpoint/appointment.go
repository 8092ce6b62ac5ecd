package endpoint

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ariebrainware/kinesio-turnos/config"
	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/notifier"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrNotReschedulable = errors.New("only scheduled or confirmed appointments can be changed")
	ErrCancelledFinal   = errors.New("cancelled appointments cannot be reopened")
)

const defaultSlotMinutes = 30

func reminderLead() time.Duration {
	if cfg := config.LoadConfig(); cfg != nil && cfg.ReminderLeadTime > 0 {
		return cfg.ReminderLeadTime
	}
	return 24 * time.Hour
}

// respondBookingError maps booking rule violations to status codes.
func respondBookingError(c *gin.Context, err error) {
	switch {
	case isConflict(err):
		util.CallConflict(c, util.APIErrorParams{Msg: err.Error(), Err: err})
	case errors.Is(err, ErrInvalidInterval), errors.Is(err, ErrSpecialtyNotOffered),
		errors.Is(err, ErrOutsideSchedule), errors.Is(err, ErrUnknownReference),
		errors.Is(err, ErrBoxInactive), errors.Is(err, ErrInvalidTime), errors.Is(err, ErrInvalidPrice):
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
	case errors.Is(err, ErrNotReschedulable), errors.Is(err, ErrCancelledFinal):
		util.CallConflict(c, util.APIErrorParams{Msg: err.Error(), Err: err})
	case errors.Is(err, gorm.ErrRecordNotFound):
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Appointment not found", Err: err})
	default:
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to save appointment", Err: err})
	}
}

func remindable(appt model.Appointment) bool {
	return appt.Status == model.StatusScheduled || appt.Status == model.StatusConfirmed
}

// syncReminder enqueues a reminder when after became remindable or its start
// moved, and cancels pending ones when it stopped being remindable. Other edits
// leave the reminder alone. Failures are logged; the appointment itself is
// already stored.
func syncReminder(db *gorm.DB, before, after model.Appointment) {
	var err error
	switch {
	case !remindable(after):
		_, err = notifier.CancelReminders(db, after.ID)
	case !remindable(before) || !before.StartAt.Equal(after.StartAt):
		_, err = notifier.EnqueueReminder(db, after, reminderLead())
	}
	if err != nil {
		logrus.WithError(err).WithField("appointment_id", after.ID).Warn("failed to sync appointment reminder")
	}
}

func preloadAppointment(db *gorm.DB) *gorm.DB {
	return db.Preload("Patient").Preload("Specialist").Preload("Specialty").Preload("Box")
}

func parseDateTimeField(name, value string, loc *time.Location) (time.Time, error) {
	t, err := util.ParseDateTime(value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD HH:MM", name)
	}
	return t.UTC(), nil
}

// ListAppointments godoc
// @Summary      List appointments
// @Tags         Appointment
// @Produce      json
// @Security     SessionToken
// @Param        from query string false "From date (YYYY-MM-DD, inclusive)"
// @Param        to query string false "To date (YYYY-MM-DD, inclusive)"
// @Param        specialist_id query int false "Specialist"
// @Param        patient_id query int false "Patient"
// @Param        status query string false "Status"
// @Param        limit query int false "Limit"
// @Param        offset query int false "Offset"
// @Success      200 {object} util.APIResponse{data=object} "Appointments retrieved"
// @Failure      400 {object} util.APIResponse "Invalid filter"
// @Router       /appointment [get]
func ListAppointments(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	loc := s.location()
	q := parseListQuery(c)

	query := s.Tenant.Model(&model.Appointment{})
	if v := c.Query("from"); v != "" {
		from, err := util.ParseDate(v, loc)
		if err != nil {
			util.CallUserError(c, util.APIErrorParams{Msg: "from must be formatted as YYYY-MM-DD", Err: err})
			return
		}
		query = query.Where("start_at >= ?", from.UTC())
	}
	if v := c.Query("to"); v != "" {
		to, err := util.ParseDate(v, loc)
		if err != nil {
			util.CallUserError(c, util.APIErrorParams{Msg: "to must be formatted as YYYY-MM-DD", Err: err})
			return
		}
		query = query.Where("start_at < ?", to.AddDate(0, 0, 1).UTC())
	}
	if id := parseUintQuery(c, "specialist_id"); id > 0 {
		query = query.Where("specialist_id = ?", id)
	}
	if id := parseUintQuery(c, "patient_id"); id > 0 {
		query = query.Where("patient_id = ?", id)
	}
	if status := c.Query("status"); status != "" {
		if !model.ValidStatus(status) {
			util.CallUserError(c, util.APIErrorParams{Msg: "Unknown status", Err: fmt.Errorf("unknown status %q", status)})
			return
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count appointments", Err: err})
		return
	}
	var appts []model.Appointment
	if err := preloadAppointment(q.apply(query)).Order("start_at ASC, id ASC").Find(&appts).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve appointments", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Appointments retrieved",
		Data: map[string]interface{}{"total": total, "total_fetched": len(appts), "appointments": appts},
	})
}

// GetAppointment godoc
// @Summary      Get appointment
// @Tags         Appointment
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Appointment ID"
// @Success      200 {object} util.APIResponse{data=model.Appointment} "Appointment retrieved"
// @Failure      404 {object} util.APIResponse "Appointment not found"
// @Router       /appointment/{id} [get]
func GetAppointment(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	var appt model.Appointment
	if err := preloadAppointment(s.Tenant).First(&appt, id).Error; err != nil {
		respondFetchError(c, err, "Appointment")
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Appointment retrieved", Data: appt})
}

type createAppointmentRequest struct {
	PatientID    uint             `json:"patient_id" binding:"required" example:"1"`
	SpecialistID uint             `json:"specialist_id" binding:"required" example:"1"`
	SpecialtyID  uint             `json:"specialty_id" binding:"required" example:"1"`
	BoxID        *uint            `json:"box_id" example:"1"`
	StartAt      string           `json:"start_at" binding:"required" example:"2025-03-10 10:30"`
	EndAt        string           `json:"end_at" example:"2025-03-10 11:15"`
	Notes        string           `json:"notes"`
	Price        *decimal.Decimal `json:"price" swaggertype:"string" example:"15000.00"`
}

// CreateAppointment godoc
// @Summary      Book an appointment
// @Description  Books a turno after checking the specialist offers the specialty, the slot is inside the working hours and neither specialist, box nor patient is already booked. end_at defaults to the specialty duration.
// @Tags         Appointment
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body createAppointmentRequest true "Appointment"
// @Success      201 {object} util.APIResponse{data=model.Appointment} "Appointment created"
// @Failure      400 {object} util.APIResponse "Invalid request or booking rule violated"
// @Failure      409 {object} util.APIResponse "Slot already taken"
// @Router       /appointment [post]
func CreateAppointment(c *gin.Context) {
	var req createAppointmentRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	loc := s.location()

	start, err := parseDateTimeField("start_at", req.StartAt, loc)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}
	if req.Price != nil && req.Price.IsNegative() {
		util.CallUserError(c, util.APIErrorParams{Msg: ErrInvalidPrice.Error(), Err: ErrInvalidPrice})
		return
	}

	appt := model.Appointment{
		OrganizationID: s.OrgID,
		PatientID:      req.PatientID,
		SpecialistID:   req.SpecialistID,
		SpecialtyID:    req.SpecialtyID,
		BoxID:          req.BoxID,
		StartAt:        start,
		Status:         model.StatusScheduled,
		Notes:          strings.TrimSpace(req.Notes),
	}
	if req.Price != nil {
		appt.Price = *req.Price
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if req.EndAt != "" {
			end, err := parseDateTimeField("end_at", req.EndAt, loc)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidTime, err)
			}
			appt.EndAt = end
		} else {
			var specialty model.Specialty
			if err := firstOrUnknown(s.scoped(tx), &specialty, req.SpecialtyID, "specialty"); err != nil {
				return err
			}
			minutes := specialty.DurationMinutes
			if minutes <= 0 {
				minutes = defaultSlotMinutes
			}
			appt.EndAt = start.Add(time.Duration(minutes) * time.Minute)
		}
		if err := checkBooking(tx, appt, loc); err != nil {
			return err
		}
		return tx.Create(&appt).Error
	})
	if err != nil {
		respondBookingError(c, err)
		return
	}

	syncReminder(s.DB, model.Appointment{}, appt)
	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Appointment created", Data: appt})
}

type updateAppointmentRequest struct {
	SpecialistID uint             `json:"specialist_id"`
	SpecialtyID  uint             `json:"specialty_id"`
	BoxID        *uint            `json:"box_id"`
	ClearBox     bool             `json:"clear_box"`
	StartAt      string           `json:"start_at" example:"2025-03-11 09:00"`
	EndAt        string           `json:"end_at" example:"2025-03-11 09:45"`
	Notes        *string          `json:"notes"`
	Price        *decimal.Decimal `json:"price" swaggertype:"string"`
}

// applyAppointmentUpdates mutates appt and reports whether the booking rules
// must be checked again.
func applyAppointmentUpdates(appt *model.Appointment, req updateAppointmentRequest, loc *time.Location) (bool, error) {
	recheck := false
	duration := appt.EndAt.Sub(appt.StartAt)

	if req.StartAt != "" {
		start, err := parseDateTimeField("start_at", req.StartAt, loc)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidTime, err)
		}
		appt.StartAt = start
		appt.EndAt = start.Add(duration)
		recheck = true
	}
	if req.EndAt != "" {
		end, err := parseDateTimeField("end_at", req.EndAt, loc)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidTime, err)
		}
		appt.EndAt = end
		recheck = true
	}
	if req.SpecialistID != 0 && req.SpecialistID != appt.SpecialistID {
		appt.SpecialistID = req.SpecialistID
		recheck = true
	}
	if req.SpecialtyID != 0 && req.SpecialtyID != appt.SpecialtyID {
		appt.SpecialtyID = req.SpecialtyID
		recheck = true
	}
	switch {
	case req.ClearBox:
		appt.BoxID = nil
	case req.BoxID != nil:
		appt.BoxID = req.BoxID
		recheck = true
	}
	if req.Notes != nil {
		appt.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return false, ErrInvalidPrice
		}
		appt.Price = *req.Price
	}
	return recheck, nil
}

// UpdateAppointment godoc
// @Summary      Reschedule or edit an appointment
// @Description  Changes time, specialist, specialty, box, notes or price. Time and resource changes re-run every booking rule; moving the start time re-enqueues the reminder.
// @Tags         Appointment
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Appointment ID"
// @Param        request body updateAppointmentRequest true "Changes"
// @Success      200 {object} util.APIResponse{data=model.Appointment} "Appointment updated"
// @Failure      400 {object} util.APIResponse "Invalid request or booking rule violated"
// @Failure      404 {object} util.APIResponse "Appointment not found"
// @Failure      409 {object} util.APIResponse "Slot already taken or appointment closed"
// @Router       /appointment/{id} [patch]
func UpdateAppointment(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	var req updateAppointmentRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	loc := s.location()

	var appt, before model.Appointment
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.scoped(tx).First(&appt, id).Error; err != nil {
			return err
		}
		if !remindable(appt) {
			return ErrNotReschedulable
		}
		before = appt
		recheck, err := applyAppointmentUpdates(&appt, req, loc)
		if err != nil {
			return err
		}
		if recheck {
			if err := checkBooking(tx, appt, loc); err != nil {
				return err
			}
		}
		return tx.Omit("Patient", "Specialist", "Specialty", "Box").Save(&appt).Error
	})
	if err != nil {
		respondBookingError(c, err)
		return
	}

	syncReminder(s.DB, before, appt)
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Appointment updated", Data: appt})
}

type statusRequest struct {
	Status string `json:"status" binding:"required" example:"confirmed"`
}

// UpdateAppointmentStatus godoc
// @Summary      Change appointment status
// @Description  scheduled, confirmed, attended, cancelled or no_show. Cancelled appointments are final: book a new one instead. Reopening a no_show re-runs the booking rules.
// @Tags         Appointment
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Appointment ID"
// @Param        request body statusRequest true "New status"
// @Success      200 {object} util.APIResponse{data=model.Appointment} "Status updated"
// @Failure      400 {object} util.APIResponse "Unknown status"
// @Failure      404 {object} util.APIResponse "Appointment not found"
// @Failure      409 {object} util.APIResponse "Appointment cancelled or slot taken again"
// @Router       /appointment/{id}/status [patch]
func UpdateAppointmentStatus(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	if !model.ValidStatus(req.Status) {
		util.CallUserError(c, util.APIErrorParams{Msg: "Unknown status", Err: fmt.Errorf("unknown status %q", req.Status)})
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	loc := s.location()

	var appt, before model.Appointment
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.scoped(tx).First(&appt, id).Error; err != nil {
			return err
		}
		if appt.Status == model.StatusCancelled && req.Status != model.StatusCancelled {
			return ErrCancelledFinal
		}
		before = appt
		wasActive := appt.IsActive()
		appt.Status = req.Status
		if !wasActive && appt.IsActive() {
			if err := checkBooking(tx, appt, loc); err != nil {
				return err
			}
		}
		return tx.Model(&appt).Update("status", appt.Status).Error
	})
	if err != nil {
		respondBookingError(c, err)
		return
	}

	syncReminder(s.DB, before, appt)
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Status updated", Data: appt})
}

// CancelAppointment godoc
// @Summary      Cancel appointment
// @Description  Marks the appointment cancelled and cancels its pending reminders. The row is kept for analytics.
// @Tags         Appointment
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Appointment ID"
// @Success      200 {object} util.APIResponse "Appointment cancelled"
// @Failure      404 {object} util.APIResponse "Appointment not found"
// @Router       /appointment/{id} [delete]
func CancelAppointment(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var appt model.Appointment
	var cancelled int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.scoped(tx).First(&appt, id).Error; err != nil {
			return err
		}
		appt.Status = model.StatusCancelled
		if err := tx.Model(&appt).Update("status", appt.Status).Error; err != nil {
			return err
		}
		n, err := notifier.CancelReminders(tx, appt.ID)
		cancelled = n
		return err
	})
	if err != nil {
		respondFetchError(c, err, "Appointment")
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Appointment cancelled",
		Data: map[string]interface{}{"appointment": appt, "cancelled_notifications": cancelled},
	})
}

// ListSlots godoc
// @Summary      Free slots of a specialist on a day
// @Description  Slots come from the weekly schedule cut into specialty-length steps, minus booked appointments and past times.
// @Tags         Appointment
// @Produce      json
// @Security     SessionToken
// @Param        specialist_id query int true "Specialist"
// @Param        date query string true "Day (YYYY-MM-DD)"
// @Param        specialty_id query int false "Specialty (sets the slot length)"
// @Success      200 {object} util.APIResponse{data=[]Slot} "Slots retrieved"
// @Failure      400 {object} util.APIResponse "Invalid query"
// @Failure      404 {object} util.APIResponse "Specialist not found"
// @Router       /appointment/slots [get]
func ListSlots(c *gin.Context) {
	specialistID := parseUintQuery(c, "specialist_id")
	if specialistID == 0 {
		util.CallUserError(c, util.APIErrorParams{Msg: "specialist_id is required", Err: fmt.Errorf("missing specialist_id")})
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	loc := s.location()

	day, err := util.ParseDate(c.Query("date"), loc)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "date must be formatted as YYYY-MM-DD", Err: err})
		return
	}

	var specialist model.Specialist
	if err := s.Tenant.Preload("Schedules").First(&specialist, specialistID).Error; err != nil {
		respondFetchError(c, err, "Specialist")
		return
	}

	step := defaultSlotMinutes * time.Minute
	if specialtyID := parseUintQuery(c, "specialty_id"); specialtyID > 0 {
		var specialty model.Specialty
		if err := s.Tenant.First(&specialty, specialtyID).Error; err != nil {
			respondFetchError(c, err, "Specialty")
			return
		}
		if specialty.DurationMinutes > 0 {
			step = time.Duration(specialty.DurationMinutes) * time.Minute
		}
	}

	var booked []model.Appointment
	if err := overlapping(s.Tenant.Where("specialist_id = ?", specialistID), day, day.AddDate(0, 0, 1), 0).
		Find(&booked).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve appointments", Err: err})
		return
	}

	slots := freeSlots(specialist.Schedules, booked, day, step, time.Now().In(loc))
	sort.Slice(slots, func(i, j int) bool { return slots[i].StartAt.Before(slots[j].StartAt) })
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Slots retrieved", Data: slots})
}
