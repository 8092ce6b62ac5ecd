package endpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/notifier"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const kindManual = "manual"

var ErrNotificationState = errors.New("notification is not in the required status")

var notificationStatuses = []string{model.NotificationPending, model.NotificationSent, model.NotificationFailed, model.NotificationCancelled}

// ListNotifications godoc
// @Summary      List queued notifications
// @Tags         Notification
// @Produce      json
// @Security     SessionToken
// @Param        status query string false "pending|sent|failed|cancelled"
// @Param        patient_id query int false "Patient"
// @Param        limit query int false "Limit"
// @Param        offset query int false "Offset"
// @Success      200 {object} util.APIResponse{data=object} "Notifications retrieved"
// @Failure      400 {object} util.APIResponse "Unknown status"
// @Router       /notification [get]
func ListNotifications(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	q := parseListQuery(c)

	query := s.Tenant.Model(&model.Notification{})
	if status := c.Query("status"); status != "" {
		if !util.Contains(status, notificationStatuses) {
			util.CallUserError(c, util.APIErrorParams{Msg: "Unknown status", Err: fmt.Errorf("unknown status %q", status)})
			return
		}
		query = query.Where("status = ?", status)
	}
	if id := parseUintQuery(c, "patient_id"); id > 0 {
		query = query.Where("patient_id = ?", id)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count notifications", Err: err})
		return
	}
	var rows []model.Notification
	if err := q.apply(query).Order("scheduled_for DESC, id DESC").Find(&rows).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve notifications", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Notifications retrieved",
		Data: map[string]interface{}{"total": total, "total_fetched": len(rows), "notifications": rows},
	})
}

type createNotificationRequest struct {
	PatientID    uint   `json:"patient_id" binding:"required" example:"1"`
	Message      string `json:"message" binding:"required" example:"Hola! Te esperamos mañana a las 10 hs."`
	MediaURL     string `json:"media_url" binding:"omitempty,url"`
	ScheduledFor string `json:"scheduled_for" example:"2025-03-10 09:00"`
}

// CreateNotification godoc
// @Summary      Queue a manual WhatsApp message to a patient
// @Tags         Notification
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body createNotificationRequest true "Message"
// @Success      201 {object} util.APIResponse{data=model.Notification} "Notification queued"
// @Failure      400 {object} util.APIResponse "Invalid request or phone"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /notification [post]
func CreateNotification(c *gin.Context) {
	var req createNotificationRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		util.CallUserError(c, util.APIErrorParams{Msg: "message is required", Err: fmt.Errorf("empty message")})
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var patient model.Patient
	if err := s.Tenant.First(&patient, req.PatientID).Error; err != nil {
		respondFetchError(c, err, "Patient")
		return
	}
	if _, err := notifier.NormalizePhone(patient.PhoneNumber); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Patient has no valid WhatsApp number", Err: err})
		return
	}

	scheduled := time.Now().UTC()
	if req.ScheduledFor != "" {
		t, err := parseDateTimeField("scheduled_for", req.ScheduledFor, s.location())
		if err != nil {
			util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
			return
		}
		scheduled = t
	}

	payload, _ := json.Marshal(map[string]interface{}{"kind": kindManual})
	n := model.Notification{
		OrganizationID: s.OrgID,
		PatientID:      patient.ID,
		Recipient:      patient.PhoneNumber,
		Message:        text,
		MediaURL:       req.MediaURL,
		ScheduledFor:   scheduled,
		Status:         model.NotificationPending,
		Payload:        datatypes.JSON(payload),
	}
	if err := s.DB.Create(&n).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to queue notification", Err: err})
		return
	}
	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Notification queued", Data: n})
}

// transitionNotification moves a notification from one status to another,
// applying extra column updates, and returns the updated row.
func transitionNotification(s tenantScope, id uint, from string, updates map[string]interface{}) (model.Notification, error) {
	var n model.Notification
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.scoped(tx).First(&n, id).Error; err != nil {
			return err
		}
		if n.Status != from {
			return fmt.Errorf("%w: expected %s, got %s", ErrNotificationState, from, n.Status)
		}
		if err := tx.Model(&n).Updates(updates).Error; err != nil {
			return err
		}
		return s.scoped(tx).First(&n, id).Error
	})
	return n, err
}

func respondTransitionError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotificationState) {
		util.CallConflict(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}
	respondFetchError(c, err, "Notification")
}

// RetryNotification godoc
// @Summary      Retry a failed notification
// @Tags         Notification
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Notification ID"
// @Success      200 {object} util.APIResponse{data=model.Notification} "Notification re-queued"
// @Failure      404 {object} util.APIResponse "Notification not found"
// @Failure      409 {object} util.APIResponse "Notification is not failed"
// @Router       /notification/{id}/retry [post]
func RetryNotification(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	n, err := transitionNotification(s, id, model.NotificationFailed, map[string]interface{}{
		"status":        model.NotificationPending,
		"scheduled_for": time.Now().UTC(),
	})
	if err != nil {
		respondTransitionError(c, err)
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Notification re-queued", Data: n})
}

// CancelNotification godoc
// @Summary      Cancel a pending notification
// @Tags         Notification
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Notification ID"
// @Success      200 {object} util.APIResponse{data=model.Notification} "Notification cancelled"
// @Failure      404 {object} util.APIResponse "Notification not found"
// @Failure      409 {object} util.APIResponse "Notification is not pending"
// @Router       /notification/{id} [delete]
func CancelNotification(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	n, err := transitionNotification(s, id, model.NotificationPending, map[string]interface{}{
		"status": model.NotificationCancelled,
	})
	if err != nil {
		respondTransitionError(c, err)
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Notification cancelled", Data: n})
}
