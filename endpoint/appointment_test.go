package endpoint_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type bookingFixture struct {
	r          *gin.Engine
	db         *gorm.DB
	admin      testActor
	day        time.Time
	kinesio    uint
	trauma     uint
	specialist uint
	patient    uint
	box        uint
}

func specialtyID(t *testing.T, db *gorm.DB, orgID uint, name string) uint {
	t.Helper()
	var sp model.Specialty
	require.NoError(t, db.Where("organization_id = ? AND name = ?", orgID, name).First(&sp).Error)
	return sp.ID
}

// createSpecialist registers a specialist through the API working on day's
// weekday from 09:00 to 13:00.
func createSpecialist(t *testing.T, f *bookingFixture, name string, specialties ...uint) uint {
	t.Helper()
	w, resp := call(t, f.r, http.MethodPost, "/specialist", f.admin.Token, map[string]interface{}{
		"full_name":     name,
		"email":         fmt.Sprintf("spec%d@example.com", time.Now().UnixNano()),
		"password":      testPassword,
		"specialty_ids": specialties,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := idOf(t, resp)

	w, _ = call(t, f.r, http.MethodPut, fmt.Sprintf("/specialist/%d/schedule", id), f.admin.Token, map[string]interface{}{
		"blocks": []map[string]interface{}{{"weekday": int(f.day.Weekday()), "start_time": "09:00", "end_time": "13:00"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return id
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	r, db := SetupTestServer(t)
	f := &bookingFixture{r: r, db: db, admin: newActor(t, r, db, model.RoleAdmin), day: nextWeekday(time.Monday)}
	f.kinesio = specialtyID(t, db, f.admin.Org.ID, "Kinesiología")
	f.trauma = specialtyID(t, db, f.admin.Org.ID, "Traumatología")
	f.specialist = createSpecialist(t, f, "Lic. Ana Gómez", f.kinesio)
	f.patient = createPatient(t, r, f.admin.Token, map[string]interface{}{"full_name": "Juan Pérez", "phone_number": "1145678901"})

	w, resp := call(t, r, http.MethodPost, "/box", f.admin.Token, map[string]interface{}{"name": "Box 1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	f.box = idOf(t, resp)
	return f
}

func (f *bookingFixture) book(t *testing.T, body map[string]interface{}) (int, map[string]interface{}) {
	t.Helper()
	payload := map[string]interface{}{
		"patient_id":    f.patient,
		"specialist_id": f.specialist,
		"specialty_id":  f.kinesio,
	}
	for k, v := range body {
		payload[k] = v
	}
	w, resp := call(t, f.r, http.MethodPost, "/appointment", f.admin.Token, payload)
	return w.Code, resp
}

func TestCreateAppointment_DefaultsEndToSpecialtyDuration(t *testing.T) {
	f := newBookingFixture(t)

	code, resp := f.book(t, map[string]interface{}{"start_at": at(f.day, 9, 0), "box_id": f.box, "price": "15000.50"})
	require.Equal(t, http.StatusCreated, code, resp)
	data := dataMap(t, resp)
	assert.Equal(t, model.StatusScheduled, data["status"])
	assert.Equal(t, at(f.day, 9, 45), data["end_at"])
	assert.Equal(t, "15000.5", data["price"])

	var n model.Notification
	require.NoError(t, f.db.Where("appointment_id = ?", idOf(t, resp)).First(&n).Error)
	assert.Equal(t, model.NotificationPending, n.Status)
	assert.WithinDuration(t, f.day.Add(9*time.Hour).Add(-24*time.Hour), n.ScheduledFor, time.Second)
	assert.Contains(t, n.Message, "Juan")
}

func TestCreateAppointment_BookingRules(t *testing.T) {
	f := newBookingFixture(t)
	code, resp := f.book(t, map[string]interface{}{"start_at": at(f.day, 9, 0), "end_at": at(f.day, 9, 45), "box_id": f.box})
	require.Equal(t, http.StatusCreated, code, resp)

	other := createSpecialist(t, f, "Lic. Bruno Díaz", f.kinesio)
	otherPatient := createPatient(t, f.r, f.admin.Token, map[string]interface{}{"full_name": "Marta Sosa"})

	tests := []struct {
		name string
		body map[string]interface{}
		code int
	}{
		{"specialist busy", map[string]interface{}{"patient_id": otherPatient, "start_at": at(f.day, 9, 30)}, http.StatusConflict},
		{"box taken", map[string]interface{}{"patient_id": otherPatient, "specialist_id": other, "box_id": f.box, "start_at": at(f.day, 9, 15)}, http.StatusConflict},
		{"patient busy", map[string]interface{}{"specialist_id": other, "start_at": at(f.day, 9, 0)}, http.StatusConflict},
		{"outside schedule", map[string]interface{}{"start_at": at(f.day, 12, 30)}, http.StatusBadRequest},
		{"before opening", map[string]interface{}{"start_at": at(f.day, 8, 30)}, http.StatusBadRequest},
		{"other weekday", map[string]interface{}{"start_at": at(f.day.AddDate(0, 0, 1), 10, 0)}, http.StatusBadRequest},
		{"specialty not offered", map[string]interface{}{"specialty_id": f.trauma, "start_at": at(f.day, 11, 0)}, http.StatusBadRequest},
		{"end before start", map[string]interface{}{"start_at": at(f.day, 11, 0), "end_at": at(f.day, 10, 0)}, http.StatusBadRequest},
		{"unknown patient", map[string]interface{}{"patient_id": 9999, "start_at": at(f.day, 11, 0)}, http.StatusBadRequest},
		{"bad start", map[string]interface{}{"start_at": "mañana"}, http.StatusBadRequest},
		{"negative price", map[string]interface{}{"start_at": at(f.day, 11, 0), "price": "-1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := f.book(t, tt.body)
			assert.Equal(t, tt.code, code, resp)
		})
	}

	t.Run("touching intervals are allowed", func(t *testing.T) {
		code, resp := f.book(t, map[string]interface{}{"start_at": at(f.day, 9, 45), "box_id": f.box})
		assert.Equal(t, http.StatusCreated, code, resp)
	})
}

func TestCreateAppointment_AcceptsLocalDateTime(t *testing.T) {
	f := newBookingFixture(t)
	code, resp := f.book(t, map[string]interface{}{"start_at": f.day.Format("2006-01-02") + " 10:00"})
	require.Equal(t, http.StatusCreated, code, resp)
	assert.Equal(t, at(f.day, 10, 0), dataMap(t, resp)["start_at"])
}

func TestCancelAppointment_FreesSlotAndCancelsReminder(t *testing.T) {
	f := newBookingFixture(t)
	code, resp := f.book(t, map[string]interface{}{"start_at": at(f.day, 10, 0)})
	require.Equal(t, http.StatusCreated, code, resp)
	id := idOf(t, resp)

	w, resp := call(t, f.r, http.MethodDelete, fmt.Sprintf("/appointment/%d", id), f.admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), dataMap(t, resp)["cancelled_notifications"])

	var n model.Notification
	require.NoError(t, f.db.Where("appointment_id = ?", id).First(&n).Error)
	assert.Equal(t, model.NotificationCancelled, n.Status)

	var appt model.Appointment
	require.NoError(t, f.db.First(&appt, id).Error)
	assert.Equal(t, model.StatusCancelled, appt.Status)

	code, resp = f.book(t, map[string]interface{}{"start_at": at(f.day, 10, 0)})
	assert.Equal(t, http.StatusCreated, code, resp)

	t.Run("reopening a cancelled appointment is refused", func(t *testing.T) {
		w, _ := call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d/status", id), f.admin.Token, map[string]string{"status": model.StatusScheduled})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("cannot reschedule a cancelled appointment", func(t *testing.T) {
		w, _ := call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d", id), f.admin.Token, map[string]string{"start_at": at(f.day, 11, 0)})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestUpdateAppointmentStatus_CancelledIsFinal(t *testing.T) {
	f := newBookingFixture(t)
	code, resp := f.book(t, map[string]interface{}{"start_at": at(f.day, 10, 0)})
	require.Equal(t, http.StatusCreated, code, resp)
	id := idOf(t, resp)

	w, _ := call(t, f.r, http.MethodDelete, fmt.Sprintf("/appointment/%d", id), f.admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// the slot is free, the appointment still stays cancelled
	for _, status := range []string{model.StatusScheduled, model.StatusConfirmed} {
		w, _ = call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d/status", id), f.admin.Token, map[string]string{"status": status})
		assert.Equal(t, http.StatusConflict, w.Code, status)
	}

	var appt model.Appointment
	require.NoError(t, f.db.First(&appt, id).Error)
	assert.Equal(t, model.StatusCancelled, appt.Status)

	var pending int64
	f.db.Model(&model.Notification{}).Where("appointment_id = ? AND status = ?", id, model.NotificationPending).Count(&pending)
	assert.Zero(t, pending)
}

func TestReminderIsNotResentAfterEdits(t *testing.T) {
	f := newBookingFixture(t)
	code, resp := f.book(t, map[string]interface{}{"start_at": at(f.day, 10, 0)})
	require.Equal(t, http.StatusCreated, code, resp)
	id := idOf(t, resp)

	markSent := func() {
		t.Helper()
		require.NoError(t, f.db.Model(&model.Notification{}).
			Where("appointment_id = ? AND status = ?", id, model.NotificationPending).
			Update("status", model.NotificationSent).Error)
	}
	countByStatus := func(status string) int64 {
		var n int64
		f.db.Model(&model.Notification{}).Where("appointment_id = ? AND status = ?", id, status).Count(&n)
		return n
	}
	markSent()

	w, _ := call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d/status", id), f.admin.Token, map[string]string{"status": model.StatusConfirmed})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Zero(t, countByStatus(model.NotificationPending), "confirming must not queue another reminder")

	w, _ = call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d", id), f.admin.Token, map[string]string{"notes": "trae estudios"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Zero(t, countByStatus(model.NotificationPending), "editing notes must not queue another reminder")

	w, _ = call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d", id), f.admin.Token, map[string]string{"price": "2000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Zero(t, countByStatus(model.NotificationPending))

	// moving the appointment warrants a fresh reminder
	w, _ = call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d", id), f.admin.Token, map[string]string{"start_at": at(f.day, 11, 0)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(1), countByStatus(model.NotificationPending))
	assert.Equal(t, int64(1), countByStatus(model.NotificationSent))
}

func TestUpdateAppointment_RescheduleKeepsDuration(t *testing.T) {
	f := newBookingFixture(t)
	code, resp := f.book(t, map[string]interface{}{"start_at": at(f.day, 9, 0)})
	require.Equal(t, http.StatusCreated, code, resp)
	id := idOf(t, resp)
	code, resp = f.book(t, map[string]interface{}{"start_at": at(f.day, 11, 0), "patient_id": createPatient(t, f.r, f.admin.Token, map[string]interface{}{"full_name": "Otro"})})
	require.Equal(t, http.StatusCreated, code, resp)

	w, resp := call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d", id), f.admin.Token, map[string]string{"start_at": at(f.day, 10, 0), "notes": "control"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataMap(t, resp)
	assert.Equal(t, at(f.day, 10, 45), data["end_at"])
	assert.Equal(t, "control", data["notes"])

	var pending []model.Notification
	require.NoError(t, f.db.Where("appointment_id = ? AND status = ?", id, model.NotificationPending).Find(&pending).Error)
	require.Len(t, pending, 1)
	assert.WithinDuration(t, f.day.Add(10*time.Hour).Add(-24*time.Hour), pending[0].ScheduledFor, time.Second)

	w, _ = call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d", id), f.admin.Token, map[string]string{"start_at": at(f.day, 10, 30)})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = call(t, f.r, http.MethodPatch, "/appointment/9999", f.admin.Token, map[string]string{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateAppointmentStatus(t *testing.T) {
	f := newBookingFixture(t)
	code, resp := f.book(t, map[string]interface{}{"start_at": at(f.day, 9, 0)})
	require.Equal(t, http.StatusCreated, code, resp)
	id := idOf(t, resp)

	w, _ := call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d/status", id), f.admin.Token, map[string]string{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d/status", id), f.admin.Token, map[string]string{"status": model.StatusNoShow})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusNoShow, dataMap(t, resp)["status"])

	var count int64
	f.db.Model(&model.Notification{}).Where("appointment_id = ? AND status = ?", id, model.NotificationPending).Count(&count)
	assert.Zero(t, count)

	w, _ = call(t, f.r, http.MethodPatch, fmt.Sprintf("/appointment/%d/status", id), f.admin.Token, map[string]string{"status": model.StatusConfirmed})
	require.Equal(t, http.StatusOK, w.Code)
	f.db.Model(&model.Notification{}).Where("appointment_id = ? AND status = ?", id, model.NotificationPending).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestListSlots(t *testing.T) {
	f := newBookingFixture(t)
	code, resp := f.book(t, map[string]interface{}{"start_at": at(f.day, 9, 0)})
	require.Equal(t, http.StatusCreated, code, resp)

	path := fmt.Sprintf("/appointment/slots?specialist_id=%d&date=%s&specialty_id=%d", f.specialist, f.day.Format("2006-01-02"), f.kinesio)
	w, resp := call(t, f.r, http.MethodGet, path, f.admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	slots := resp["data"].([]interface{})
	require.Len(t, slots, 4)
	first := slots[0].(map[string]interface{})
	assert.Equal(t, at(f.day, 9, 45), first["start_at"])
	assert.Equal(t, at(f.day, 10, 30), first["end_at"])

	path = fmt.Sprintf("/appointment/slots?specialist_id=%d&date=%s", f.specialist, f.day.Format("2006-01-02"))
	_, resp = call(t, f.r, http.MethodGet, path, f.admin.Token, nil)
	assert.Len(t, resp["data"].([]interface{}), 6)

	path = fmt.Sprintf("/appointment/slots?specialist_id=%d&date=%s", f.specialist, f.day.AddDate(0, 0, 1).Format("2006-01-02"))
	_, resp = call(t, f.r, http.MethodGet, path, f.admin.Token, nil)
	assert.Empty(t, resp["data"].([]interface{}))

	w, _ = call(t, f.r, http.MethodGet, "/appointment/slots?date=2025-01-01", f.admin.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAppointments_Filters(t *testing.T) {
	f := newBookingFixture(t)
	code, resp := f.book(t, map[string]interface{}{"start_at": at(f.day, 9, 0)})
	require.Equal(t, http.StatusCreated, code, resp)
	code, resp = f.book(t, map[string]interface{}{"start_at": at(f.day, 10, 0)})
	require.Equal(t, http.StatusCreated, code, resp)
	call(t, f.r, http.MethodDelete, fmt.Sprintf("/appointment/%d", idOf(t, resp)), f.admin.Token, nil)

	date := f.day.Format("2006-01-02")
	w, resp := call(t, f.r, http.MethodGet, "/appointment?from="+date+"&to="+date, f.admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), dataMap(t, resp)["total"])

	_, resp = call(t, f.r, http.MethodGet, "/appointment?status=cancelled", f.admin.Token, nil)
	assert.Equal(t, float64(1), dataMap(t, resp)["total"])

	_, resp = call(t, f.r, http.MethodGet, "/appointment?to="+f.day.AddDate(0, 0, -1).Format("2006-01-02"), f.admin.Token, nil)
	assert.Equal(t, float64(0), dataMap(t, resp)["total"])

	w, _ = call(t, f.r, http.MethodGet, "/appointment?status=lost", f.admin.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stranger := newActor(t, f.r, f.db, model.RoleAdmin)
	_, resp = call(t, f.r, http.MethodGet, "/appointment", stranger.Token, nil)
	assert.Equal(t, float64(0), dataMap(t, resp)["total"])
}

func TestAvailableBoxes(t *testing.T) {
	f := newBookingFixture(t)
	w, resp := call(t, f.r, http.MethodPost, "/box", f.admin.Token, map[string]interface{}{"name": "Box 2"})
	require.Equal(t, http.StatusCreated, w.Code)
	box2 := idOf(t, resp)
	w, resp = call(t, f.r, http.MethodPost, "/box", f.admin.Token, map[string]interface{}{"name": "Box 3", "is_active": false})
	require.Equal(t, http.StatusCreated, w.Code)
	inactive := idOf(t, resp)
	assert.Equal(t, false, dataMap(t, resp)["is_active"])

	code, resp := f.book(t, map[string]interface{}{"start_at": at(f.day, 9, 0), "box_id": f.box})
	require.Equal(t, http.StatusCreated, code, resp)

	w, resp = call(t, f.r, http.MethodGet, fmt.Sprintf("/box/available?start=%s&end=%s", at(f.day, 9, 30), at(f.day, 10, 0)), f.admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	boxes := resp["data"].([]interface{})
	require.Len(t, boxes, 1)
	assert.Equal(t, float64(box2), boxes[0].(map[string]interface{})["ID"])

	w, _ = call(t, f.r, http.MethodGet, fmt.Sprintf("/box/available?start=%s&end=%s", at(f.day, 10, 0), at(f.day, 9, 0)), f.admin.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	code, resp = f.book(t, map[string]interface{}{"start_at": at(f.day, 11, 0), "box_id": inactive})
	assert.Equal(t, http.StatusBadRequest, code, resp)
}
