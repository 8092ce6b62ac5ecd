package notifier

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// KindReminder tags reminder rows in Notification.Payload.
const KindReminder = "appointment_reminder"

var timeNow = time.Now

var weekdaysES = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// OrganizationLocation returns the organization's timezone, or fallback when unset or unknown.
func OrganizationLocation(org model.Organization, fallback *time.Location) *time.Location {
	if org.Timezone != "" {
		if loc, err := time.LoadLocation(org.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

func firstName(full string) string {
	if f := strings.Fields(full); len(f) > 0 {
		return f[0]
	}
	return full
}

// BuildReminderMessage renders the WhatsApp reminder text for an appointment.
func BuildReminderMessage(org model.Organization, patient model.Patient, specialist model.Specialist,
	specialty model.Specialty, appt model.Appointment, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	start := appt.StartAt.In(loc)

	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s! Te recordamos tu turno de %s con %s el %s %s a las %s hs",
		firstName(patient.FullName), specialty.Name, specialist.FullName,
		weekdaysES[start.Weekday()], start.Format("02/01"), start.Format("15:04"))
	if org.Name != "" {
		fmt.Fprintf(&b, " en %s", org.Name)
	}
	if org.Address != "" {
		fmt.Fprintf(&b, " (%s)", org.Address)
	}
	b.WriteString(". Si no podés asistir, por favor avisanos respondiendo este mensaje.")
	return b.String()
}

type reminderPayload struct {
	Kind          string `json:"kind"`
	AppointmentID uint   `json:"appointment_id"`
	StartAt       string `json:"start_at"`
}

// reminderSent reports whether a reminder for appt's current start time already went out.
func reminderSent(tx *gorm.DB, appt model.Appointment) (bool, error) {
	var sent []model.Notification
	err := tx.Select("id", "payload").
		Where("appointment_id = ? AND status = ?", appt.ID, model.NotificationSent).
		Find(&sent).Error
	if err != nil {
		return false, fmt.Errorf("load sent reminders: %w", err)
	}
	want := appt.StartAt.UTC().Format(time.RFC3339)
	for _, n := range sent {
		var p reminderPayload
		if len(n.Payload) == 0 || json.Unmarshal(n.Payload, &p) != nil {
			continue
		}
		if p.Kind == KindReminder && p.StartAt == want {
			return true, nil
		}
	}
	return false, nil
}

// EnqueueReminder replaces any pending reminder of appt with a new one scheduled
// lead before the start. Reminders whose time already passed are scheduled
// immediately. Appointments already started, patients without a phone and
// appointments already reminded for the same start time get none and nil is
// returned.
func EnqueueReminder(db *gorm.DB, appt model.Appointment, lead time.Duration) (*model.Notification, error) {
	var result *model.Notification
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := CancelReminders(tx, appt.ID); err != nil {
			return err
		}

		now := timeNow().UTC()
		if !appt.IsActive() || !appt.StartAt.After(now) {
			return nil
		}
		sent, err := reminderSent(tx, appt)
		if err != nil {
			return err
		}
		if sent {
			return nil
		}

		var org model.Organization
		var patient model.Patient
		var specialist model.Specialist
		var specialty model.Specialty
		if err := tx.First(&org, appt.OrganizationID).Error; err != nil {
			return fmt.Errorf("load organization: %w", err)
		}
		if err := tx.Scopes(model.ForOrganization(appt.OrganizationID)).First(&patient, appt.PatientID).Error; err != nil {
			return fmt.Errorf("load patient: %w", err)
		}
		if strings.TrimSpace(patient.PhoneNumber) == "" {
			return nil
		}
		if err := tx.Scopes(model.ForOrganization(appt.OrganizationID)).First(&specialist, appt.SpecialistID).Error; err != nil {
			return fmt.Errorf("load specialist: %w", err)
		}
		if err := tx.Scopes(model.ForOrganization(appt.OrganizationID)).First(&specialty, appt.SpecialtyID).Error; err != nil {
			return fmt.Errorf("load specialty: %w", err)
		}

		scheduled := appt.StartAt.Add(-lead).UTC()
		if scheduled.Before(now) {
			scheduled = now
		}

		payload, _ := json.Marshal(reminderPayload{
			Kind:          KindReminder,
			AppointmentID: appt.ID,
			StartAt:       appt.StartAt.UTC().Format(time.RFC3339),
		})
		apptID := appt.ID
		n := model.Notification{
			OrganizationID: appt.OrganizationID,
			AppointmentID:  &apptID,
			PatientID:      patient.ID,
			Recipient:      patient.PhoneNumber,
			Message:        BuildReminderMessage(org, patient, specialist, specialty, appt, OrganizationLocation(org, time.UTC)),
			ScheduledFor:   scheduled,
			Status:         model.NotificationPending,
			Payload:        datatypes.JSON(payload),
		}
		if err := tx.Create(&n).Error; err != nil {
			return err
		}
		result = &n
		return nil
	})
	return result, err
}

// CancelReminders cancels every pending notification attached to an appointment.
func CancelReminders(db *gorm.DB, appointmentID uint) (int64, error) {
	res := db.Model(&model.Notification{}).
		Where("appointment_id = ? AND status = ?", appointmentID, model.NotificationPending).
		Update("status", model.NotificationCancelled)
	return res.RowsAffected, res.Error
}

// RetargetPending points the patient's pending notifications at a new phone number.
func RetargetPending(db *gorm.DB, patientID uint, phone string) (int64, error) {
	res := db.Model(&model.Notification{}).
		Where("patient_id = ? AND status = ?", patientID, model.NotificationPending).
		Update("recipient", phone)
	return res.RowsAffected, res.Error
}
