package endpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"gorm.io/gorm"
)

// Booking rule violations. Overlaps map to 409, the rest to 400.
var (
	ErrInvalidInterval     = errors.New("end must be after start")
	ErrSpecialtyNotOffered = errors.New("specialist does not offer this specialty")
	ErrOutsideSchedule     = errors.New("appointment is outside the specialist's working hours")
	ErrSlotTaken           = errors.New("specialist already has an appointment in that time")
	ErrBoxTaken            = errors.New("box is already booked in that time")
	ErrPatientBusy         = errors.New("patient already has an appointment in that time")
	ErrUnknownReference    = errors.New("referenced record does not exist")
	ErrBoxInactive         = errors.New("box is not active")
	ErrInvalidTime         = errors.New("invalid date time")
	ErrInvalidPrice        = errors.New("price cannot be negative")
)

// activeStatuses are the statuses that keep a slot occupied.
var activeStatuses = []string{model.StatusScheduled, model.StatusConfirmed, model.StatusAttended}

func isConflict(err error) bool {
	return errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrBoxTaken) || errors.Is(err, ErrPatientBusy)
}

// overlapping narrows q to active appointments intersecting [start, end),
// excluding the appointment being rescheduled.
func overlapping(q *gorm.DB, start, end time.Time, excludeID uint) *gorm.DB {
	q = q.Model(&model.Appointment{}).
		Where("status IN ?", activeStatuses).
		Where("start_at < ? AND end_at > ?", end.UTC(), start.UTC())
	if excludeID != 0 {
		q = q.Where("id != ?", excludeID)
	}
	return q
}

func hasOverlap(q *gorm.DB, start, end time.Time, excludeID uint) (bool, error) {
	var count int64
	if err := overlapping(q, start, end, excludeID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func firstOrUnknown(tx *gorm.DB, dst interface{}, id uint, what string) error {
	err := tx.First(dst, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", ErrUnknownReference, what, id)
	}
	return err
}

// checkBooking validates appt against every booking rule. tx must be a
// transaction the caller commits together with the insert or update.
func checkBooking(tx *gorm.DB, appt model.Appointment, loc *time.Location) error {
	if !appt.EndAt.After(appt.StartAt) {
		return ErrInvalidInterval
	}
	scoped := func() *gorm.DB { return tx.Scopes(model.ForOrganization(appt.OrganizationID)) }

	var specialist model.Specialist
	if err := firstOrUnknown(scoped().Preload("Specialties").Preload("Schedules"), &specialist, appt.SpecialistID, "specialist"); err != nil {
		return err
	}
	if !specialist.Offers(appt.SpecialtyID) {
		return ErrSpecialtyNotOffered
	}
	if !model.Covers(specialist.Schedules, appt.StartAt.In(loc), appt.EndAt.In(loc)) {
		return ErrOutsideSchedule
	}

	var patient model.Patient
	if err := firstOrUnknown(scoped(), &patient, appt.PatientID, "patient"); err != nil {
		return err
	}

	if appt.BoxID != nil {
		var box model.Box
		if err := firstOrUnknown(scoped(), &box, *appt.BoxID, "box"); err != nil {
			return err
		}
		if !box.IsActive {
			return ErrBoxInactive
		}
	}

	busy, err := hasOverlap(scoped().Where("specialist_id = ?", appt.SpecialistID), appt.StartAt, appt.EndAt, appt.ID)
	if err != nil {
		return err
	}
	if busy {
		return ErrSlotTaken
	}

	if appt.BoxID != nil {
		busy, err = hasOverlap(scoped().Where("box_id = ?", *appt.BoxID), appt.StartAt, appt.EndAt, appt.ID)
		if err != nil {
			return err
		}
		if busy {
			return ErrBoxTaken
		}
	}

	busy, err = hasOverlap(scoped().Where("patient_id = ?", appt.PatientID), appt.StartAt, appt.EndAt, appt.ID)
	if err != nil {
		return err
	}
	if busy {
		return ErrPatientBusy
	}
	return nil
}

// Slot is a bookable interval.
type Slot struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// freeSlots cuts every schedule block of day's weekday into consecutive slots
// of length step and keeps those that start after now and overlap no booked
// appointment. day must be expressed in the organization's location.
func freeSlots(blocks []model.Schedule, booked []model.Appointment, day time.Time, step time.Duration, now time.Time) []Slot {
	slots := []Slot{}
	if step <= 0 {
		return slots
	}
	for _, b := range blocks {
		if b.Weekday != int(day.Weekday()) {
			continue
		}
		from, to, err := b.Window(day)
		if err != nil {
			continue
		}
		for start := from; !start.Add(step).After(to); start = start.Add(step) {
			end := start.Add(step)
			if !start.After(now) {
				continue
			}
			taken := false
			for _, a := range booked {
				if a.IsActive() && a.Overlaps(start, end) {
					taken = true
					break
				}
			}
			if !taken {
				slots = append(slots, Slot{StartAt: start, EndAt: end})
			}
		}
	}
	return slots
}
