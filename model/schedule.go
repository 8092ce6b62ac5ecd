package model

import (
	"time"

	"gorm.io/gorm"
)

// Schedule is one block of weekly working hours for a specialist.
// StartTime and EndTime are clock times in the organization's timezone ("HH:MM").
type Schedule struct {
	gorm.Model
	OrganizationID uint   `json:"organization_id" gorm:"index;not null"`
	SpecialistID   uint   `json:"specialist_id" gorm:"index;not null"`
	Weekday        int    `json:"weekday" gorm:"not null" example:"1"`
	StartTime      string `json:"start_time" gorm:"type:varchar(5);not null" example:"09:00"`
	EndTime        string `json:"end_time" gorm:"type:varchar(5);not null" example:"13:00"`
}

// Window returns the concrete interval this block covers on day (in day's location).
func (s Schedule) Window(day time.Time) (time.Time, time.Time, error) {
	start, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse("15:04", s.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := day.Date()
	loc := day.Location()
	return time.Date(y, m, d, start.Hour(), start.Minute(), 0, 0, loc),
		time.Date(y, m, d, end.Hour(), end.Minute(), 0, 0, loc), nil
}

// Covers reports whether [start, end) falls entirely inside one of the blocks.
// start and end must already be expressed in the organization's location.
func Covers(blocks []Schedule, start, end time.Time) bool {
	for _, b := range blocks {
		if b.Weekday != int(start.Weekday()) {
			continue
		}
		from, to, err := b.Window(start)
		if err != nil {
			continue
		}
		if !start.Before(from) && !end.After(to) {
			return true
		}
	}
	return false
}
