package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCovers(t *testing.T) {
	// 2025-03-03 is a Monday.
	monday := func(h, m int) time.Time { return time.Date(2025, time.March, 3, h, m, 0, 0, time.UTC) }
	blocks := []Schedule{
		{Weekday: int(time.Monday), StartTime: "09:00", EndTime: "13:00"},
		{Weekday: int(time.Monday), StartTime: "15:00", EndTime: "19:00"},
		{Weekday: int(time.Wednesday), StartTime: "08:00", EndTime: "12:00"},
	}

	assert.True(t, Covers(blocks, monday(9, 0), monday(9, 45)))
	assert.True(t, Covers(blocks, monday(12, 15), monday(13, 0)))
	assert.True(t, Covers(blocks, monday(15, 0), monday(16, 0)))
	assert.False(t, Covers(blocks, monday(12, 30), monday(13, 30)))
	assert.False(t, Covers(blocks, monday(13, 30), monday(14, 0)))
	assert.False(t, Covers(blocks, monday(8, 0), monday(8, 30)))

	tuesday := time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)
	assert.False(t, Covers(blocks, tuesday, tuesday.Add(30*time.Minute)))
}

func TestScheduleWindow_InvalidClock(t *testing.T) {
	_, _, err := Schedule{StartTime: "9am", EndTime: "13:00"}.Window(time.Now())
	assert.Error(t, err)
}

func TestSpecialistOffers(t *testing.T) {
	s := Specialist{Specialties: []Specialty{{}, {}}}
	s.Specialties[0].ID = 3
	s.Specialties[1].ID = 5
	assert.True(t, s.Offers(5))
	assert.False(t, s.Offers(4))
}
