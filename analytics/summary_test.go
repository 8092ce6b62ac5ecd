package analytics

import (
	"testing"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var art = time.FixedZone("ART", -3*3600)

func at(day, hour int) time.Time {
	return time.Date(2025, 3, day, hour, 0, 0, 0, art)
}

func appt(start time.Time, status string, specialtyID, specialistID uint, price string) model.Appointment {
	return model.Appointment{
		StartAt:      start,
		EndAt:        start.Add(30 * time.Minute),
		Status:       status,
		SpecialtyID:  specialtyID,
		SpecialistID: specialistID,
		Price:        decimal.RequireFromString(price),
	}
}

func TestParseGranularity(t *testing.T) {
	for in, want := range map[string]Granularity{"": Day, "day": Day, "week": Week, "month": Month} {
		got, err := ParseGranularity(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseGranularity("year")
	assert.ErrorIs(t, err, ErrUnknownGranularity)
}

func TestBucketKey(t *testing.T) {
	// 2025-03-14 is a friday; 01:30 UTC is still the 13th in Buenos Aires
	ts := time.Date(2025, 3, 14, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-13", BucketKey(ts, Day, art))
	assert.Equal(t, "2025-03-10", BucketKey(ts, Week, art))
	assert.Equal(t, "2025-03", BucketKey(ts, Month, art))

	sunday := time.Date(2025, 3, 16, 12, 0, 0, 0, art)
	assert.Equal(t, "2025-03-10", BucketKey(sunday, Week, art))
}

func TestBucketKeys(t *testing.T) {
	r := Range{From: at(10, 0), To: at(13, 0)}
	assert.Equal(t, []string{"2025-03-10", "2025-03-11", "2025-03-12"}, BucketKeys(r, Day, art))

	r = Range{From: at(1, 0), To: time.Date(2025, 5, 1, 0, 0, 0, 0, art)}
	assert.Equal(t, []string{"2025-03", "2025-04"}, BucketKeys(r, Month, art))

	r = Range{From: at(12, 0), To: at(20, 0)}
	assert.Equal(t, []string{"2025-03-10", "2025-03-17"}, BucketKeys(r, Week, art))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(1, 0))
	assert.Equal(t, 33.33, Percent(1, 3))
	assert.Equal(t, 66.67, Percent(2, 3))
	assert.Equal(t, 100.0, Percent(4, 4))
}

func TestSummarize(t *testing.T) {
	r := Range{From: at(10, 0), To: at(13, 0)}
	appts := []model.Appointment{
		appt(at(10, 9), model.StatusAttended, 1, 7, "1500.50"),
		appt(at(10, 10), model.StatusAttended, 2, 7, "2000"),
		appt(at(11, 9), model.StatusCancelled, 1, 8, "1500"),
		appt(at(12, 9), model.StatusNoShow, 1, 8, "1500"),
		appt(at(13, 9), model.StatusAttended, 1, 8, "9999"), // outside the window
	}
	names := Names{Specialties: map[uint]string{1: "Kinesiología"}, Specialists: map[uint]string{7: "Ana", 8: "Pablo"}}

	s := Summarize(appts, r, Day, art, names)

	assert.Equal(t, "2025-03-10", s.From)
	assert.Equal(t, "2025-03-12", s.To, "the last day inside the range, not the exclusive bound")
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, StatusStat{Count: 2, Percent: 50}, s.Statuses[model.StatusAttended])
	assert.Equal(t, StatusStat{Count: 1, Percent: 25}, s.Statuses[model.StatusCancelled])
	assert.Equal(t, StatusStat{Count: 0, Percent: 0}, s.Statuses[model.StatusScheduled])
	assert.Equal(t, 66.67, s.AttendanceRate)
	assert.True(t, s.Revenue.Equal(decimal.RequireFromString("3500.50")), s.Revenue.String())

	require.Len(t, s.Buckets, 3)
	assert.Equal(t, Bucket{Key: "2025-03-10", Total: 2, Attended: 2}, s.Buckets[0])
	assert.Equal(t, Bucket{Key: "2025-03-11", Total: 1, Cancelled: 1}, s.Buckets[1])
	assert.Equal(t, Bucket{Key: "2025-03-12", Total: 1, NoShow: 1}, s.Buckets[2])

	require.Len(t, s.BySpecialty, 2)
	assert.Equal(t, "Kinesiología", s.BySpecialty[0].Name)
	assert.Equal(t, 3, s.BySpecialty[0].Total)
	assert.Equal(t, 75.0, s.BySpecialty[0].Percent)
	assert.Equal(t, "#2", s.BySpecialty[1].Name)
	assert.True(t, s.BySpecialty[1].Revenue.Equal(decimal.NewFromInt(2000)))

	require.Len(t, s.BySpecialist, 2)
	assert.Equal(t, uint(7), s.BySpecialist[0].ID)
	assert.Equal(t, 2, s.BySpecialist[0].Attended)
}

func TestSummarize_EmptyWindowIsZeroFilled(t *testing.T) {
	s := Summarize(nil, Range{From: at(1, 0), To: time.Date(2025, 4, 1, 0, 0, 0, 0, art)}, Week, art, Names{})
	assert.Equal(t, 0, s.Total)
	assert.Len(t, s.Buckets, 6)
	assert.True(t, s.Revenue.IsZero())
	assert.Empty(t, s.BySpecialty)
	assert.Len(t, s.Statuses, len(model.AppointmentStatuses()))
}
