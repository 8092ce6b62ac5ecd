// Package analytics aggregates appointments into the dashboard summary.
package analytics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/shopspring/decimal"
)

type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

var ErrUnknownGranularity = errors.New("group_by must be day, week or month")

// ParseGranularity accepts "day", "week" or "month"; empty means day.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "", Day:
		return Day, nil
	case Week, Month:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
}

// Range is the half-open window [From, To).
type Range struct {
	From time.Time
	To   time.Time
}

// bucketStart truncates t (in loc) to the first instant of its bucket.
func bucketStart(t time.Time, g Granularity, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	switch g {
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case Week:
		offset := (int(t.Weekday()) + 6) % 7 // monday = 0
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

func nextBucket(t time.Time, g Granularity) time.Time {
	switch g {
	case Month:
		return t.AddDate(0, 1, 0)
	case Week:
		return t.AddDate(0, 0, 7)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// BucketKey labels the bucket containing t: "2025-03-14" for days, the monday
// "2025-03-10" for weeks and "2025-03" for months.
func BucketKey(t time.Time, g Granularity, loc *time.Location) string {
	start := bucketStart(t, g, loc)
	if g == Month {
		return start.Format("2006-01")
	}
	return start.Format("2006-01-02")
}

// BucketKeys lists every bucket touching r in chronological order.
func BucketKeys(r Range, g Granularity, loc *time.Location) []string {
	var keys []string
	for t := bucketStart(r.From, g, loc); t.Before(r.To); t = nextBucket(t, g) {
		keys = append(keys, BucketKey(t, g, loc))
	}
	return keys
}

type StatusStat struct {
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type Bucket struct {
	Key       string `json:"key"`
	Total     int    `json:"total"`
	Attended  int    `json:"attended"`
	Cancelled int    `json:"cancelled"`
	NoShow    int    `json:"no_show"`
}

type Breakdown struct {
	ID       uint            `json:"id"`
	Name     string          `json:"name"`
	Total    int             `json:"total"`
	Attended int             `json:"attended"`
	Percent  float64         `json:"percent"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type Summary struct {
	From           string                `json:"from"`
	To             string                `json:"to"`
	GroupBy        Granularity           `json:"group_by"`
	Total          int                   `json:"total"`
	Statuses       map[string]StatusStat `json:"statuses"`
	AttendanceRate float64               `json:"attendance_rate"`
	Revenue        decimal.Decimal       `json:"revenue"`
	Buckets        []Bucket              `json:"buckets"`
	BySpecialty    []Breakdown           `json:"by_specialty"`
	BySpecialist   []Breakdown           `json:"by_specialist"`
}

// Percent returns part/total*100 rounded to two decimals, 0 when total is 0.
func Percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		InexactFloat64()
}

// Names resolves ids to display names for the breakdowns.
type Names struct {
	Specialties map[uint]string
	Specialists map[uint]string
}

func (n Names) lookup(m map[uint]string, id uint) string {
	if name, ok := m[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("#%d", id)
}

type breakdownAcc struct {
	total, attended int
	revenue         decimal.Decimal
}

func (a *breakdownAcc) add(appt model.Appointment) {
	a.total++
	if appt.Status == model.StatusAttended {
		a.attended++
		a.revenue = a.revenue.Add(appt.Price)
	}
}

func flatten(acc map[uint]*breakdownAcc, names map[uint]string, n Names, total int) []Breakdown {
	out := make([]Breakdown, 0, len(acc))
	for id, a := range acc {
		out = append(out, Breakdown{
			ID:       id,
			Name:     n.lookup(names, id),
			Total:    a.total,
			Attended: a.attended,
			Percent:  Percent(a.total, total),
			Revenue:  a.revenue,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Summarize aggregates appointments starting inside r. Rows outside r are ignored.
func Summarize(appts []model.Appointment, r Range, g Granularity, loc *time.Location, names Names) Summary {
	if loc == nil {
		loc = time.UTC
	}
	s := Summary{
		From:     r.From.In(loc).Format("2006-01-02"),
		To:       r.To.In(loc).AddDate(0, 0, -1).Format("2006-01-02"),
		GroupBy:  g,
		Statuses: make(map[string]StatusStat),
		Revenue:  decimal.Zero,
	}

	keys := BucketKeys(r, g, loc)
	index := make(map[string]int, len(keys))
	s.Buckets = make([]Bucket, len(keys))
	for i, k := range keys {
		index[k] = i
		s.Buckets[i] = Bucket{Key: k}
	}

	counts := make(map[string]int)
	bySpecialty := make(map[uint]*breakdownAcc)
	bySpecialist := make(map[uint]*breakdownAcc)

	for _, a := range appts {
		if a.StartAt.Before(r.From) || !a.StartAt.Before(r.To) {
			continue
		}
		s.Total++
		counts[a.Status]++

		if i, ok := index[BucketKey(a.StartAt, g, loc)]; ok {
			b := &s.Buckets[i]
			b.Total++
			switch a.Status {
			case model.StatusAttended:
				b.Attended++
			case model.StatusCancelled:
				b.Cancelled++
			case model.StatusNoShow:
				b.NoShow++
			}
		}

		if bySpecialty[a.SpecialtyID] == nil {
			bySpecialty[a.SpecialtyID] = &breakdownAcc{revenue: decimal.Zero}
		}
		bySpecialty[a.SpecialtyID].add(a)
		if bySpecialist[a.SpecialistID] == nil {
			bySpecialist[a.SpecialistID] = &breakdownAcc{revenue: decimal.Zero}
		}
		bySpecialist[a.SpecialistID].add(a)

		if a.Status == model.StatusAttended {
			s.Revenue = s.Revenue.Add(a.Price)
		}
	}

	for _, st := range model.AppointmentStatuses() {
		s.Statuses[st] = StatusStat{Count: counts[st], Percent: Percent(counts[st], s.Total)}
	}
	attended, noShow := counts[model.StatusAttended], counts[model.StatusNoShow]
	s.AttendanceRate = Percent(attended, attended+noShow)
	s.BySpecialty = flatten(bySpecialty, names.Specialties, names, s.Total)
	s.BySpecialist = flatten(bySpecialist, names.Specialists, names, s.Total)
	return s
}
