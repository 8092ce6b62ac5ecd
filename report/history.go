// Package report shapes clinical records into the printable patient history.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
)

var monthsES = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
	"agosto", "septiembre", "octubre", "noviembre", "diciembre"}

// MonthLabel renders t as "marzo 2025".
func MonthLabel(t time.Time) string {
	return fmt.Sprintf("%s %d", monthsES[t.Month()-1], t.Year())
}

type MonthGroup struct {
	Month   string                 `json:"month"`
	Label   string                 `json:"label"`
	Records []model.ClinicalRecord `json:"records"`
}

type SpecialtyGroup struct {
	SpecialtyID uint         `json:"specialty_id"`
	Name        string       `json:"name"`
	Count       int          `json:"count"`
	Months      []MonthGroup `json:"months"`
}

type History struct {
	Total       int              `json:"total"`
	FirstVisit  *time.Time       `json:"first_visit"`
	LastVisit   *time.Time       `json:"last_visit"`
	BySpecialty []SpecialtyGroup `json:"by_specialty"`
}

func specialtyName(r model.ClinicalRecord) string {
	if r.Specialty != nil && r.Specialty.Name != "" {
		return r.Specialty.Name
	}
	if r.SpecialtyID == 0 {
		return "General"
	}
	return fmt.Sprintf("Especialidad #%d", r.SpecialtyID)
}

// GroupHistory groups records by specialty (alphabetically) and then by month
// in loc, newest month and newest record first.
func GroupHistory(records []model.ClinicalRecord, loc *time.Location) History {
	if loc == nil {
		loc = time.UTC
	}
	sorted := append([]model.ClinicalRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].RecordDate.Equal(sorted[j].RecordDate) {
			return sorted[i].RecordDate.After(sorted[j].RecordDate)
		}
		return sorted[i].ID > sorted[j].ID
	})

	h := History{Total: len(sorted)}
	if len(sorted) > 0 {
		last := sorted[0].RecordDate
		first := sorted[len(sorted)-1].RecordDate
		h.LastVisit, h.FirstVisit = &last, &first
	}

	groups := make(map[uint]*SpecialtyGroup)
	var order []uint
	for _, r := range sorted {
		g, ok := groups[r.SpecialtyID]
		if !ok {
			g = &SpecialtyGroup{SpecialtyID: r.SpecialtyID, Name: specialtyName(r)}
			groups[r.SpecialtyID] = g
			order = append(order, r.SpecialtyID)
		}
		g.Count++

		local := r.RecordDate.In(loc)
		key := local.Format("2006-01")
		if n := len(g.Months); n == 0 || g.Months[n-1].Month != key {
			g.Months = append(g.Months, MonthGroup{Month: key, Label: MonthLabel(local)})
		}
		g.Months[len(g.Months)-1].Records = append(g.Months[len(g.Months)-1].Records, r)
	}

	for _, id := range order {
		h.BySpecialty = append(h.BySpecialty, *groups[id])
	}
	sort.SliceStable(h.BySpecialty, func(i, j int) bool {
		return h.BySpecialty[i].Name < h.BySpecialty[j].Name
	})
	return h
}
