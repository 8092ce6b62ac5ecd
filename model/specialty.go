package model

import (
	"fmt"

	"gorm.io/gorm"
)

// Specialty is a treatment line offered by an organization (kinesiología, fisioterapia...).
type Specialty struct {
	gorm.Model
	OrganizationID  uint   `json:"organization_id" gorm:"index;not null"`
	Name            string `json:"name" gorm:"type:varchar(191);not null" example:"Kinesiología"`
	Description     string `json:"description" example:"Rehabilitación motora"`
	DurationMinutes int    `json:"duration_minutes" gorm:"default:30" example:"45"`
}

var defaultSpecialties = []Specialty{
	{Name: "Kinesiología", Description: "Rehabilitación kinésica", DurationMinutes: 45},
	{Name: "Fisioterapia", Description: "Agentes físicos y electroterapia", DurationMinutes: 30},
	{Name: "Traumatología", Description: "Consulta traumatológica", DurationMinutes: 20},
	{Name: "Rehabilitación", Description: "Rehabilitación funcional", DurationMinutes: 60},
}

// SeedSpecialties creates the default specialty catalog for an organization.
// Existing names are left untouched.
func SeedSpecialties(db *gorm.DB, orgID uint) error {
	for _, s := range defaultSpecialties {
		var existing Specialty
		err := db.Scopes(ForOrganization(orgID)).Where("name = ?", s.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		s.OrganizationID = orgID
		if err := db.Create(&s).Error; err != nil {
			return fmt.Errorf("failed to seed specialty %s: %w", s.Name, err)
		}
	}
	return nil
}
