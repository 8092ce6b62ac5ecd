package model

import "gorm.io/gorm"

// Specialist represents a practitioner (especialista) linked to a login user.
// @Description Specialist information
type Specialist struct {
	gorm.Model
	OrganizationID uint        `json:"organization_id" gorm:"index;not null"`
	UserID         uint        `json:"user_id" gorm:"index"`
	FullName       string      `json:"full_name" gorm:"type:varchar(191);not null" example:"Lic. Ana Gómez"`
	LicenseNumber  string      `json:"license_number" example:"MN 12345"`
	PhoneNumber    string      `json:"phone_number" example:"1156781234"`
	Email          string      `json:"email" example:"ana@example.com"`
	Color          string      `json:"color" gorm:"type:varchar(16)" example:"#4f46e5"`
	Specialties    []Specialty `json:"specialties,omitempty" gorm:"many2many:specialist_specialties;"`
	Schedules      []Schedule  `json:"schedules,omitempty"`
}

// Offers reports whether the specialist is linked to the given specialty.
func (s Specialist) Offers(specialtyID uint) bool {
	for _, sp := range s.Specialties {
		if sp.ID == specialtyID {
			return true
		}
	}
	return false
}
