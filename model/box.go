package model

import "gorm.io/gorm"

// Box is a treatment room.
type Box struct {
	gorm.Model
	OrganizationID uint   `json:"organization_id" gorm:"index;not null"`
	Name           string `json:"name" gorm:"type:varchar(100);not null" example:"Box 1"`
	Description    string `json:"description" example:"Camilla y equipo de electroterapia"`
	IsActive       bool   `json:"is_active" gorm:"default:true"`
}
