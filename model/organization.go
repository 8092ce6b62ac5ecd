package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization is a tenant. Every clinical row belongs to exactly one organization.
type Organization struct {
	gorm.Model
	Name     string `json:"name" gorm:"type:varchar(191);not null" example:"Centro Kinesio Palermo"`
	PublicID string `json:"public_id" gorm:"type:varchar(36);uniqueIndex" example:"5b1c6f0e-7a0e-4c55-9f5a-3f9b6b1c2d4e"`
	Phone    string `json:"phone" example:"1145678901"`
	Address  string `json:"address" example:"Av. Santa Fe 1234, CABA"`
	Timezone string `json:"timezone" gorm:"type:varchar(64);default:America/Argentina/Buenos_Aires"`
	IsActive bool   `json:"is_active" gorm:"default:true"`
}

// BeforeCreate assigns a public identifier that can be shared outside the API.
func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.PublicID == "" {
		o.PublicID = uuid.NewString()
	}
	return nil
}

// ForOrganization scopes a query to rows owned by orgID.
func ForOrganization(orgID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("organization_id = ?", orgID)
	}
}
