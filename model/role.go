package model

import (
	"fmt"

	"gorm.io/gorm"
)

// Role ids are fixed so middleware can compare against the constants below.
const (
	RoleAdmin        uint32 = 1
	RoleSpecialist   uint32 = 2
	RoleReceptionist uint32 = 3
)

var roleNames = map[uint32]string{
	RoleAdmin:        "Admin",
	RoleSpecialist:   "Especialista",
	RoleReceptionist: "Recepcion",
}

type Role struct {
	gorm.Model
	ID   uint32 `gorm:"primary_key;auto_increment" json:"id"`
	Name string `gorm:"type:varchar(100);not null" json:"name"`
}

// ValidRole reports whether id is one of the seeded roles.
func ValidRole(id uint32) bool {
	_, ok := roleNames[id]
	return ok
}

// SeedRoles inserts missing roles and restores the canonical name of existing ones.
func SeedRoles(db *gorm.DB) error {
	for _, id := range []uint32{RoleAdmin, RoleSpecialist, RoleReceptionist} {
		name := roleNames[id]
		var role Role
		err := db.Where(Role{ID: id}).Attrs(Role{Name: name}).FirstOrCreate(&role).Error
		if err != nil {
			return fmt.Errorf("failed to seed role %s: %w", name, err)
		}
		if role.Name != name {
			if err := db.Model(&role).Update("name", name).Error; err != nil {
				return fmt.Errorf("failed to rename role %d: %w", id, err)
			}
		}
	}
	return nil
}
