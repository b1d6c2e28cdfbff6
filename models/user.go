package models

import (
	"time"

	"gorm.io/gorm"
)

// Role values a user can hold
const (
	RoleDesigner = "designer"
	RoleSupplier = "supplier"
)

// User represents a user in the system (designer or supplier)
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Auth0ID   string         `gorm:"uniqueIndex;not null" json:"auth0_id"` // Auth0 user ID (from 'sub' claim)
	Name      string         `gorm:"not null" json:"name"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Role      string         `gorm:"not null;default:'designer'" json:"role"` // "designer" or "supplier"
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// IsDesigner reports whether the user posts designs
func (u User) IsDesigner() bool {
	return u.Role == RoleDesigner
}

// IsSupplier reports whether the user submits quotes
func (u User) IsSupplier() bool {
	return u.Role == RoleSupplier
}

// ValidRole reports whether role is one of the known roles
func ValidRole(role string) bool {
	return role == RoleDesigner || role == RoleSupplier
}
