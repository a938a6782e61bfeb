package authorization

import "time"

// Roles understood by the guard.
const (
	RoleAdmin   = "admin"
	RoleClient  = "client"
	RoleService = "service"
)

// User is an admin-panel account. Client users belong to exactly one
// tenant; admins have no tenant.
type User struct {
	ID           uint    `gorm:"primaryKey"`
	Username     string  `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string  `gorm:"size:255;not null"`
	DisplayName  string  `gorm:"size:128;not null;default:''"`
	Role         string  `gorm:"size:16;not null;default:'client'"`
	TenantID     *string `gorm:"size:64;index"`
	Status       string  `gorm:"size:32;default:'active'"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (User) TableName() string {
	return "users"
}
