package models

import (
	"time"

	"github.com/brewmetric/brewmetric-core/pkg/enums"
)

// User represents the canonical identity entity. Users are deactivated
// rather than deleted so audit and waste history keep a valid actor.
type User struct {
	ID           uint       `gorm:"primaryKey"`
	Username     string     `gorm:"size:50;not null;uniqueIndex:idx_users_username"`
	Email        string     `gorm:"size:120;not null;uniqueIndex:idx_users_email"`
	PasswordHash string     `gorm:"column:password_hash;size:255;not null"`
	FullName     string     `gorm:"column:full_name;size:120;not null"`
	Role         enums.Role `gorm:"size:20;not null;default:staff"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
}

func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == enums.RoleAdmin
}
