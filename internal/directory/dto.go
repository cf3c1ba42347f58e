package directory

import (
	"time"

	"github.com/brewmetric/brewmetric-core/pkg/db/models"
	"github.com/brewmetric/brewmetric-core/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID          uint       `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	Role        enums.Role `json:"role"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// CreateUserInput holds the data required to provision a new user.
type CreateUserInput struct {
	Username string     `json:"username" validate:"required"`
	Email    string     `json:"email" validate:"required"`
	Password string     `json:"password" validate:"required"`
	FullName string     `json:"full_name" validate:"required"`
	Role     enums.Role `json:"role"`
}

// CreateUserRecord is the persistence shape the repository accepts; the
// password has already been hashed by the service.
type CreateUserRecord struct {
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	Role         enums.Role
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

func (c CreateUserRecord) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = enums.RoleStaff
	}
	return &models.User{
		Username:     c.Username,
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		FullName:     c.FullName,
		Role:         role,
		IsActive:     true,
	}
}
