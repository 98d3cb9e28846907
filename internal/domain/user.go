package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role enumerates the closed set of account roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleDeveloper Role = "developer"
	RoleAdmin     Role = "admin"
)

// ParseRole normalizes a stored or submitted role string. Anything outside the
// enum is rejected so case drift never reaches the read paths.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, nil
	case RoleDeveloper:
		return RoleDeveloper, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// User is an identity record. Email is unique.
type User struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string
	Role              Role
	ProfilePictureRef *string
	Phone             *string
	Address           *string
	ResetTokenHash    *string
	ResetTokenExpiry  *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (u *User) IsAdmin() bool     { return u != nil && u.Role == RoleAdmin }
func (u *User) IsDeveloper() bool { return u != nil && u.Role == RoleDeveloper }
