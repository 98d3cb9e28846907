package dto

import (
	"time"

	"github.com/loopio/feedback-tracker/internal/domain"
)

// UserRegisterRequest payload for new accounts.
type UserRegisterRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Role     string  `json:"role"`
	Phone    *string `json:"phone"`
	Address  *string `json:"address"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public view of an identity. The password hash and
// reset token never leave the service.
type UserResponse struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Email             string      `json:"email"`
	Role              domain.Role `json:"role"`
	Phone             *string     `json:"phone,omitempty"`
	Address           *string     `json:"address,omitempty"`
	ProfilePictureURL *string     `json:"profile_picture_url,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

// NewUserResponse maps an identity.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		Role:              u.Role,
		Phone:             u.Phone,
		Address:           u.Address,
		ProfilePictureURL: AvatarURL(u),
		CreatedAt:         u.CreatedAt,
	}
}

// NewUserResponses maps a listing.
func NewUserResponses(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, NewUserResponse(&users[i]))
	}
	return out
}

// AvatarURL is the public download path of a profile picture, or nil.
func AvatarURL(u *domain.User) *string {
	if u == nil || u.ProfilePictureRef == nil {
		return nil
	}
	url := "/auth/avatar/" + u.ID
	return &url
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// NewAuthResponse pairs the identity with its token.
func NewAuthResponse(u *domain.User, token domain.Token) AuthResponse {
	return AuthResponse{User: NewUserResponse(u), Token: token.Value, ExpiresAt: token.ExpiresAt}
}
