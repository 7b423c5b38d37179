package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds the PIN credentials of a user.
type LoginRequest struct {
	PhoneOrEmail   string `json:"phone_or_email" validate:"required"`
	PIN            string `json:"pin" validate:"required,numeric,min=4,max=6"`
	RememberDevice bool   `json:"remember_device"`
	IP             string `json:"-"`
	UserAgent      string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

// ChangePinRequest payload for updating a PIN.
type ChangePinRequest struct {
	OldPIN string `json:"old_pin" validate:"required"`
	NewPIN string `json:"new_pin" validate:"required,numeric,min=4,max=6"`
}

// UserInfo describes the authenticated user in responses. TeacherID is set for
// users linked to a teacher profile.
type UserInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	PhoneOrEmail string   `json:"phone_or_email"`
	Role         UserRole `json:"role"`
	TeacherID    *string  `json:"teacher_id,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Name   string   `json:"name"`
	jwt.RegisteredClaims
}
