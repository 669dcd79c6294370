package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email     string   `json:"email" validate:"required,email"`
	Password  string   `json:"password" validate:"required,min=6"`
	Name      string   `json:"name" validate:"required"`
	Role      UserRole `json:"role" validate:"omitempty,oneof=STUDENT LECTURER"`
	NIM       string   `json:"nim"`
	NIDN      string   `json:"nidn"`
	IP        string   `json:"-"`
	UserAgent string   `json:"-"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// AuthResponse returns the issued token with the account it belongs to.
type AuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
	User      *User  `json:"user"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

// UpdateProfileRequest edits the caller's own profile.
type UpdateProfileRequest struct {
	Name string `json:"name" validate:"required"`
	NIM  string `json:"nim"`
	NIDN string `json:"nidn"`
}

// Principal is the authenticated caller resolved by the access middleware.
type Principal struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Role     UserRole `json:"role"`
	Verified bool     `json:"isVerified"`
}

// PrincipalFromUser projects a stored user onto the request principal.
func PrincipalFromUser(u *User) *Principal {
	return &Principal{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, Verified: u.Verified}
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"userId"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}
