package models

import (
	"time"
)

// Auth providers
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the local auth system
type User struct {
	ID            string    `bson:"_id" json:"id"`
	Email         string    `bson:"email" json:"email"`
	PasswordHash  string    `bson:"passwordHash,omitempty" json:"-"` // Argon2id hash, never exposed in API
	EmailVerified bool      `bson:"emailVerified" json:"email_verified"`
	Provider      string    `bson:"provider" json:"provider"`
	Role          string    `bson:"role" json:"role"`      // "admin" or "user"
	TokenVersion  int       `bson:"tokenVersion" json:"-"` // Incremented on logout to invalidate refresh tokens
	CreatedAt     time.Time `bson:"createdAt" json:"created_at"`
	LastLoginAt   time.Time `bson:"lastLoginAt" json:"last_login_at"`
}

// IsAdmin reports whether the account carries the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserResponse is the API response for user data
type UserResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	Provider      string    `json:"provider"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
	LastLoginAt   time.Time `json:"last_login_at"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Provider:      u.Provider,
		Role:          u.Role,
		CreatedAt:     u.CreatedAt,
		LastLoginAt:   u.LastLoginAt,
	}
}

// Action token purposes
const (
	TokenPurposeVerifyEmail   = "verify_email"
	TokenPurposeResetPassword = "reset_password"
)

// ActionToken is a single-use token mailed to a user
type ActionToken struct {
	Token     string    `bson:"_id" json:"-"`
	UserID    string    `bson:"userId" json:"user_id"`
	Purpose   string    `bson:"purpose" json:"purpose"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expires_at"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// Expired reports whether the token can no longer be redeemed
func (t *ActionToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
