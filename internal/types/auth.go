//nolint:revive // types is a standard Go package name pattern
package types

import "time"

// LoginRequest represents the sign-in form submission.
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents a successful sign-in.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Validate validates the LoginRequest using the shared validator.
func (r *LoginRequest) Validate() error {
	return Validate(r)
}
