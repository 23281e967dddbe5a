package config

import (
	"crypto/subtle"
	"fmt"
	"os"
)

// AdminConfig holds the credentials of the single administrator.
type AdminConfig struct {
	Username     string
	PasswordHash string

	passwords *PasswordConfig
}

// NewAdminConfig reads ADMIN_USERNAME and either ADMIN_PASSWORD_HASH (a
// bcrypt hash) or ADMIN_PASSWORD, which is hashed at start-up.
func NewAdminConfig(passwords *PasswordConfig) (*AdminConfig, error) {
	if passwords == nil {
		return nil, fmt.Errorf("password configuration is required")
	}

	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		return nil, fmt.Errorf("ADMIN_USERNAME is required but not set")
	}

	hash := os.Getenv("ADMIN_PASSWORD_HASH")
	if hash == "" {
		plain := os.Getenv("ADMIN_PASSWORD")
		if plain == "" {
			return nil, fmt.Errorf("ADMIN_PASSWORD_HASH or ADMIN_PASSWORD is required")
		}
		var err error
		hash, err = passwords.HashPassword(plain)
		if err != nil {
			return nil, err
		}
	} else if !IsHash(hash) {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH is not a bcrypt hash")
	}

	return &AdminConfig{Username: username, PasswordHash: hash, passwords: passwords}, nil
}

// Check reports whether username and password match the administrator. The
// password hash is always compared so timing does not reveal the username.
func (a *AdminConfig) Check(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.Username)) == 1
	passOK := a.passwords.VerifyPassword(password, a.PasswordHash)
	return userOK && passOK
}
