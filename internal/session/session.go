// Package session provides the admin session: sign-in against the configured
// credentials, token validation and sign-out.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/portfolio-admin/internal/config"
	"github.com/jonathan/portfolio-admin/internal/types"
)

// InvalidCredentialsMessage is shown to the user after a failed sign-in.
const InvalidCredentialsMessage = "Invalid credentials. Please try again."

// ErrInvalidCredentials is returned by Login for a wrong username or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidToken is returned for missing, malformed, expired or revoked tokens.
var ErrInvalidToken = errors.New("invalid session token")

// Provider is the session context handed to the HTTP layer.
type Provider struct {
	admin  *config.AdminConfig
	tokens *JWTService
	logger *zap.Logger

	mu sync.Mutex
	// revoked maps a signed-out jti to the token expiry.
	revoked map[string]time.Time
}

// NewProvider creates a session provider.
func NewProvider(admin *config.AdminConfig, tokens *JWTService, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		admin:   admin,
		tokens:  tokens,
		logger:  logger,
		revoked: map[string]time.Time{},
	}
}

// Login checks the credentials and issues a session token.
func (p *Provider) Login(ctx context.Context, username, password string) (*types.LoginResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := types.LoginRequest{Username: username, Password: password}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !p.admin.Check(req.Username, req.Password) {
		p.logger.Warn("sign-in rejected", zap.String("username", req.Username))
		return nil, ErrInvalidCredentials
	}

	token, claims, err := p.tokens.GenerateToken(req.Username)
	if err != nil {
		return nil, err
	}
	p.logger.Info("signed in", zap.String("username", req.Username), zap.String("session", claims.ID))
	return &types.LoginResponse{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout revokes the session of token until it would have expired.
func (p *Provider) Logout(token string) error {
	claims, err := p.tokens.ValidateToken(token)
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneLocked()
	p.revoked[claims.ID] = claims.ExpiresAt.Time
	p.logger.Info("signed out", zap.String("session", claims.ID))
	return nil
}

// Authenticate validates token and returns its claims.
func (p *Provider) Authenticate(token string) (*Claims, error) {
	claims, err := p.tokens.ValidateToken(token)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, revoked := p.revoked[claims.ID]; revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IsAuthenticated reports whether token belongs to a live session.
func (p *Provider) IsAuthenticated(token string) bool {
	_, err := p.Authenticate(token)
	return err == nil
}

func (p *Provider) pruneLocked() {
	now := p.tokens.now()
	for id, exp := range p.revoked {
		if now.After(exp) {
			delete(p.revoked, id)
		}
	}
}

// Subject returns the username of the live session named by token.
func (p *Provider) Subject(token string) (string, error) {
	claims, err := p.Authenticate(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
