// Package auth authenticates clinic staff against stored credentials and
// issues the access tokens consumed by the API middleware.
package auth

import (
	"context"
	"time"

	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/internal/repository"
	pkgauth "github.com/pawtrack/pawtrack-api/pkg/auth"
	"github.com/pawtrack/pawtrack-api/pkg/errors"
	"github.com/pawtrack/pawtrack-api/pkg/security"
)

type Service struct {
	users  repository.UserRepository
	hasher security.PasswordHasher
	tokens pkgauth.JWTService
}

func NewService(users repository.UserRepository, hasher security.PasswordHasher, tokens pkgauth.JWTService) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// Login verifies credentials and returns a signed access token. Failures are
// reported uniformly so callers cannot distinguish a wrong password from an
// unknown email.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, errors.Unauthorized(err)
	}
	if user.Status != model.UserStatusActive {
		return nil, errors.Unauthorized(nil)
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, errors.Unauthorized(err)
	}

	token, expiresAt, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, errors.Internal(err)
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, errors.Internal(err)
	}

	return &model.TokenResponse{AccessToken: token, ExpiresAt: expiresAt}, nil
}

// Validate parses an access token into claims.
func (s *Service) Validate(token string) (*model.TokenClaims, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, errors.Unauthorized(err)
	}
	return claims, nil
}
