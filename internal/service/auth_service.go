package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/access-ticket-bot/internal/auth"
	"github.com/spec-kit/access-ticket-bot/internal/config"
	apperrors "github.com/spec-kit/access-ticket-bot/pkg/util/errorutil"
)

// AuthService issues console tokens for the configured operator.
type AuthService struct {
	tokenMgr     *auth.TokenManager
	username     string
	passwordHash string
	logger       *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, tokens *auth.TokenManager, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		tokenMgr:     tokens,
		username:     cfg.OperatorUsername,
		passwordHash: cfg.OperatorPasswordHash,
		logger:       logger.Named("auth"),
	}
}

// LoginOperator checks the credentials and returns a signed token.
func (s *AuthService) LoginOperator(_ context.Context, username, password string) (string, time.Time, error) {
	if err := auth.VerifyOperator(s.username, s.passwordHash, username, password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Warn("operator login rejected", zap.String("username", username))
			return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return "", time.Time{}, err
	}
	token, exp, err := s.tokenMgr.GenerateToken(username)
	if err != nil {
		return "", time.Time{}, err
	}
	s.logger.Info("operator logged in", zap.String("username", username))
	return token, exp, nil
}
