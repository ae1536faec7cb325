package auth

import (
	"context"
	"crypto/subtle"
	stderrors "errors"
	"sync"
	"time"

	"github.com/jwalitptl/deepmed-api/internal/config"
	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/pkg/auth"
	"github.com/jwalitptl/deepmed-api/pkg/errors"
	"github.com/jwalitptl/deepmed-api/pkg/logger"
	"github.com/jwalitptl/deepmed-api/pkg/security"
)

var (
	ErrInvalidCredentials = stderrors.New("invalid credentials")
	ErrAccountLocked      = stderrors.New("account is locked, please try again later")
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
)

type loginAttempts struct {
	count       int
	lastAttempt time.Time
}

// Service authenticates the configured administrator.
type Service struct {
	username     string
	passwordHash string
	hasher       security.PasswordHasher
	jwtSvc       auth.JWTService
	logger       *logger.Logger

	// failures counts wrong passwords for the configured username. No other
	// identity can log in, so no other name is tracked.
	mu       sync.Mutex
	failures loginAttempts
	now      func() time.Time
}

func NewService(cfg config.AdminConfig, hasher security.PasswordHasher, jwtSvc auth.JWTService, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
		hasher:       hasher,
		jwtSvc:       jwtSvc,
		logger:       log,
		now:          time.Now,
	}
}

func (s *Service) Login(ctx context.Context, username, password string) (*model.TokenResponse, error) {
	log := s.logger.WithContext(ctx)

	if s.locked() {
		log.Warn(ErrAccountLocked, "Admin login rejected", "username", username)
		return nil, &errors.AppError{Code: errors.ErrUnauthorized, Message: ErrAccountLocked.Error(), Err: ErrAccountLocked}
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passErr := s.hasher.Compare(s.passwordHash, password)
	if !userOK || passErr != nil {
		if userOK {
			s.recordFailure()
		}
		log.Warn(ErrInvalidCredentials, "Admin login failed", "username", username)
		return nil, &errors.AppError{Code: errors.ErrUnauthorized, Message: ErrInvalidCredentials.Error(), Err: ErrInvalidCredentials}
	}
	s.resetFailures()

	token, expiresAt, err := s.jwtSvc.GenerateAccessToken(s.username, model.RoleAdmin)
	if err != nil {
		return nil, errors.Internal(err)
	}

	log.Info("Admin logged in", "username", username)
	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// ValidateToken accepts only unexpired admin tokens.
func (s *Service) ValidateToken(_ context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, errors.Unauthorized(err)
	}
	if claims.Role != model.RoleAdmin {
		return nil, errors.Forbidden("admin role required", nil)
	}
	return claims, nil
}

func (s *Service) locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures.count < maxLoginAttempts {
		return false
	}
	if s.now().Sub(s.failures.lastAttempt) >= lockoutDuration {
		s.failures = loginAttempts{}
		return false
	}
	return true
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures.count++
	s.failures.lastAttempt = s.now()
}

func (s *Service) resetFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = loginAttempts{}
}
