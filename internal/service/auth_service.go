package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/auth"
	"github.com/staylink/verification-service/internal/config"
	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/repository"
)

// AuthService coordinates registration and login flows. Credentials are an
// external concern here; this keeps just enough to identify partners and operators.
type AuthService struct {
	users       repository.UserRepository
	operators   repository.OperatorRepository
	submissions *SubmissionService
	tokenMgr    *auth.TokenManager
	bcryptCost  int
	logger      *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo     repository.UserRepository
	OperatorRepo repository.OperatorRepository
	Submissions  *SubmissionService
	Logger       *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       deps.UserRepo,
		operators:   deps.OperatorRepo,
		submissions: deps.Submissions,
		tokenMgr:    auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost:  cfg.Auth.BcryptCost,
		logger:      logger,
	}
}

// RegisterUser creates a partner account together with its empty verification subject.
func (s *AuthService) RegisterUser(ctx context.Context, name, email, password string) (*domain.User, string, time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, "", time.Time{}, domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, "", time.Time{}, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	user := &domain.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", time.Time{}, err
	}
	if s.submissions != nil {
		if _, err := s.submissions.EnsurePartnerSubject(ctx, user.ID); err != nil {
			return nil, "", time.Time{}, err
		}
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID, domain.ActorTypePartner, nil)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// LoginUser authenticates a partner.
func (s *AuthService) LoginUser(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, "", time.Time{}, domain.ErrInvalidCredentials
		}
		return nil, "", time.Time{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, domain.ErrInvalidCredentials
	}
	if user.Status != domain.UserStatusActive {
		return nil, "", time.Time{}, domain.ErrForbidden
	}
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, domain.ActorTypePartner, nil)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// LoginOperator authenticates an operator and returns a role-bearing token.
func (s *AuthService) LoginOperator(ctx context.Context, email, password string) (*domain.Operator, string, time.Time, error) {
	operator, err := s.operators.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, "", time.Time{}, domain.ErrInvalidCredentials
		}
		return nil, "", time.Time{}, err
	}
	if err := auth.ComparePassword(operator.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, domain.ErrInvalidCredentials
	}
	if !operator.Active {
		return nil, "", time.Time{}, domain.ErrForbidden
	}
	token, exp, err := s.tokenMgr.GenerateToken(operator.ID, domain.ActorTypeOperator, &operator.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return operator, token, exp, nil
}

// EnsureOperator seeds an admin operator when none with email exists yet.
func (s *AuthService) EnsureOperator(ctx context.Context, cfg config.OperatorConfig) error {
	email := strings.ToLower(strings.TrimSpace(cfg.BootstrapEmail))
	if email == "" || cfg.BootstrapPassword == "" {
		return nil
	}
	if _, err := s.operators.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return err
	}

	hash, err := auth.HashPassword(cfg.BootstrapPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	operator := &domain.Operator{
		Name:         cfg.BootstrapName,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.OperatorRoleAdmin,
		Active:       true,
	}
	if err := s.operators.Create(ctx, operator); err != nil {
		return err
	}
	s.logger.Info("bootstrap operator created", zap.String("operator_id", operator.ID), zap.String("email", email))
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
