package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"familyportal-backend/shared/database/models"
	"familyportal-backend/shared/utils/ratelimit"
	utils "familyportal-backend/shared/utils/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLockedOut          = errors.New("too many failed attempts")
	ErrUserNotFound       = errors.New("user not found")
)

// LoginResult is returned on a successful login
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// LoginError carries the gate status alongside a refused login
type LoginError struct {
	Err    error
	Status ratelimit.Status
}

func (e *LoginError) Error() string { return e.Err.Error() }
func (e *LoginError) Unwrap() error { return e.Err }

type LoginService struct {
	db      *gorm.DB
	limiter *ratelimit.Limiter
	gate    GateSettings
	log     *zap.Logger
}

func NewLoginService(db *gorm.DB, limiter *ratelimit.Limiter, gate GateSettings, log *zap.Logger) *LoginService {
	return &LoginService{db: db, limiter: limiter, gate: gate, log: log}
}

// Login authenticates a member. Unknown email, inactive account and wrong
// password all count as the same failure.
func (s *LoginService) Login(ctx context.Context, ip, email, password string) (*LoginResult, error) {
	status, err := s.limiter.Check(ctx, ip, ratelimit.ActionLogin, s.gate.MaxAttempts)
	if err != nil {
		return nil, err
	}
	if status.Blocked() {
		return nil, &LoginError{Err: ErrLockedOut, Status: status}
	}

	user, ok, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if !ok {
		status, err = s.limiter.RecordFailedAttempt(ctx, ip, ratelimit.ActionLogin, s.gate.MaxAttempts, s.gate.BlockMinutes)
		if err != nil {
			return nil, err
		}
		s.log.Info("login failed", zap.String("ip", ip), zap.Int("attempts_left", status.AttemptsLeft))
		if status.Blocked() {
			return nil, &LoginError{Err: ErrLockedOut, Status: status}
		}
		return nil, &LoginError{Err: ErrInvalidCredentials, Status: status}
	}

	if err := s.limiter.ResetAttempts(ctx, ip, ratelimit.ActionLogin); err != nil {
		return nil, err
	}

	token, expiresAt, err := utils.GenerateJWT(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	s.log.Info("user logged in", zap.String("user_id", user.ID.String()))
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *LoginService) authenticate(ctx context.Context, email, password string) (*models.User, bool, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load user: %w", err)
	}

	if user.Status != models.UserStatusActive {
		return nil, false, nil
	}
	if !utils.CheckPasswordHash(password, user.Password) {
		return nil, false, nil
	}
	return &user, true, nil
}

// GetUser loads the account behind a user token
func (s *LoginService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
