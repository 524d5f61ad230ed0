package service

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/estate-auth-api/internal/models"
	"github.com/noah-isme/estate-auth-api/internal/repository"
	appErrors "github.com/noah-isme/estate-auth-api/pkg/errors"
)

// CredentialStore is the durable home of user records.
// Finders return sql.ErrNoRows when nothing matches.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateRefreshToken(ctx context.Context, id string, expected, token *string, expiry *time.Time, modifiedBy string) error
	UpdatePassword(ctx context.Context, id, passwordHash, modifiedBy string) error
	UpdateStatus(ctx context.Context, id string, enabled, locked bool, modifiedBy string) error
	Delete(ctx context.Context, id string) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	BcryptCost     int
	PasswordPolicy PasswordPolicy
}

// AuthServiceParams groups the collaborators of AuthService. Throttle, Audit and Metrics are optional.
type AuthServiceParams struct {
	Store     CredentialStore
	Tokens    *TokenService
	Tracker   *AttemptTracker
	Cache     *UserCache
	Throttle  *RegistrationThrottle
	Audit     *SecurityAuditService
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    AuthConfig
}

// AuthService owns every mutation of credentials and lockout state.
// Each mutation runs under a per-email lock and invalidates the user cache once the store write returns.
type AuthService struct {
	store     CredentialStore
	tokens    *TokenService
	tracker   *AttemptTracker
	cache     *UserCache
	throttle  *RegistrationThrottle
	audit     *SecurityAuditService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	rotation  *keyedMutex
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(p AuthServiceParams) *AuthService {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Validator == nil {
		p.Validator = validator.New()
	}
	if p.Config.BcryptCost == 0 {
		p.Config.BcryptCost = bcrypt.DefaultCost
	}
	if p.Config.PasswordPolicy.MinLength <= 0 {
		p.Config.PasswordPolicy = DefaultPasswordPolicy(8)
	}
	return &AuthService{
		store:     p.Store,
		tokens:    p.Tokens,
		tracker:   p.Tracker,
		cache:     p.Cache,
		throttle:  p.Throttle,
		audit:     p.Audit,
		metrics:   p.Metrics,
		validator: p.Validator,
		logger:    p.Logger,
		config:    p.Config,
		rotation:  newKeyedMutex(),
		now:       time.Now,
	}
}

// Register creates an account and returns its first token pair.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, ip string) (*models.AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)

	if err := s.validator.Struct(req); err != nil {
		s.registrationFailed(ctx, req.Email, "validation", ip)
		return nil, validationError(err, "invalid registration payload")
	}
	if err := s.throttle.Allow(ctx, ip); err != nil {
		s.registrationFailed(ctx, req.Email, "throttled", ip)
		return nil, err
	}
	if err := s.config.PasswordPolicy.Check(req.Password); err != nil {
		s.metrics.RecordPasswordValidationFailure()
		s.audit.Record(ctx, models.AuditPasswordValidationFailed, req.Email, err.Error(), ip)
		s.registrationFailed(ctx, req.Email, "weak_password", ip)
		return nil, err
	}

	unlock := s.rotation.Lock(req.Email)
	defer unlock()

	if err := s.ensureUnique(ctx, req.Username, req.Email); err != nil {
		s.registrationFailed(ctx, req.Email, "duplicate", ip)
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		return nil, internalError(err, "failed to hash password")
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PhoneNumber:  strings.TrimSpace(req.PhoneNumber),
		PasswordHash: string(hash),
		Role:         role,
		Enabled:      true,
		Locked:       false,
		CreatedBy:    req.Email,
		ModifiedBy:   req.Email,
	}

	access, refresh, expiry, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	user.RefreshToken = &refresh
	user.RefreshTokenExpiry = &expiry

	if err := s.store.Create(ctx, user); err != nil {
		s.registrationFailed(ctx, req.Email, "store", ip)
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, &DuplicateIdentityError{Field: "email"}
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, &DuplicateIdentityError{Field: "username"}
		}
		return nil, internalError(err, "failed to create user")
	}
	s.cache.Invalidate(user.Email)

	s.metrics.RecordRegistration(ResultSuccess, "")
	s.audit.Record(ctx, models.AuditRegistrationSuccess, user.Email, "username="+user.Username, ip)
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))

	return s.response(user, access, refresh, "User registered successfully"), nil
}

// Login verifies credentials, enforces lockout and rotates the refresh token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, ip string) (*models.AuthResponse, error) {
	start := s.now()
	defer func() { s.metrics.ObserveLogin(s.now().Sub(start)) }()

	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordLogin(ResultFailure, "validation")
		return nil, validationError(err, "invalid login payload")
	}
	email := req.Email

	unlock := s.rotation.Lock(email)
	defer unlock()

	if s.tracker.IsBlocked(email) {
		s.metrics.RecordLogin(ResultFailure, "locked")
		s.audit.Record(ctx, models.AuditLoginFailure, email, "account_locked", ip)
		return nil, &AccountLockedError{RetryAfterSeconds: retrySeconds(s.tracker.RetryAfter(email))}
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, internalError(err, "failed to fetch user")
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(req.Password))
		return nil, s.loginFailed(ctx, email, ip)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, s.loginFailed(ctx, email, ip)
	}
	if !user.Enabled {
		s.metrics.RecordLogin(ResultFailure, "disabled")
		s.audit.Record(ctx, models.AuditLoginFailure, email, "account_disabled", ip)
		return nil, &AccountDisabledError{}
	}
	if user.Locked {
		s.metrics.RecordLogin(ResultFailure, "locked")
		s.audit.Record(ctx, models.AuditLoginFailure, email, "account_locked", ip)
		return nil, &AccountLockedError{}
	}

	access, refresh, err := s.rotate(ctx, user)
	if err != nil {
		return nil, err
	}
	s.tracker.LoginSucceeded(email)
	s.cache.Invalidate(email)

	s.metrics.RecordLogin(ResultSuccess, "")
	s.audit.Record(ctx, models.AuditLoginSuccess, email, "", ip)

	return s.response(user, access, refresh, "Login successful"), nil
}

// Refresh exchanges a valid, current refresh token for a new pair.
// A token already rotated out is rejected with reason mismatch.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest, ip string) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid refresh payload")
	}
	presented := req.RefreshToken

	if !s.tokens.Validate(presented) {
		return nil, s.refreshFailed(ctx, models.AuditSubjectUnknown, RefreshReasonInvalid, ip)
	}
	email, err := s.tokens.SubjectOf(presented)
	if err != nil {
		return nil, err
	}
	if !s.tokens.IsRefreshType(presented) {
		return nil, s.refreshFailed(ctx, email, RefreshReasonWrongType, ip)
	}

	unlock := s.rotation.Lock(email)
	defer unlock()

	user, err := s.load(ctx, email)
	if err != nil {
		if errors.As(err, new(*UserNotFoundError)) {
			s.metrics.RecordTokenRefresh(ResultFailure, "user_not_found")
			s.audit.Record(ctx, models.AuditTokenRefreshFailure, email, "user_not_found", ip)
		}
		return nil, err
	}
	if user.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(presented)) != 1 {
		return nil, s.refreshFailed(ctx, email, RefreshReasonMismatch, ip)
	}
	if user.RefreshTokenExpiry == nil || !user.RefreshTokenExpiry.After(s.now()) {
		return nil, s.refreshFailed(ctx, email, RefreshReasonExpired, ip)
	}
	if !user.Enabled {
		return nil, &AccountDisabledError{}
	}
	if user.Locked {
		return nil, &AccountLockedError{}
	}

	access, refresh, err := s.rotate(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenConflict) {
			return nil, s.refreshFailed(ctx, email, RefreshReasonMismatch, ip)
		}
		return nil, err
	}
	s.cache.Invalidate(email)

	s.metrics.RecordTokenRefresh(ResultSuccess, "")
	s.audit.Record(ctx, models.AuditTokenRefreshSuccess, email, "", ip)

	return s.response(user, access, refresh, "Token refreshed successfully"), nil
}

// Logout revokes the stored refresh token for email.
func (s *AuthService) Logout(ctx context.Context, email, ip string) error {
	email = normalizeEmail(email)

	unlock := s.rotation.Lock(email)
	defer unlock()

	user, err := s.load(ctx, email)
	if err != nil {
		return err
	}
	err = s.store.UpdateRefreshToken(ctx, user.ID, user.RefreshToken, nil, nil, email)
	if errors.Is(err, repository.ErrRefreshTokenConflict) {
		// another instance rotated the token since the read; clear whatever is stored now
		if user, err = s.load(ctx, email); err != nil {
			return err
		}
		err = s.store.UpdateRefreshToken(ctx, user.ID, user.RefreshToken, nil, nil, email)
	}
	if err != nil {
		return internalError(err, "failed to revoke refresh token")
	}
	s.cache.Invalidate(email)

	s.metrics.RecordLogout()
	s.audit.Record(ctx, models.AuditLogout, email, "", ip)
	s.logger.Info("user logged out", zap.String("user_id", user.ID))
	return nil
}

// ChangePassword replaces the password of email and revokes its refresh token.
func (s *AuthService) ChangePassword(ctx context.Context, email string, req models.ChangePasswordRequest, ip string) error {
	email = normalizeEmail(email)
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid password change payload")
	}

	unlock := s.rotation.Lock(email)
	defer unlock()

	user, err := s.load(ctx, email)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		s.audit.Record(ctx, models.AuditPasswordChange, email, "invalid_current_password", ip)
		return &InvalidCredentialsError{}
	}
	if err := s.config.PasswordPolicy.Check(req.NewPassword); err != nil {
		s.metrics.RecordPasswordValidationFailure()
		s.audit.Record(ctx, models.AuditPasswordValidationFailed, email, err.Error(), ip)
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.config.BcryptCost)
	if err != nil {
		return internalError(err, "failed to hash password")
	}
	if err := s.store.UpdatePassword(ctx, user.ID, string(hash), email); err != nil {
		return internalError(err, "failed to update password")
	}
	s.cache.Invalidate(email)

	s.audit.Record(ctx, models.AuditPasswordChange, email, "", ip)
	return nil
}

// SetAccountStatus lets an administrator enable, disable, lock or unlock an account.
func (s *AuthService) SetAccountStatus(ctx context.Context, actor *models.Principal, req models.AccountStatusRequest, ip string) (*models.User, error) {
	if err := s.requireAdmin(ctx, actor, "account_status", ip); err != nil {
		return nil, err
	}
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid account status payload")
	}
	email := req.Email

	unlock := s.rotation.Lock(email)
	defer unlock()

	user, err := s.load(ctx, email)
	if err != nil {
		return nil, err
	}
	enabled, locked := *req.Enabled, *req.Locked
	if err := s.store.UpdateStatus(ctx, user.ID, enabled, locked, actor.Email); err != nil {
		return nil, internalError(err, "failed to update account status")
	}
	if !locked {
		s.tracker.LoginSucceeded(email)
	}
	s.cache.Invalidate(email)

	s.audit.Record(ctx, models.AuditAccountStatusChange, email, fmt.Sprintf("enabled=%t locked=%t by=%s", enabled, locked, actor.Email), ip)

	user.Enabled = enabled
	user.Locked = locked
	user.ModifiedBy = actor.Email
	if !enabled || locked {
		user.RefreshToken = nil
		user.RefreshTokenExpiry = nil
	}
	return user, nil
}

// DeleteAccount removes an account. Administrators only.
func (s *AuthService) DeleteAccount(ctx context.Context, actor *models.Principal, email, ip string) error {
	if err := s.requireAdmin(ctx, actor, "account_delete", ip); err != nil {
		return err
	}
	email = normalizeEmail(email)

	unlock := s.rotation.Lock(email)
	defer unlock()

	user, err := s.load(ctx, email)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, user.ID); err != nil {
		return internalError(err, "failed to delete user")
	}
	s.tracker.LoginSucceeded(email)
	s.cache.Invalidate(email)

	s.audit.Record(ctx, models.AuditAccountStatusChange, email, "deleted by="+actor.Email, ip)
	return nil
}

func (s *AuthService) ensureUnique(ctx context.Context, username, email string) error {
	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return &DuplicateIdentityError{Field: "username"}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return internalError(err, "failed to check username")
	}
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return &DuplicateIdentityError{Field: "email"}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return internalError(err, "failed to check email")
	}
	return nil
}

// load reads straight from the store; callers hold the rotation lock.
func (s *AuthService) load(ctx context.Context, email string) (*models.User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &UserNotFoundError{Email: email}
		}
		return nil, internalError(err, "failed to fetch user")
	}
	if user == nil {
		return nil, &UserNotFoundError{Email: email}
	}
	return user, nil
}

// rotate issues a new pair and swaps it in only if the stored token is still the one we read.
func (s *AuthService) rotate(ctx context.Context, user *models.User) (string, string, error) {
	access, refresh, expiry, err := s.issuePair(user)
	if err != nil {
		return "", "", err
	}
	if err := s.store.UpdateRefreshToken(ctx, user.ID, user.RefreshToken, &refresh, &expiry, user.Email); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenConflict) {
			return "", "", err
		}
		return "", "", internalError(err, "failed to persist refresh token")
	}
	user.RefreshToken = &refresh
	user.RefreshTokenExpiry = &expiry
	return access, refresh, nil
}

func (s *AuthService) issuePair(user *models.User) (string, string, time.Time, error) {
	start := s.now()
	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return "", "", time.Time{}, internalError(err, "failed to create access token")
	}
	refresh, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return "", "", time.Time{}, internalError(err, "failed to create refresh token")
	}
	s.metrics.ObserveTokenGeneration(s.now().Sub(start))
	return access, refresh, s.now().UTC().Add(s.tokens.RefreshTTL()), nil
}

func (s *AuthService) response(user *models.User, access, refresh, message string) *models.AuthResponse {
	return &models.AuthResponse{
		AccessToken:      access,
		RefreshToken:     refresh,
		Username:         user.Username,
		Email:            user.Email,
		Role:             user.Role,
		Message:          message,
		ExpiresIn:        s.tokens.AccessTTL().Milliseconds(),
		RefreshExpiresIn: s.tokens.RefreshTTL().Milliseconds(),
	}
}

func (s *AuthService) loginFailed(ctx context.Context, email, ip string) error {
	lockedNow := s.tracker.LoginFailed(email)
	s.metrics.RecordFailedAttempt()
	s.metrics.RecordLogin(ResultFailure, "invalid_credentials")
	s.audit.Record(ctx, models.AuditLoginFailure, email, "invalid_credentials", ip)
	if lockedNow {
		s.metrics.RecordAccountLocked()
		s.audit.Record(ctx, models.AuditAccountLocked, email, fmt.Sprintf("attempts=%d", s.tracker.Attempts(email)), ip)
		s.logger.Warn("account locked after repeated failures", zap.String("email", email))
	}
	return &InvalidCredentialsError{}
}

func (s *AuthService) refreshFailed(ctx context.Context, email, reason, ip string) error {
	s.metrics.RecordTokenRefresh(ResultFailure, reason)
	s.audit.Record(ctx, models.AuditTokenRefreshFailure, email, reason, ip)
	return &InvalidRefreshTokenError{Reason: reason}
}

func (s *AuthService) registrationFailed(ctx context.Context, email, reason, ip string) {
	s.metrics.RecordRegistration(ResultFailure, reason)
	s.audit.Record(ctx, models.AuditRegistrationFailure, email, reason, ip)
}

func (s *AuthService) requireAdmin(ctx context.Context, actor *models.Principal, resource, ip string) error {
	if actor != nil && actor.Role == models.RoleAdmin {
		return nil
	}
	subject := ""
	if actor != nil {
		subject = actor.Email
	}
	s.audit.Record(ctx, models.AuditAccessDenied, subject, resource, ip)
	return appErrors.Clone(appErrors.ErrForbidden, "")
}

// dummy returns a hash compared against when the email is unknown, so timing does not reveal registered emails.
func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.config.BcryptCost)
		if err != nil {
			s.logger.Error("failed to build dummy hash", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
