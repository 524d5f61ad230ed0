package service

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	appErrors "github.com/noah-isme/estate-auth-api/pkg/errors"
)

// Refresh rejection reasons.
const (
	RefreshReasonInvalid   = "invalid"
	RefreshReasonWrongType = "wrong_type"
	RefreshReasonMismatch  = "mismatch"
	RefreshReasonExpired   = "expired"
)

// WeakPasswordError lists every policy rule the password broke.
type WeakPasswordError struct {
	Reasons []string
}

func (e *WeakPasswordError) Error() string {
	return "password does not meet requirements: " + strings.Join(e.Reasons, ", ")
}

// AppError implements appErrors.Coder.
func (e *WeakPasswordError) AppError() *appErrors.Error {
	return appErrors.Clone(appErrors.ErrWeakPassword, e.Error())
}

// DuplicateIdentityError reports a taken email or username.
type DuplicateIdentityError struct {
	Field string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("%s is already taken", e.Field)
}

// AppError implements appErrors.Coder.
func (e *DuplicateIdentityError) AppError() *appErrors.Error {
	return appErrors.Clone(appErrors.ErrUserAlreadyExists, e.Error())
}

// InvalidCredentialsError never says which half of the credentials was wrong.
type InvalidCredentialsError struct{}

func (e *InvalidCredentialsError) Error() string { return "invalid email or password" }

// AppError implements appErrors.Coder.
func (e *InvalidCredentialsError) AppError() *appErrors.Error {
	return appErrors.Clone(appErrors.ErrInvalidCredentials, "")
}

// AccountDisabledError is returned for accounts with enabled=false.
type AccountDisabledError struct{}

func (e *AccountDisabledError) Error() string { return "account is disabled" }

// AppError implements appErrors.Coder.
func (e *AccountDisabledError) AppError() *appErrors.Error {
	return appErrors.Clone(appErrors.ErrAccountDisabled, "")
}

// AccountLockedError covers both tracker lockouts and administratively locked accounts.
type AccountLockedError struct {
	RetryAfterSeconds int64
}

func (e *AccountLockedError) Error() string {
	if e.RetryAfterSeconds > 0 {
		return fmt.Sprintf("account is locked, retry after %d seconds", e.RetryAfterSeconds)
	}
	return "account is locked"
}

// AppError implements appErrors.Coder.
func (e *AccountLockedError) AppError() *appErrors.Error {
	return appErrors.Clone(appErrors.ErrAccountLocked, e.Error())
}

// InvalidRefreshTokenError carries the rejection reason for metrics and audit.
type InvalidRefreshTokenError struct {
	Reason string
}

func (e *InvalidRefreshTokenError) Error() string {
	return "invalid refresh token: " + e.Reason
}

// AppError implements appErrors.Coder. The reason is not exposed to clients.
func (e *InvalidRefreshTokenError) AppError() *appErrors.Error {
	return appErrors.Clone(appErrors.ErrInvalidRefreshToken, "")
}

// UserNotFoundError is returned when a token or request names a missing user.
type UserNotFoundError struct {
	Email string
}

func (e *UserNotFoundError) Error() string { return "user not found" }

// AppError implements appErrors.Coder.
func (e *UserNotFoundError) AppError() *appErrors.Error {
	return appErrors.Clone(appErrors.ErrUserNotFound, "")
}

// TokenParseError wraps a failure to read token claims.
type TokenParseError struct {
	Err error
}

func (e *TokenParseError) Error() string {
	if e.Err == nil {
		return "failed to parse token"
	}
	return "failed to parse token: " + e.Err.Error()
}

func (e *TokenParseError) Unwrap() error { return e.Err }

// AppError implements appErrors.Coder.
func (e *TokenParseError) AppError() *appErrors.Error {
	return appErrors.Clone(appErrors.ErrTokenParse, "")
}

func internalError(err error, message string) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func validationError(err error, message string) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}

// RateLimitedError is returned when a client exceeded a request window.
type RateLimitedError struct {
	RetryAfterSeconds int64
}

func (e *RateLimitedError) Error() string { return "too many requests" }

// AppError implements appErrors.Coder.
func (e *RateLimitedError) AppError() *appErrors.Error {
	return appErrors.Clone(appErrors.ErrTooManyRequests, "too many registration attempts, try again later")
}

func retrySeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(math.Ceil(d.Seconds()))
	if secs == 0 {
		secs = 1
	}
	return secs
}
