package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

// Coder is implemented by domain errors that know their boundary representation.
type Coder interface {
	AppError() *Error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials  = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInvalidRefreshToken = New("INVALID_REFRESH_TOKEN", http.StatusUnauthorized, "invalid refresh token")
	ErrAccountLocked       = New("ACCOUNT_LOCKED", http.StatusForbidden, "account is locked")
	ErrAccountDisabled     = New("ACCOUNT_DISABLED", http.StatusForbidden, "account is disabled")
	ErrUserAlreadyExists   = New("USER_ALREADY_EXISTS", http.StatusConflict, "user already exists")
	ErrWeakPassword        = New("WEAK_PASSWORD", http.StatusBadRequest, "password does not satisfy the password policy")
	ErrUserNotFound        = New("USER_NOT_FOUND", http.StatusNotFound, "user not found")
	ErrTokenParse          = New("TOKEN_PARSE_ERROR", http.StatusUnauthorized, "token could not be parsed")
	ErrForbidden           = New("ACCESS_DENIED", http.StatusForbidden, "you don't have permission to access this resource")
	ErrUnauthorized        = New("UNAUTHORIZED_ACCESS", http.StatusUnauthorized, "authentication required")
	ErrTooManyRequests     = New("TOO_MANY_REQUESTS", http.StatusTooManyRequests, "too many requests")
	ErrValidation          = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal            = New("INTERNAL_SERVER_ERROR", http.StatusInternalServerError, "an unexpected error occurred, please try again later")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var coder Coder
	if errors.As(err, &coder) {
		if appErr := coder.AppError(); appErr != nil {
			return appErr
		}
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
