package models

import "time"

// Security audit events.
const (
	AuditRegistrationSuccess      = "REGISTRATION_SUCCESS"
	AuditRegistrationFailure      = "REGISTRATION_FAILURE"
	AuditLoginSuccess             = "LOGIN_SUCCESS"
	AuditLoginFailure             = "LOGIN_FAILURE"
	AuditAccountLocked            = "ACCOUNT_LOCKED"
	AuditTokenRefreshSuccess      = "TOKEN_REFRESH_SUCCESS"
	AuditTokenRefreshFailure      = "TOKEN_REFRESH_FAILURE"
	AuditLogout                   = "LOGOUT"
	AuditPasswordChange           = "PASSWORD_CHANGE"
	AuditAccountStatusChange      = "ACCOUNT_STATUS_CHANGE"
	AuditInvalidTokenAttempt      = "INVALID_TOKEN_ATTEMPT"
	AuditExpiredTokenAttempt      = "EXPIRED_TOKEN_ATTEMPT"
	AuditPasswordValidationFailed = "PASSWORD_VALIDATION_FAILURE"
	AuditAccessDenied             = "ACCESS_DENIED"
)

// AuditSubjectUnknown is recorded when a token is too damaged to name its subject.
const AuditSubjectUnknown = "unknown"

// SecurityEvent is a single security audit record.
type SecurityEvent struct {
	ID        string    `db:"id" json:"id"`
	Event     string    `db:"event" json:"event"`
	Subject   string    `db:"subject" json:"subject"`
	Reason    string    `db:"reason" json:"reason,omitempty"`
	IPAddress string    `db:"ip_address" json:"ipAddress"`
	RequestID string    `db:"request_id" json:"requestId,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
