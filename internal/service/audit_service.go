package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/estate-auth-api/internal/models"
	"github.com/noah-isme/estate-auth-api/pkg/jobs"
	"github.com/noah-isme/estate-auth-api/pkg/middleware/requestid"
)

const auditJobType = "security_event"

type securityEventWriter interface {
	Insert(ctx context.Context, event *models.SecurityEvent) error
}

// AuditConfig configures asynchronous persistence of security events.
type AuditConfig struct {
	Persist    bool
	Workers    int
	BufferSize int
}

// SecurityAuditService logs security events and persists them in the background.
// Recording never blocks and never fails the calling operation.
type SecurityAuditService struct {
	logger *zap.Logger
	queue  *jobs.Queue
	now    func() time.Time
}

// NewSecurityAuditService constructs the audit sink. A nil writer disables persistence.
func NewSecurityAuditService(logger *zap.Logger, writer securityEventWriter, cfg AuditConfig) *SecurityAuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &SecurityAuditService{logger: logger.Named("security_audit"), now: time.Now}
	if writer == nil || !cfg.Persist {
		return svc
	}
	svc.queue = jobs.NewQueue("security-audit", func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(*models.SecurityEvent)
		if !ok {
			return errors.New("unexpected audit payload")
		}
		return writer.Insert(ctx, event)
	}, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		Logger:     logger,
	})
	return svc
}

// Start launches the persistence workers.
func (s *SecurityAuditService) Start(ctx context.Context) {
	if s == nil || s.queue == nil {
		return
	}
	s.queue.Start(ctx)
}

// Stop flushes buffered events and stops the workers.
func (s *SecurityAuditService) Stop() {
	if s == nil || s.queue == nil {
		return
	}
	s.queue.Stop()
}

// Record emits one security event.
func (s *SecurityAuditService) Record(ctx context.Context, event, subject, reason, ip string) {
	if s == nil {
		return
	}
	if subject == "" {
		subject = models.AuditSubjectUnknown
	}
	record := &models.SecurityEvent{
		ID:        uuid.NewString(),
		Event:     event,
		Subject:   subject,
		Reason:    reason,
		IPAddress: ip,
		RequestID: requestid.FromContext(ctx),
		CreatedAt: s.now().UTC(),
	}

	fields := []zap.Field{
		zap.String("event", record.Event),
		zap.String("user", record.Subject),
		zap.String("ip", record.IPAddress),
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	if record.RequestID != "" {
		fields = append(fields, zap.String("request_id", record.RequestID))
	}
	if ce := s.logger.Check(auditLevel(event), "SECURITY_AUDIT"); ce != nil {
		ce.Write(fields...)
	}

	if s.queue == nil {
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: record.ID, Type: auditJobType, Payload: record}); err != nil {
		s.logger.Warn("security event not persisted", zap.String("event", event), zap.Error(err))
	}
}

func auditLevel(event string) zapcore.Level {
	switch event {
	case models.AuditRegistrationSuccess, models.AuditLoginSuccess, models.AuditTokenRefreshSuccess,
		models.AuditLogout, models.AuditPasswordChange, models.AuditAccountStatusChange:
		return zapcore.InfoLevel
	default:
		return zapcore.WarnLevel
	}
}
