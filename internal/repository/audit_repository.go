package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/estate-auth-api/internal/models"
)

// AuditRepository persists security audit events.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert stores a single security event.
func (r *AuditRepository) Insert(ctx context.Context, event *models.SecurityEvent) error {
	const query = `INSERT INTO audit_logs (id, event, subject, reason, ip_address, request_id, created_at) VALUES (:id, :event, :subject, :reason, :ip_address, :request_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListBySubject returns the most recent events for a subject.
func (r *AuditRepository) ListBySubject(ctx context.Context, subject string, limit int) ([]models.SecurityEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, event, subject, reason, ip_address, request_id, created_at FROM audit_logs WHERE subject = $1 ORDER BY created_at DESC LIMIT $2`
	var events []models.SecurityEvent
	if err := r.db.SelectContext(ctx, &events, query, subject, limit); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return events, nil
}
