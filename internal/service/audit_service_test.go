package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/estate-auth-api/internal/models"
)

type recordingWriter struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (w *recordingWriter) Insert(ctx context.Context, event *models.SecurityEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, event)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func TestSecurityAuditLogsAndPersists(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	writer := &recordingWriter{}
	audit := NewSecurityAuditService(zap.New(core), writer, AuditConfig{Persist: true, Workers: 1, BufferSize: 8})
	audit.Start(context.Background())

	audit.Record(context.Background(), models.AuditLoginSuccess, "a@x.com", "", "10.0.0.1")
	audit.Record(context.Background(), models.AuditInvalidTokenAttempt, "", "malformed", "10.0.0.2")

	require.Eventually(t, func() bool { return writer.count() == 2 }, time.Second, 5*time.Millisecond)
	audit.Stop()

	entries := logs.FilterMessage("SECURITY_AUDIT").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "LOGIN_SUCCESS", entries[0].ContextMap()["event"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, models.AuditSubjectUnknown, entries[1].ContextMap()["user"])
	assert.Equal(t, "malformed", entries[1].ContextMap()["reason"])

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.Equal(t, "10.0.0.1", writer.events[0].IPAddress)
	assert.NotEmpty(t, writer.events[0].ID)
}

func TestSecurityAuditWithoutPersistence(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	audit := NewSecurityAuditService(zap.New(core), nil, AuditConfig{Persist: true})

	audit.Record(context.Background(), models.AuditLogout, "a@x.com", "", "")
	assert.Equal(t, 1, logs.FilterMessage("SECURITY_AUDIT").Len())

	var nilAudit *SecurityAuditService
	assert.NotPanics(t, func() {
		nilAudit.Record(context.Background(), models.AuditLogout, "a@x.com", "", "")
		nilAudit.Start(context.Background())
		nilAudit.Stop()
	})
}

func TestSecurityAuditNeverBlocksWhenStopped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	audit := NewSecurityAuditService(zap.New(core), &recordingWriter{}, AuditConfig{Persist: true, Workers: 1, BufferSize: 1})

	audit.Record(context.Background(), models.AuditLoginFailure, "a@x.com", "invalid_credentials", "")
	assert.Equal(t, 1, logs.FilterMessage("security event not persisted").Len())
}
