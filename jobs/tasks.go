package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/bookline-hq/bookline/internal/audit"
	"github.com/bookline-hq/bookline/internal/authz"
)

const (
	// QueueAudit is the queue for audit persistence tasks.
	QueueAudit = "audit"
	// QueueDefault is the default queue for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditRecord is the task type for persisting an audit event.
	TaskTypeAuditRecord = "audit:record"
)

// NewAuditRecordTask constructs an Asynq task from an audit event.
func NewAuditRecordTask(event authz.AuditEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditRecord, data), nil
}

// AuditRecordHandler processes TaskTypeAuditRecord tasks into the store.
type AuditRecordHandler struct {
	Store  audit.Store
	Logger *slog.Logger
}

// Handle persists the audit event carried by the task.
func (h AuditRecordHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var event authz.AuditEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		if h.Logger != nil {
			h.Logger.Error("audit task payload unreadable", slog.Any("error", err))
		}
		return asynq.SkipRetry
	}
	return h.Store.Insert(ctx, audit.Entry{
		ID:            event.ID,
		UserID:        event.UserID,
		TenantID:      event.TenantID,
		Permission:    event.Permission,
		Granted:       event.Granted,
		Reason:        event.Reason,
		SecurityLevel: string(event.SecurityLevel),
		At:            event.At,
	})
}

// AuditSink enqueues audit events for the worker. It implements
// authz.AuditSink.
type AuditSink struct {
	client *asynq.Client
}

// NewAuditSink wraps an Asynq client.
func NewAuditSink(client *asynq.Client) *AuditSink {
	return &AuditSink{client: client}
}

// Record enqueues the event on the audit queue.
func (s *AuditSink) Record(ctx context.Context, event authz.AuditEvent) error {
	task, err := NewAuditRecordTask(event)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task, asynq.Queue(QueueAudit))
	return err
}
