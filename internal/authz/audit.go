package authz

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookline-hq/bookline/internal/observability"
)

// AuditEvent is the record forwarded to the audit sink for every decision
// whose operation requires auditing.
type AuditEvent struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	TenantID      string        `json:"tenant_id"`
	Permission    string        `json:"permission"`
	Granted       bool          `json:"granted"`
	Reason        string        `json:"reason,omitempty"`
	SecurityLevel SecurityLevel `json:"security_level"`
	At            time.Time     `json:"at"`
}

// AuditSink receives audit events. Implementations live outside the
// engine: an asynq queue in production, slog in development.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditEmitter accepts events from the decision path.
type AuditEmitter interface {
	Emit(event AuditEvent)
}

const defaultAuditQueueSize = 256

// Emitter forwards audit events to a sink without blocking the decision
// path. Sink failures are logged and swallowed; when the queue is full
// events are dropped and counted rather than applying backpressure.
type Emitter struct {
	sink    AuditSink
	queue   chan AuditEvent
	logger  *slog.Logger
	metrics *observability.Metrics

	closeOnce sync.Once
	done      chan struct{}
}

// EmitterOption customises an Emitter.
type EmitterOption func(*Emitter)

// WithAuditQueueSize overrides the bounded queue length.
func WithAuditQueueSize(n int) EmitterOption {
	return func(e *Emitter) {
		if n > 0 {
			e.queue = make(chan AuditEvent, n)
		}
	}
}

// WithEmitterMetrics wires drop instrumentation.
func WithEmitterMetrics(m *observability.Metrics) EmitterOption {
	return func(e *Emitter) { e.metrics = m }
}

// NewEmitter constructs an Emitter and starts its forwarding loop.
func NewEmitter(sink AuditSink, logger *slog.Logger, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		sink:   sink,
		queue:  make(chan AuditEvent, defaultAuditQueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

// Emit enqueues the event, assigning an ID and timestamp when absent.
// Never blocks the caller.
func (e *Emitter) Emit(event AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	select {
	case e.queue <- event:
	default:
		e.metrics.RecordAuditDrop()
		e.logger.Warn("audit queue full, event dropped",
			slog.String("event_id", event.ID),
			slog.String("user_id", event.UserID),
			slog.String("permission", event.Permission))
	}
}

// Close drains the queue and stops the forwarding loop.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		close(e.queue)
		<-e.done
	})
}

func (e *Emitter) run() {
	defer close(e.done)
	for event := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.sink.Record(ctx, event); err != nil {
			e.logger.Warn("audit sink record failed",
				slog.String("event_id", event.ID), slog.Any("error", err))
		}
		cancel()
	}
}

// SlogSink records audit events to the process log. Development use only.
type SlogSink struct {
	Logger *slog.Logger
}

// Record writes the event as a structured log line.
func (s SlogSink) Record(ctx context.Context, event AuditEvent) error {
	s.Logger.Info("audit event",
		slog.String("event_id", event.ID),
		slog.String("user_id", event.UserID),
		slog.String("tenant_id", event.TenantID),
		slog.String("permission", event.Permission),
		slog.Bool("granted", event.Granted),
		slog.String("reason", event.Reason),
		slog.String("security_level", string(event.SecurityLevel)))
	return nil
}
