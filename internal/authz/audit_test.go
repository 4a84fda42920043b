package authz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	events  []AuditEvent
	recErr  error
	entered chan struct{}
	release chan struct{}
}

func (s *captureSink) Record(ctx context.Context, event AuditEvent) error {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return s.recErr
}

func (s *captureSink) all() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

func TestEmitterForwardsToSink(t *testing.T) {
	sink := &captureSink{}
	emitter := NewEmitter(sink, testLogger)

	emitter.Emit(AuditEvent{UserID: "u1", TenantID: "t1", Permission: PermBookingReadOwn, Granted: true})
	emitter.Close()

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].UserID)
	assert.NotEmpty(t, events[0].ID, "emitter assigns an ID")
	assert.False(t, events[0].At.IsZero(), "emitter assigns a timestamp")
}

func TestEmitterPreservesCallerIdentity(t *testing.T) {
	sink := &captureSink{}
	emitter := NewEmitter(sink, testLogger)

	at := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	emitter.Emit(AuditEvent{ID: "evt-1", At: at, UserID: "u1"})
	emitter.Close()

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, at, events[0].At)
}

func TestEmitterSwallowsSinkFailures(t *testing.T) {
	sink := &captureSink{recErr: errors.New("queue down")}
	emitter := NewEmitter(sink, testLogger)

	emitter.Emit(AuditEvent{UserID: "u1"})
	emitter.Emit(AuditEvent{UserID: "u2"})
	emitter.Close()

	// Both events reached the sink despite the failures.
	assert.Len(t, sink.all(), 2)
}

func TestEmitterDropsWhenQueueFull(t *testing.T) {
	sink := &captureSink{
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	emitter := NewEmitter(sink, testLogger, WithAuditQueueSize(1))

	// First event occupies the forwarding loop inside the sink.
	emitter.Emit(AuditEvent{ID: "evt-1"})
	<-sink.entered

	// Second event fills the queue, third has nowhere to go.
	emitter.Emit(AuditEvent{ID: "evt-2"})
	emitter.Emit(AuditEvent{ID: "evt-3"})

	close(sink.release)
	emitter.Close()

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "evt-2", events[1].ID)
}

func TestEmitterCloseIsIdempotent(t *testing.T) {
	emitter := NewEmitter(&captureSink{}, testLogger)
	emitter.Close()
	emitter.Close()
}
