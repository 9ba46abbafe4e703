package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

const (
	auditEventRegisterSuccess   = "register_success"
	auditEventRegisterDuplicate = "register_duplicate"
	auditEventLoginSuccess      = "login_success"
	auditEventLoginFailure      = "login_failure"
	auditEventLoginLocked       = "login_locked"
	auditEventRefreshSuccess    = "refresh_success"
	auditEventRefreshInvalid    = "refresh_invalid"
	auditEventRefreshReuse      = "refresh_reuse_detected"
	auditEventRevoke            = "session_revoked"
	auditEventKeyRotated        = "signing_key_rotated"
)

// AuditEvent is a single security-relevant occurrence. Email is always the
// masked form; raw addresses never enter the audit stream.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	PlayerID  string            `json:"player_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	Agent     string            `json:"agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the engine's dispatcher goroutine.
// Implementations must be safe for concurrent use.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit implements AuditSink.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel for consumption by the
// embedding application.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink returns a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit implements AuditSink.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receive side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to an io.Writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a JSONWriterSink over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit implements AuditSink.
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
