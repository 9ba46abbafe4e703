package authcore

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nextrealm/authcore/docstore"
)

func newAuditedEngine(t *testing.T, sink AuditSink) *Engine {
	t.Helper()

	cfg := defaultConfig()
	cfg.Password = testPasswordParams()

	engine, err := New().
		WithConfig(cfg).
		WithStore(docstore.NewMemory(nil)).
		WithClock(clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))).
		WithMasterKey(newTestMasterKey(t)).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return engine
}

func TestAuditEventsMaskEmail(t *testing.T) {
	sink := NewChannelSink(64)
	e := newAuditedEngine(t, sink)
	ctx := context.Background()

	if _, err := e.Register(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := e.Login(ctx, testEmail, "WrongPass99"); err == nil {
		t.Fatal("expected login failure")
	}
	e.Close()

	var sawRegister, sawFailure bool
	for {
		select {
		case event := <-sink.Events():
			switch event.EventType {
			case auditEventRegisterSuccess:
				sawRegister = true
				if event.Email != "al***@example.com" {
					t.Fatalf("unmasked email in audit event: %q", event.Email)
				}
				if !event.Success || event.PlayerID == "" {
					t.Fatalf("malformed register event: %+v", event)
				}
			case auditEventLoginFailure:
				sawFailure = true
				if event.Success {
					t.Fatal("failure event marked successful")
				}
				if event.Metadata["reason"] != "password_mismatch" {
					t.Fatalf("unexpected failure reason: %v", event.Metadata)
				}
			}
		default:
			if !sawRegister || !sawFailure {
				t.Fatalf("missing events: register=%v failure=%v", sawRegister, sawFailure)
			}
			return
		}
	}
}

func TestJSONWriterSinkEmitsOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	e := newAuditedEngine(t, sink)
	ctx := context.Background()

	if _, err := e.Register(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	e.Close()

	out := strings.TrimSpace(buf.String())
	if out == "" {
		t.Fatal("no audit output written")
	}
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			t.Fatalf("line is not a JSON object: %q", line)
		}
		if strings.Contains(line, testEmail) {
			t.Fatalf("raw email leaked into audit log: %q", line)
		}
	}
}

func TestAuditDropCounting(t *testing.T) {
	cfg := AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}

	block := make(chan struct{})
	d := newAuditDispatcher(cfg, sinkFunc(func(context.Context, AuditEvent) { <-block }))

	// First event occupies the worker, second fills the buffer, the rest drop.
	for i := 0; i < 8; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "x"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events")
	}
	close(block)
	d.Close()
}

type sinkFunc func(context.Context, AuditEvent)

func (f sinkFunc) Emit(ctx context.Context, event AuditEvent) { f(ctx, event) }
