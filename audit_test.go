package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)
	defer d.Close()

	d.Emit(context.Background(), AuditEvent{EventType: "register_success", Success: true})

	select {
	case event := <-sink.Events():
		if event.EventType != "register_success" {
			t.Fatalf("unexpected event type %q", event.EventType)
		}
		if !event.Success {
			t.Fatal("expected success flag")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	// nil dispatcher methods are no-ops
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected zero dropped on nil dispatcher")
	}
}

type gateSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *gateSink) Emit(_ context.Context, _ AuditEvent) {
	s.entered <- struct{}{}
	<-s.release
}

func TestDispatcherDropsWhenBufferFull(t *testing.T) {
	sink := &gateSink{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	ctx := context.Background()
	d.Emit(ctx, AuditEvent{EventType: "first"})
	<-sink.entered // dispatcher goroutine is now blocked in the sink

	d.Emit(ctx, AuditEvent{EventType: "second"}) // fills the buffer
	d.Emit(ctx, AuditEvent{EventType: "third"})  // dropped

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events to be counted")
	}

	close(sink.release)
	d.Close()
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		EventType: "login_success",
		Email:     "alice@example.com",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{EventType: "login_failure"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var event AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if event.EventType != "login_success" || event.Email != "alice@example.com" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	cases := []struct {
		in   error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrEmailTaken, auditErrEmailTaken},
		{ErrRegistrationTokenNotFound, auditErrTokenNotFound},
		{ErrRegistrationTokenExpired, auditErrTokenExpired},
		{ErrAlreadyVerified, auditErrAlreadyVerified},
		{ErrUserNotFound, auditErrUserNotFound},
		{ErrEmailNotVerified, auditErrEmailNotVerified},
		{ErrInvalidCredentials, auditErrInvalidCredential},
		{ErrInvalidCode, auditErrInvalidCode},
		{ErrLoginRateLimited, auditErrRateLimited},
		{ErrPasswordPolicy, auditErrPasswordPolicy},
		{ErrTokenInvalid, auditErrSessionInvalid},
		{ErrSessionTokenExpired, auditErrSessionExpired},
		{ErrNoLoginRecorded, auditErrNoLoginRecorded},
		{ErrStoreUnavailable, auditErrUnavailable},
		{errors.New("mystery"), auditErrInternal},
	}
	for _, tc := range cases {
		if got := auditErrorCode(tc.in); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEngineEmitsAuditEventsWithContextCarriers(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	sink := NewChannelSink(32)
	users := newMockUserStore()
	mailer := newCaptureMailer()

	engine, err := NewBuilder().
		WithConfig(testEngineConfig()).
		WithRedis(rdb).
		WithUserStore(users).
		WithMailer(mailer).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	ctx = WithUserAgent(ctx, "test-agent/1.0")

	if _, err := engine.Register(ctx, "alice@example.com", "Alice", "correct-horse"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.EventType != "register_success" {
			t.Fatalf("expected register_success, got %q", event.EventType)
		}
		if event.IP != "203.0.113.9" {
			t.Fatalf("expected IP carried onto event, got %q", event.IP)
		}
		if event.UserAgent != "test-agent/1.0" {
			t.Fatalf("expected user agent carried onto event, got %q", event.UserAgent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}
