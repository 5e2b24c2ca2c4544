package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDispatcherDeliversEvents(t *testing.T) {
	sink := NewChannelSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8, DropIfFull: true}, sink)
	t.Cleanup(d.Close)

	d.Emit(context.Background(), AuditEvent{EventType: "login_success", UserID: "u1", Success: true})

	select {
	case event := <-sink.Events():
		if event.EventType != "login_success" || event.UserID != "u1" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestDispatcherDisabled(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled config must produce a nil dispatcher")
	}
	// Nil dispatcher is safe to use.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(_ context.Context, _ AuditEvent) {
	<-s.release
}

func TestDispatcherDropsUnderBackpressure(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event occupies the sink, second fills the buffer, the rest
	// must be dropped without blocking.
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login_failure"})
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no events dropped under backpressure")
		}
		time.Sleep(time.Millisecond)
	}

	close(sink.release)
	d.Close()
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: "refresh_reuse_detected",
		UserID:    "u1",
		Error:     "token_reuse",
	})

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("sink output is not JSON: %v", err)
	}
	if decoded["event_type"] != "refresh_reuse_detected" {
		t.Fatalf("event_type = %v", decoded["event_type"])
	}
	if decoded["error"] != "token_reuse" {
		t.Fatalf("error = %v", decoded["error"])
	}
}

func TestEngineEmitsAuditEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true

	sink := NewChannelSink(16)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newMockUserStore()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("engine build: %v", err)
	}
	t.Cleanup(engine.Close)

	seedUser(t, engine, store, "alice@example.com", testPassword)

	if _, err := engine.Login(context.Background(), "alice@example.com", "wrong-password"); err == nil {
		t.Fatal("expected login failure")
	}

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventLoginFailure {
			t.Fatalf("event type = %s", event.EventType)
		}
		if event.Error != string(auditErrInvalidCredentials) {
			t.Fatalf("event error = %s", event.Error)
		}
		if event.Success {
			t.Fatal("failure event marked successful")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event emitted")
	}
}

func TestAuditErrorCodes(t *testing.T) {
	if code := auditErrorCode(nil); code != "" {
		t.Fatalf("nil error code = %q", code)
	}
	if code := auditErrorCode(ErrTokenReuseDetected); code != auditErrTokenReuse {
		t.Fatalf("reuse code = %q", code)
	}
	if code := auditErrorCode(context.DeadlineExceeded); code != auditErrInternal {
		t.Fatalf("fallback code = %q", code)
	}
}
