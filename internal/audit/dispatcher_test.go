package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type panicSink struct{}

func (panicSink) Emit(context.Context, Event) { panic("sink exploded") }

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) { <-s.gate }

func TestDispatcherDisabledReturnsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherStampsIDAndTimestamp(t *testing.T) {
	sink := NewChannelSink(1)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	fixed := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	d.Emit(context.Background(), Event{EventType: "session_login", UserID: "u1", Success: true})
	d.Close()

	select {
	case ev := <-sink.Events():
		if ev.EventID == "" {
			t.Fatal("expected event id")
		}
		if !ev.Timestamp.Equal(fixed) {
			t.Fatalf("expected timestamp %v, got %v", fixed, ev.Timestamp)
		}
	default:
		t.Fatal("expected event to be delivered before Close returns")
	}
}

func TestDispatcherDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "session_logout"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and a full buffer")
	}
	close(sink.gate)
	d.Close()
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2}, panicSink{})
	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})
	d.Close()
	if got := d.SinkPanics(); got != 2 {
		t.Fatalf("expected 2 recovered panics, got %d", got)
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "session_login", UserID: "u1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "session_logout", UserID: "u1", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EventType != "session_logout" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	sink := NewLogSink(logger)
	sink.Emit(context.Background(), Event{EventType: "remote_sign_out_failed", UserID: "u1", Error: "timeout"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry["level"] != "warning" {
		t.Fatalf("expected warning level, got %v", entry["level"])
	}
	if entry["error"] != "timeout" || entry["user_id"] != "u1" {
		t.Fatalf("unexpected fields %v", entry)
	}
}
