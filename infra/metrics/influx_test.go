package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/roamsync/core/metrics"
)

type bodyRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyRecorder) handler(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.bodies = append(b.bodies, strings.TrimSpace(string(data)))
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *bodyRecorder) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.bodies...)
}

func TestInfluxSink_RecordFlush(t *testing.T) {
	rec := &bodyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	fr := coremetrics.FlushRecord{
		Provider: "hubject",
		Kind:     "service",
		Run:      3,
		Result:   "ok",
		Pushes:   2,
		Unpushed: 1,
		Duration: 1500 * time.Microsecond,
		Time:     now,
	}
	if err := sink.RecordFlush(fr); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("roaming_flush").
		AddTag("provider", "hubject").
		AddTag("kind", "service").
		AddTag("result", "ok").
		AddField("run", int64(3)).
		AddField("pushes", 2).
		AddField("promoted", 0).
		AddField("unpushed_removals", 1).
		AddField("duration_ms", 1.5).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if bodies := rec.all(); len(bodies) != 1 || bodies[0] != expected {
		t.Errorf("unexpected bodies: %#v", bodies)
	}
}

func TestInfluxSink_RecordPushesBatches(t *testing.T) {
	rec := &bodyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	pushes := []coremetrics.PushRecord{
		{Provider: "p", Operation: "evse_add", Mode: "fullLoad", Count: 3, Accepted: true, Time: now},
		{Provider: "p", Operation: "evse_status", Mode: "update", Count: 1, Accepted: false, Requeued: 1, Time: now},
	}
	if err := sink.RecordPushes(pushes); err != nil {
		t.Fatalf("record: %v", err)
	}
	bodies := rec.all()
	if len(bodies) != 1 {
		t.Fatalf("expected a single write, got %d", len(bodies))
	}
	lines := strings.Split(bodies[0], "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "roaming_push,accepted=true") {
		t.Errorf("unexpected lines: %#v", lines)
	}
	if err := sink.RecordPushes(nil); err != nil {
		t.Fatalf("empty record: %v", err)
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("empty batch should not write, got %d writes", n)
	}
}

func TestInfluxSink_RecordDropAndCDR(t *testing.T) {
	rec := &bodyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	if err := sink.RecordDrop(coremetrics.DropRecord{Provider: "p", Container: "add", Count: 4, Time: now}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if err := sink.RecordCDRs([]coremetrics.CDRRecord{{Provider: "p", SessionID: "s1", Status: "error", Requeued: true, Time: now}}); err != nil {
		t.Fatalf("cdr: %v", err)
	}
	drop := write.NewPointWithMeasurement("roaming_drop").
		AddTag("provider", "p").
		AddTag("container", "add").
		AddField("count", 4).
		SetTime(now)
	cdr := write.NewPointWithMeasurement("roaming_cdr").
		AddTag("provider", "p").
		AddTag("status", "error").
		AddField("session_id", "s1").
		AddField("requeued", true).
		SetTime(now)
	exp1 := strings.TrimSpace(write.PointToLineProtocol(drop, time.Nanosecond))
	exp2 := strings.TrimSpace(write.PointToLineProtocol(cdr, time.Nanosecond))
	if bodies := rec.all(); len(bodies) != 2 || bodies[0] != exp1 || bodies[1] != exp2 {
		t.Errorf("unexpected bodies: %#v", bodies)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	var mu sync.Mutex
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			mu.Lock()
			called = true
			mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	mu.Lock()
	defer mu.Unlock()
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
