package track

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarMetricsRecorderExports(t *testing.T) {
	recorder := NewExpvarMetricsRecorder("")
	if recorder.Name() == "" {
		t.Fatal("expected recorder to have export name")
	}
	recorder.Observe(context.Background(), "test_op", true, 10*time.Millisecond)
	recorder.Observe(context.Background(), "test_op", false, 5*time.Millisecond)
	recorder.Observe(context.Background(), "", true, time.Millisecond)

	snapshot := recorder.Snapshot()
	stats, ok := snapshot.Operations["test_op"]
	if !ok {
		t.Fatalf("missing operation, snapshot=%+v", snapshot)
	}
	if stats.SuccessTotal != 1 || stats.ErrorTotal != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
	if stats.DurationMSTotal != 15 {
		t.Fatalf("duration total = %v, want 15", stats.DurationMSTotal)
	}
	if len(snapshot.Operations) != 1 {
		t.Fatalf("blank operation must be dropped, snapshot=%+v", snapshot)
	}

	if v := expvar.Get(recorder.Name()); v == nil {
		t.Fatal("expected expvar export to be registered")
	} else if !strings.Contains(v.String(), "test_op") {
		t.Fatalf("expected expvar output to contain operation: %s", v.String())
	}
}

func TestExpvarMetricsRecorderSnapshotIsDetached(t *testing.T) {
	recorder := NewExpvarMetricsRecorder("")
	recorder.Observe(context.Background(), "op", true, time.Millisecond)

	snapshot := recorder.Snapshot()
	snapshot.Operations["op"] = OperationStats{SuccessTotal: 99}

	if got := recorder.Snapshot().Operations["op"].SuccessTotal; got != 1 {
		t.Fatalf("success total = %d, snapshot mutation leaked into the recorder", got)
	}
}

func TestPrometheusMetricsRecorderObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	recorder.Observe(context.Background(), "get_changes", true, 20*time.Millisecond)
	recorder.Observe(context.Background(), "get_changes", true, 30*time.Millisecond)
	recorder.Observe(context.Background(), "get_changes", false, 5*time.Millisecond)
	recorder.Observe(context.Background(), "", true, time.Millisecond)

	if got := testutil.ToFloat64(recorder.operations.WithLabelValues("get_changes", "success")); got != 2 {
		t.Fatalf("success counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(recorder.operations.WithLabelValues("get_changes", "error")); got != 1 {
		t.Fatalf("error counter = %v, want 1", got)
	}
	if count := testutil.CollectAndCount(recorder.durations); count != 1 {
		t.Fatalf("histogram series = %d, want 1", count)
	}
}

func TestPrometheusMetricsRecorderRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetricsRecorder(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestPrometheusMetricsRecorderDrivesSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	s, p := newFamilySession(t, WithMetrics(recorder))
	childAt(t, p.Children, 0).SetScore(50)
	if _, err := s.GetChanges(); err != nil {
		t.Fatalf("get changes: %v", err)
	}

	if got := testutil.ToFloat64(recorder.operations.WithLabelValues("get_changes", "success")); got != 1 {
		t.Fatalf("session success counter = %v, want 1", got)
	}
}

func TestJSONTraceTracerExports(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "trace_op")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "trace_op")
	span.End(errors.New("walk aborted"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two span entries, got %d", len(entries))
	}
	if entries[0].Operation != "trace_op" || entries[0].Status != "success" {
		t.Fatalf("unexpected span entry: %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "walk aborted" {
		t.Fatalf("unexpected error entry: %+v", entries[1])
	}
	if !strings.Contains(buf.String(), "\"operation\":\"trace_op\"") {
		t.Fatalf("expected JSON output to contain operation: %q", buf.String())
	}
}

func TestJSONTraceTracerWithoutWriter(t *testing.T) {
	tracer := NewJSONTracer(nil)
	_, span := tracer.Start(context.Background(), "quiet_op")
	span.End(nil)
	if got := len(tracer.Entries()); got != 1 {
		t.Fatalf("entries = %d, want 1", got)
	}
}
