package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNoopObservabilityDefaults(_ *testing.T) {
	logger := noopLogger{}
	logger.Debug("debug", "key", "value")
	logger.Info("info", "key", "value")
	logger.Warn("warn", "key", "value")
	logger.Error("error", "key", "value")

	noopMetrics{}.Observe(context.Background(), "noop", true, 0)
	noopMetrics{}.Notified("kind", "info")
	noopMetrics{}.StorageFailure("orders", "save")
	_, span := noopTracer{}.Start(context.Background(), "noop")
	span.End(nil)
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	rec.Observe(context.Background(), "update_orders", true, 25*time.Millisecond)
	rec.Observe(context.Background(), "update_orders", false, time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)
	rec.Notified("approval_required", "alert")
	rec.Notified("approval_required", "alert")
	rec.StorageFailure("orders", "save")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			switch {
			case m.GetHistogram() != nil:
				counts[fam.GetName()] += float64(m.GetHistogram().GetSampleCount())
			case m.GetCounter() != nil:
				counts[fam.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	want := map[string]float64{
		"bizdesk_mutation_duration_seconds": 2,
		"bizdesk_notifications_total":       2,
		"bizdesk_storage_failures_total":    1,
	}
	for name, v := range want {
		if counts[name] != v {
			t.Fatalf("%s: expected %v, got %v (all %v)", name, v, counts[name], counts)
		}
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestJSONTracerRetainsLimitedEntries(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf, 2)
	for _, op := range []string{"a", "b", "c"} {
		_, span := tracer.Start(context.Background(), op)
		var err error
		if op == "c" {
			err = errors.New("boom")
		}
		span.End(err)
	}
	entries := tracer.Entries()
	if len(entries) != 2 || entries[0].Operation != "b" || entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("expected every span written, got %d lines", lines)
	}
}

func TestKitLoggerFormatsAndFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewKitLogger(&buf, "logfmt", "warn")
	if err != nil {
		t.Fatalf("NewKitLogger: %v", err)
	}
	logger.Info("hidden")
	logger.With("component", "store").Warn("storage failure absorbed", "entity", "orders")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info to be filtered: %s", out)
	}
	for _, want := range []string{"level=warn", "component=store", "entity=orders", `msg="storage failure absorbed"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %s", want, out)
		}
	}

	buf.Reset()
	jsonLogger, err := NewKitLogger(&buf, "json", "debug")
	if err != nil {
		t.Fatalf("json logger: %v", err)
	}
	jsonLogger.Debug("derived", "order", "o1")
	if !strings.Contains(buf.String(), `"order":"o1"`) {
		t.Fatalf("expected json output, got %s", buf.String())
	}

	if _, err := NewKitLogger(&buf, "xml", "info"); err == nil {
		t.Fatalf("expected unknown format error")
	}
	if _, err := NewKitLogger(&buf, "json", "loud"); err == nil {
		t.Fatalf("expected unknown level error")
	}
}
