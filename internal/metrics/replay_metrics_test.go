package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewReplayMetrics(t *testing.T) {
	metrics := NewReplayMetricsWith(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("NewReplayMetricsWith should not return nil")
	}
	if metrics.projections == nil {
		t.Error("projections counter vec should not be nil")
	}
	if metrics.projectionDuration == nil {
		t.Error("projectionDuration histogram should not be nil")
	}
	if metrics.eventsApplied == nil {
		t.Error("eventsApplied counter vec should not be nil")
	}
	if metrics.eventsAppended == nil {
		t.Error("eventsAppended counter vec should not be nil")
	}
	if metrics.rehydrations == nil {
		t.Error("rehydrations counter should not be nil")
	}
	if metrics.snapshots == nil {
		t.Error("snapshots counter should not be nil")
	}
}

func TestNewReplayMetrics_SameRegistryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewReplayMetricsWith(reg)
	second := NewReplayMetricsWith(reg)

	first.RecordRehydration()
	second.RecordRehydration()

	metric := &dto.Metric{}
	if err := first.rehydrations.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordProjection(t *testing.T) {
	metrics := NewReplayMetricsWith(prometheus.NewRegistry())

	metrics.RecordProjection(ResultOK, 10*time.Millisecond)
	metrics.RecordProjection(ResultOK, 20*time.Millisecond)
	metrics.RecordProjection(ResultError, time.Millisecond)

	okMetric := &dto.Metric{}
	if err := metrics.projections.WithLabelValues(ResultOK).Write(okMetric); err != nil {
		t.Fatalf("failed to write ok metric: %v", err)
	}
	if okMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 ok projections, got %f", okMetric.Counter.GetValue())
	}

	histogram := &dto.Metric{}
	if err := metrics.projectionDuration.Write(histogram); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if histogram.Histogram.GetSampleCount() != 3 {
		t.Errorf("expected 3 samples, got %d", histogram.Histogram.GetSampleCount())
	}
}

func TestRecordEvents_ByType(t *testing.T) {
	metrics := NewReplayMetricsWith(prometheus.NewRegistry())

	metrics.RecordEventApplied("Init")
	metrics.RecordEventApplied("DeliveryAddressUpdated")
	metrics.RecordEventApplied("DeliveryAddressUpdated")
	metrics.RecordEventAppended("OrderIdChanged")

	metric := &dto.Metric{}
	if err := metrics.eventsApplied.WithLabelValues("DeliveryAddressUpdated").Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 applied events, got %f", metric.Counter.GetValue())
	}

	appended := &dto.Metric{}
	if err := metrics.eventsAppended.WithLabelValues("OrderIdChanged").Write(appended); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if appended.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 appended event, got %f", appended.Counter.GetValue())
	}
}

func TestNilReplayMetrics_NoPanic(t *testing.T) {
	var metrics *ReplayMetrics

	metrics.RecordProjection(ResultOK, time.Millisecond)
	metrics.RecordEventApplied("Init")
	metrics.RecordEventAppended("Init")
	metrics.RecordRehydration()
	metrics.RecordSnapshot()
}
