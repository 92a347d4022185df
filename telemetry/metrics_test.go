package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // idempotent

	if EventsHandled == nil || GroupChanges == nil || Evictions == nil {
		t.Fatal("counters not initialized")
	}
	if EventDuration == nil {
		t.Fatal("EventDuration histogram not initialized")
	}
	if RegistryUsers == nil || PresenceUsers == nil {
		t.Fatal("gauges not initialized")
	}
}

func TestObserveEvent(t *testing.T) {
	Init()

	before := testutil.ToFloat64(EventsHandled.WithLabelValues("join"))
	ObserveEvent("join", 3*time.Millisecond)
	ObserveEvent("join", time.Millisecond)
	if got := testutil.ToFloat64(EventsHandled.WithLabelValues("join")) - before; got != 2 {
		t.Errorf("join events = %v, want 2", got)
	}

	metric := &dto.Metric{}
	obs, ok := EventDuration.WithLabelValues("join").(interface{ Write(*dto.Metric) error })
	if !ok {
		t.Fatal("histogram does not expose Write")
	}
	if err := obs.Write(metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() < 2 {
		t.Errorf("expected at least 2 duration samples, got %v", metric.Histogram)
	}
}

func TestGroupChangesAndEvictions(t *testing.T) {
	Init()

	before := testutil.ToFloat64(GroupChanges.WithLabelValues("Moderator"))
	RecordGroupChange("Moderator")
	if got := testutil.ToFloat64(GroupChanges.WithLabelValues("Moderator")) - before; got != 1 {
		t.Errorf("moderator changes = %v, want 1", got)
	}

	ev := testutil.ToFloat64(Evictions)
	AddEvictions(3)
	AddEvictions(0)
	AddEvictions(-1)
	if got := testutil.ToFloat64(Evictions) - ev; got != 3 {
		t.Errorf("evictions = %v, want 3", got)
	}
}

func TestGauges(t *testing.T) {
	Init()

	SetRegistrySize(42)
	if got := testutil.ToFloat64(RegistryUsers); got != 42 {
		t.Errorf("registry gauge = %v, want 42", got)
	}
	SetPresenceSize(7)
	if got := testutil.ToFloat64(PresenceUsers); got != 7 {
		t.Errorf("presence gauge = %v, want 7", got)
	}
}

func TestIncCounterNilSafe(t *testing.T) {
	IncCounter(nil)
	Init()
	before := testutil.ToFloat64(ChatSaid)
	IncCounter(ChatSaid)
	if got := testutil.ToFloat64(ChatSaid) - before; got != 1 {
		t.Errorf("chat said = %v, want 1", got)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Fatal("expected empty correlation id")
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
