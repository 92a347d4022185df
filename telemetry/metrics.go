// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsHandled   *prometheus.CounterVec
	GroupChanges    *prometheus.CounterVec
	Evictions       prometheus.Counter
	CommandsHandled *prometheus.CounterVec
	ChatSaid        prometheus.Counter
	ChatSayDropped  prometheus.Counter
	NotifyFailed    prometheus.Counter

	// Histograms (seconds)
	EventDuration *prometheus.HistogramVec

	// Gauges
	RegistryUsers prometheus.Gauge
	PresenceUsers prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "modkeeper_events_handled_total", Help: "Chat events applied to the permission state"}, []string{"kind"})
		GroupChanges = promauto.NewCounterVec(prometheus.CounterOpts{Name: "modkeeper_group_changes_total", Help: "Effective group changes by target group"}, []string{"group"})
		Evictions = promauto.NewCounter(prometheus.CounterOpts{Name: "modkeeper_gc_evictions_total", Help: "Cached users evicted by the presence sweep"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "modkeeper_commands_total", Help: "Chat commands handled"}, []string{"command"})
		ChatSaid = promauto.NewCounter(prometheus.CounterOpts{Name: "modkeeper_chat_said_total", Help: "Messages sent to chat"})
		ChatSayDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "modkeeper_chat_say_dropped_total", Help: "Outbound chat messages dropped because the queue was full"})
		NotifyFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "modkeeper_notify_failed_total", Help: "Group change notifications that could not be published"})
		EventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "modkeeper_event_duration_seconds", Help: "Time spent applying one chat event", Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8)}, []string{"kind"})
		RegistryUsers = promauto.NewGauge(prometheus.GaugeOpts{Name: "modkeeper_registry_users", Help: "Users currently cached in the registry"})
		PresenceUsers = promauto.NewGauge(prometheus.GaugeOpts{Name: "modkeeper_presence_users", Help: "Usernames currently considered live"})
	})
}

// ObserveEvent counts one handled event and records its duration.
func ObserveEvent(kind string, d time.Duration) {
	if EventsHandled != nil {
		EventsHandled.WithLabelValues(kind).Inc()
	}
	if EventDuration != nil {
		EventDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// RecordGroupChange counts a group change towards group.
func RecordGroupChange(group string) {
	if GroupChanges != nil {
		GroupChanges.WithLabelValues(group).Inc()
	}
}

// AddEvictions adds n sweep evictions.
func AddEvictions(n int) {
	if Evictions != nil && n > 0 {
		Evictions.Add(float64(n))
	}
}

// RecordCommand counts a handled chat command.
func RecordCommand(name string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(name).Inc()
	}
}

// IncCounter increments c when it has been initialized.
func IncCounter(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetRegistrySize records the number of cached users.
func SetRegistrySize(n int) {
	if RegistryUsers != nil {
		RegistryUsers.Set(float64(n))
	}
}

// SetPresenceSize records the number of live usernames.
func SetPresenceSize(n int) {
	if PresenceUsers != nil {
		PresenceUsers.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
