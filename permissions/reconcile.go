package permissions

import (
	"context"
	"log/slog"

	"github.com/onnwee/modkeeper/telemetry"
)

// Sweep evicts every cached user the presence tracker no longer knows,
// treating it as a missed leave. It returns the number of evictions. Without
// a presence tracker nothing is evicted.
func (e *Engine) Sweep(ctx context.Context) int {
	if e.presence == nil {
		return 0
	}
	evicted := 0
	for _, name := range e.perms.reg.Usernames() {
		if e.presence.Has(name) {
			continue
		}
		e.evict(ctx, name)
		evicted++
	}
	telemetry.AddEvictions(evicted)
	telemetry.SetRegistrySize(e.perms.reg.Len())
	if evicted > 0 {
		slog.Info("evicted absent users",
			slog.String("component", "permissions_gc"),
			slog.Int("evicted", evicted),
			slog.Int("remaining", e.perms.reg.Len()))
	}
	return evicted
}
