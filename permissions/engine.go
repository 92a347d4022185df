package permissions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/modkeeper/telemetry"
)

// ErrEngineStopped is returned when work is submitted after Run has returned.
var ErrEngineStopped = errors.New("permissions engine stopped")

// DefaultGCInterval is how often cached users are checked against presence.
const DefaultGCInterval = 5 * time.Minute

// Presence tells the engine which usernames are still live in the channel.
type Presence interface {
	Has(username string) bool
	Remove(username string)
}

// SubscriptionChecker is notified when a new user joins. Check must not block.
type SubscriptionChecker interface {
	Check(username string)
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	GCInterval   time.Duration
	QueueSize    int
	Presence     Presence
	Subscription SubscriptionChecker
}

type call struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// Engine applies chat events to the permission state on a single goroutine.
type Engine struct {
	perms    *Permissions
	presence Presence
	subs     SubscriptionChecker
	interval time.Duration

	events  chan Event
	calls   chan call
	stopped chan struct{}
}

// NewEngine wires perms to its collaborators. Call Run to start processing.
func NewEngine(perms *Permissions, opts Options) *Engine {
	if opts.GCInterval <= 0 {
		opts.GCInterval = DefaultGCInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Engine{
		perms:    perms,
		presence: opts.Presence,
		subs:     opts.Subscription,
		interval: opts.GCInterval,
		events:   make(chan Event, opts.QueueSize),
		calls:    make(chan call),
		stopped:  make(chan struct{}),
	}
}

// Permissions returns the state the engine mutates.
func (e *Engine) Permissions() *Permissions { return e.perms }

// Run seeds the group catalog, then processes events, queued calls and the
// periodic sweep until ctx is cancelled. The registry is cleared on return.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	defer e.perms.reg.reset()

	e.perms.LoadGroups(ctx)
	telemetry.SetRegistrySize(e.perms.reg.Len())

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	slog.Info("permissions engine started", slog.String("component", "permissions"), slog.Duration("gc_interval", e.interval))
	for {
		select {
		case <-ctx.Done():
			slog.Info("permissions engine stopped", slog.String("component", "permissions"))
			return nil
		case ev := <-e.events:
			e.Dispatch(ctx, ev)
		case c := <-e.calls:
			e.drain(ctx)
			c.fn(ctx)
			close(c.done)
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// drain applies every queued event so a call observes all events submitted
// before it.
func (e *Engine) drain(ctx context.Context) {
	for {
		select {
		case ev := <-e.events:
			e.Dispatch(ctx, ev)
		default:
			return
		}
	}
}

// Submit queues ev for the engine goroutine.
func (e *Engine) Submit(ctx context.Context, ev Event) error {
	if e.isStopped() {
		return ErrEngineStopped
	}
	select {
	case e.events <- ev:
		return nil
	case <-e.stopped:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the engine goroutine and waits for it to finish. Use it for
// writes that originate outside chat events (commands, the HTTP API).
func (e *Engine) Do(ctx context.Context, fn func(ctx context.Context)) error {
	if e.isStopped() {
		return ErrEngineStopped
	}
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case e.calls <- c:
	case <-e.stopped:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) isStopped() bool {
	select {
	case <-e.stopped:
		return true
	default:
		return false
	}
}

// Dispatch applies ev synchronously. Only the engine goroutine (or a test
// owning the engine) may call it.
func (e *Engine) Dispatch(ctx context.Context, ev Event) {
	ctx, span := telemetry.StartSpan(ctx, "permissions", "dispatch "+string(ev.Kind()),
		attribute.String("event.kind", string(ev.Kind())))
	defer span.End()
	start := time.Now()

	switch ev := ev.(type) {
	case JoinEvent:
		e.handleJoin(ctx, ev)
	case LeaveEvent:
		e.handleLeave(ctx, ev)
	case MessageEvent:
		e.handleMessage(ctx, ev)
	case ModeEvent:
		e.handleMode(ctx, ev)
	case RosterEvent:
		e.handleRoster(ctx, ev)
	case SpecialUserEvent:
		e.handleSpecialUser(ctx, ev)
	}

	telemetry.ObserveEvent(string(ev.Kind()), time.Since(start))
	telemetry.SetRegistrySize(e.perms.reg.Len())
}
