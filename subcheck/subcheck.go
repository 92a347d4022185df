// Package subcheck asks Helix whether newly seen chatters subscribe to the
// channel. Confirmed subscribers get the subscription override flag, which
// protects their Subscriber group from chat-side retractions, and are
// asserted back into the permission engine.
package subcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/modkeeper/permissions"
)

// Querier is the subset of the Helix client used for checks.
type Querier interface {
	GetUserID(ctx context.Context, login string) (string, error)
	IsSubscribed(ctx context.Context, broadcasterID, userID string) (bool, error)
}

// Sink receives subscriber assertions, typically permissions.Engine.Submit.
type Sink func(ctx context.Context, ev permissions.Event) error

// Options tunes a Checker. Zero values select defaults.
type Options struct {
	Concurrency int           // parallel Helix lookups, default 2
	QueueSize   int           // pending checks before new ones are dropped, default 512
	Recheck     time.Duration // minimum time between checks of one user, default 30m
}

// Checker runs subscription lookups on a bounded worker pool.
type Checker struct {
	helix         Querier
	store         permissions.Store
	broadcasterID string
	concurrency   int
	recheck       time.Duration
	now           func() time.Time

	queue chan string

	mu      sync.Mutex
	pending map[string]bool
	checked map[string]time.Time
}

// New returns a Checker. With a nil helix or empty broadcasterID, Check is a
// no-op.
func New(helix Querier, store permissions.Store, broadcasterID string, opts Options) *Checker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 512
	}
	if opts.Recheck <= 0 {
		opts.Recheck = 30 * time.Minute
	}
	return &Checker{
		helix:         helix,
		store:         store,
		broadcasterID: broadcasterID,
		concurrency:   opts.Concurrency,
		recheck:       opts.Recheck,
		now:           time.Now,
		queue:         make(chan string, opts.QueueSize),
		pending:       make(map[string]bool),
		checked:       make(map[string]time.Time),
	}
}

// Enabled reports whether checks will be performed.
func (c *Checker) Enabled() bool { return c.helix != nil && c.broadcasterID != "" }

// Check queues username for a lookup. It never blocks: duplicates, recently
// checked users and overflow are dropped.
func (c *Checker) Check(username string) {
	if !c.Enabled() || username == "" {
		return
	}
	c.mu.Lock()
	if c.pending[username] {
		c.mu.Unlock()
		return
	}
	if t, ok := c.checked[username]; ok && c.now().Sub(t) < c.recheck {
		c.mu.Unlock()
		return
	}
	c.pending[username] = true
	c.mu.Unlock()

	select {
	case c.queue <- username:
	default:
		c.done(username, false)
		slog.Debug("subscription check dropped, queue full",
			slog.String("component", "subcheck"), slog.String("user", username))
	}
}

func (c *Checker) done(username string, checked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, username)
	if checked {
		c.checked[username] = c.now()
	}
}

// prune forgets users whose recheck window has passed; Check treats them as
// never seen, so nothing is lost. It returns how many entries were removed.
func (c *Checker) prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for name, t := range c.checked {
		if now.Sub(t) >= c.recheck {
			delete(c.checked, name)
			n++
		}
	}
	return n
}

// Run processes queued checks until ctx is done, then waits for in-flight
// lookups. Expired recheck entries are pruned once per recheck interval.
func (c *Checker) Run(ctx context.Context, sink Sink) error {
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	ticker := time.NewTicker(c.recheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case <-ticker.C:
			if n := c.prune(); n > 0 {
				slog.Debug("pruned subscription check history",
					slog.String("component", "subcheck"), slog.Int("removed", n))
			}
		case name := <-c.queue:
			g.Go(func() error {
				c.process(ctx, name, sink)
				return nil
			})
		}
	}
}

func (c *Checker) process(ctx context.Context, name string, sink Sink) {
	logger := slog.Default().With(slog.String("component", "subcheck"), slog.String("user", name))
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	sub, err := c.Lookup(cctx, name)
	if err != nil {
		c.done(name, false)
		if ctx.Err() == nil {
			logger.Warn("subscription lookup failed", slog.Any("err", err))
		}
		return
	}
	c.done(name, true)

	if !sub {
		if permissions.GetBool(ctx, c.store, permissions.SectionSubOverride, name, false) {
			permissions.SetBool(ctx, c.store, permissions.SectionSubOverride, name, false)
		}
		return
	}
	permissions.SetBool(ctx, c.store, permissions.SectionSubOverride, name, true)
	if sink == nil {
		return
	}
	if err := sink(ctx, permissions.SpecialUserEvent{Username: name, Subscriber: true}); err != nil && ctx.Err() == nil {
		logger.Warn("submit subscriber assertion failed", slog.Any("err", err))
	}
}

// Lookup resolves username and asks Helix for its subscription.
func (c *Checker) Lookup(ctx context.Context, username string) (bool, error) {
	id, err := c.helix.GetUserID(ctx, username)
	if err != nil {
		return false, err
	}
	return c.helix.IsSubscribed(ctx, c.broadcasterID, id)
}
