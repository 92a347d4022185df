package presence

import (
	"context"
	"log/slog"
	"time"
)

// ChattersLister returns the complete list of users currently in chat.
type ChattersLister interface {
	ListChatters(ctx context.Context) ([]string, error)
}

// ListerFunc adapts a function to ChattersLister.
type ListerFunc func(ctx context.Context) ([]string, error)

// ListChatters calls f.
func (f ListerFunc) ListChatters(ctx context.Context) ([]string, error) { return f(ctx) }

// Poll refreshes c from lister every interval until ctx is done. Between
// polls it prunes expired entries. A failed poll keeps the previous set.
func Poll(ctx context.Context, c *Cache, lister ChattersLister, interval time.Duration) error {
	logger := slog.Default().With(slog.String("component", "presence_poller"))
	if interval <= 0 {
		logger.Info("chatters polling disabled")
		<-ctx.Done()
		return nil
	}
	refresh := func() {
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		names, err := lister.ListChatters(cctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("list chatters failed", slog.Any("err", err))
			}
			c.Prune()
			return
		}
		c.Replace(names)
		logger.Debug("chatters refreshed", slog.Int("count", len(names)))
	}

	refresh()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			refresh()
		}
	}
}
