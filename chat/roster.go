package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/modkeeper/permissions"
)

// ModeratorLister returns the channel's current moderator logins.
type ModeratorLister interface {
	ListModerators(ctx context.Context) ([]string, error)
}

// ModeratorListerFunc adapts a function to ModeratorLister.
type ModeratorListerFunc func(ctx context.Context) ([]string, error)

// ListModerators calls f.
func (f ModeratorListerFunc) ListModerators(ctx context.Context) ([]string, error) { return f(ctx) }

// SyncModerators submits a RosterEvent built from lister once immediately and
// then every interval until ctx is cancelled. Twitch no longer answers /mods in
// chat, so this stands in for the room_mods notice. A failed listing is logged
// and skipped; an interval <= 0 disables syncing.
func SyncModerators(ctx context.Context, lister ModeratorLister, events Submitter, interval time.Duration) error {
	if interval <= 0 || lister == nil {
		return nil
	}
	logger := slog.Default().With(slog.String("component", "chat_roster"))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		mods, err := lister.ListModerators(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("moderator list failed", slog.Any("err", err))
		default:
			if err := events.Submit(ctx, permissions.RosterEvent{Moderators: mods}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			logger.Debug("moderator roster submitted", slog.Int("count", len(mods)))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
