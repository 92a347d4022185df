// Package oauth keeps tokens stored in the oauth_tokens table fresh. It wakes
// on a jittered interval and refreshes when expiry falls within a window.
package oauth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/modkeeper/db"
)

// RefreshFunc exchanges a refresh token for a new token.
type RefreshFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// ScopeFunc extracts the granted scope string from a refreshed token.
type ScopeFunc func(*oauth2.Token) string

// Refresher refreshes one provider's stored token.
type Refresher struct {
	DB       *sql.DB
	Provider string        // key in oauth_tokens
	Interval time.Duration // how often to wake up and check
	Window   time.Duration // refresh when remaining lifetime <= Window
	Refresh  RefreshFunc
	Scope    ScopeFunc
}

func (r *Refresher) defaults() {
	if r.Interval <= 0 {
		r.Interval = 5 * time.Minute
	}
	if r.Window <= 0 {
		r.Window = 15 * time.Minute
	}
}

// Run checks the token until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	r.defaults()
	logger := slog.Default().With(slog.String("component", "oauth_refresh"), slog.String("provider", r.Provider))

	// Randomize the initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initial := time.Duration(rand.Int63n(int64(r.Interval/2) + 1))
	if !sleep(ctx, initial) {
		return nil
	}
	for {
		if _, err := r.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("token refresh failed", slog.Any("err", err))
		}
		// ±20% jitter per iteration.
		jitterRange := int64(r.Interval / 5)
		//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
		jitter := time.Duration(rand.Int63n(jitterRange*2+1) - jitterRange)
		next := r.Interval + jitter
		if next < r.Interval/2 {
			next = r.Interval / 2
		}
		if !sleep(ctx, next) {
			return nil
		}
	}
}

// RefreshOnce refreshes the stored token when it is inside the window. It
// reports whether a refresh was persisted. A missing row is not an error.
func (r *Refresher) RefreshOnce(ctx context.Context) (bool, error) {
	r.defaults()
	tok, err := db.GetToken(ctx, r.DB, r.Provider)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if tok.RefreshToken == "" || time.Until(tok.ExpiresAt) > r.Window {
		return false, nil
	}

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	next, err := r.Refresh(cctx, tok.RefreshToken)
	cancel()
	if err != nil {
		return false, err
	}

	updated := db.Token{
		Provider:     r.Provider,
		AccessToken:  next.AccessToken,
		RefreshToken: next.RefreshToken,
		ExpiresAt:    next.Expiry,
		Scope:        tok.Scope,
	}
	if updated.RefreshToken == "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if r.Scope != nil {
		if s := r.Scope(next); s != "" {
			updated.Scope = s
		}
	}
	if updated.ExpiresAt.IsZero() {
		updated.ExpiresAt = time.Now().Add(time.Hour)
	}
	if err := db.UpsertToken(ctx, r.DB, updated); err != nil {
		return false, err
	}
	slog.Info("token refreshed", slog.String("component", "oauth_refresh"), slog.String("provider", r.Provider))
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
