package oauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/onnwee/modkeeper/db"
	"github.com/onnwee/modkeeper/testutil"
)

func seedToken(t *testing.T, r *Refresher, expiresIn time.Duration, refresh string) {
	t.Helper()
	err := db.UpsertToken(context.Background(), r.DB, db.Token{
		Provider:     r.Provider,
		AccessToken:  "old-access",
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(expiresIn),
		Scope:        "chat:read",
	})
	if err != nil {
		t.Fatalf("seed token: %v", err)
	}
}

func TestRefreshOnceOutsideWindow(t *testing.T) {
	database := testutil.SetupTestDB(t)
	called := false
	r := &Refresher{DB: database, Provider: "test-provider", Window: 30 * time.Minute,
		Refresh: func(context.Context, string) (*oauth2.Token, error) {
			called = true
			return nil, errors.New("unexpected")
		}}
	seedToken(t, r, time.Hour, "old-refresh")

	done, err := r.RefreshOnce(context.Background())
	if err != nil || done || called {
		t.Errorf("RefreshOnce() = %v, %v (called=%v), want no refresh", done, err, called)
	}
}

func TestRefreshOnceWithinWindow(t *testing.T) {
	database := testutil.SetupTestDB(t)
	newExpiry := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	r := &Refresher{DB: database, Provider: "test-provider", Window: 15 * time.Minute,
		Refresh: func(_ context.Context, rt string) (*oauth2.Token, error) {
			if rt != "old-refresh" {
				t.Errorf("refresh called with %q", rt)
			}
			return &oauth2.Token{AccessToken: "new-access", Expiry: newExpiry}, nil
		},
		Scope: func(*oauth2.Token) string { return "chat:read chat:edit" },
	}
	seedToken(t, r, 5*time.Minute, "old-refresh")

	done, err := r.RefreshOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RefreshOnce() = %v, %v", done, err)
	}
	tok, err := db.GetToken(context.Background(), database, "test-provider")
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "new-access" {
		t.Errorf("access = %q", tok.AccessToken)
	}
	if tok.RefreshToken != "old-refresh" {
		t.Errorf("refresh token should be kept when the provider omits it, got %q", tok.RefreshToken)
	}
	if tok.Scope != "chat:read chat:edit" || !tok.ExpiresAt.Equal(newExpiry) {
		t.Errorf("token = %+v", tok)
	}
}

func TestRefreshOnceErrorKeepsToken(t *testing.T) {
	database := testutil.SetupTestDB(t)
	r := &Refresher{DB: database, Provider: "test-provider",
		Refresh: func(context.Context, string) (*oauth2.Token, error) { return nil, errors.New("invalid_grant") }}
	seedToken(t, r, time.Minute, "old-refresh")

	if _, err := r.RefreshOnce(context.Background()); err == nil {
		t.Error("expected refresh error")
	}
	tok, _ := db.GetToken(context.Background(), database, "test-provider")
	if tok == nil || tok.AccessToken != "old-access" {
		t.Errorf("token changed after failed refresh: %+v", tok)
	}
}

func TestRefreshOnceSkipsMissingRowAndRefreshToken(t *testing.T) {
	database := testutil.SetupTestDB(t)
	r := &Refresher{DB: database, Provider: "absent",
		Refresh: func(context.Context, string) (*oauth2.Token, error) {
			t.Error("refresh must not be called")
			return nil, nil
		}}
	if done, err := r.RefreshOnce(context.Background()); done || err != nil {
		t.Errorf("missing row: %v, %v", done, err)
	}
	r.Provider = "no-refresh"
	seedToken(t, r, time.Minute, "")
	if done, err := r.RefreshOnce(context.Background()); done || err != nil {
		t.Errorf("empty refresh token: %v, %v", done, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &Refresher{Provider: "x", Interval: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
