package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func tokenServer(t *testing.T, calls *atomic.Int32, token string, expiresIn int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": token,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenSource_GetCached(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, "test-token-123", 3600)
	ts := &TokenSource{ClientID: "c", ClientSecret: "s", TokenURL: srv.URL}

	for i := 0; i < 3; i++ {
		tok, err := ts.Get(context.Background())
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if tok != "test-token-123" {
			t.Errorf("Get() = %s", tok)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 API call, got %d", calls.Load())
	}
}

func TestTokenSource_RefreshesNearExpiry(t *testing.T) {
	var calls atomic.Int32
	// Tokens inside the one-minute buffer are never reused.
	srv := tokenServer(t, &calls, "short", 30)
	ts := &TokenSource{ClientID: "c", ClientSecret: "s", TokenURL: srv.URL}

	_, _ = ts.Get(context.Background())
	_, _ = ts.Get(context.Background())
	if calls.Load() != 2 {
		t.Errorf("expected 2 API calls, got %d", calls.Load())
	}
}

func TestTokenSource_Errors(t *testing.T) {
	if _, err := (&TokenSource{}).Get(context.Background()); err == nil || !strings.Contains(err.Error(), "missing client id/secret") {
		t.Errorf("missing credentials error = %v", err)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer bad.Close()
	if _, err := (&TokenSource{ClientID: "c", ClientSecret: "s", TokenURL: bad.URL}).Get(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("server error = %v", err)
	}

	var calls atomic.Int32
	empty := tokenServer(t, &calls, "", 3600)
	if _, err := (&TokenSource{ClientID: "c", ClientSecret: "s", TokenURL: empty.URL}).Get(context.Background()); err == nil || !strings.Contains(err.Error(), "empty access_token") {
		t.Errorf("empty token error = %v", err)
	}
}

func TestTokenSource_ConcurrentAccess(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, &calls, "shared", 3600)
	ts := &TokenSource{ClientID: "c", ClientSecret: "s", TokenURL: srv.URL}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tok, err := ts.Get(context.Background()); err != nil || tok != "shared" {
				t.Errorf("Get() = %q, %v", tok, err)
			}
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("expected a single fetch, got %d", calls.Load())
	}
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken(" oauth:abc ").Get(context.Background())
	if err != nil || tok != "abc" {
		t.Errorf("StaticToken = %q, %v", tok, err)
	}
	if _, err := StaticToken("").Get(context.Background()); err == nil {
		t.Error("empty static token should fail")
	}
}
