package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *KVStore {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set; skipping postgres test")
	}
	database, err := Connect(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := Migrate(context.Background(), database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := database.Exec(`DELETE FROM permission_kv`); err != nil {
		t.Fatalf("clean permission_kv: %v", err)
	}
	if _, err := database.Exec(`DELETE FROM oauth_tokens`); err != nil {
		t.Fatalf("clean oauth_tokens: %v", err)
	}
	return NewKVStore(database)
}

func TestMigrate(t *testing.T) {
	s := openTestDB(t)
	// A second run must be a no-op.
	if err := Migrate(context.Background(), s.DB); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestKVStore(t *testing.T) {
	s := openTestDB(t)
	exerciseStore(t, s)
}

func TestTokens(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	if _, err := GetToken(ctx, s.DB, "twitch"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetToken on empty table: err = %v, want ErrNotFound", err)
	}

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := UpsertToken(ctx, s.DB, Token{Provider: "twitch", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: exp, Scope: " chat:read "}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := UpsertToken(ctx, s.DB, Token{Provider: "twitch", AccessToken: "a2", RefreshToken: "r2", ExpiresAt: exp, Scope: "chat:read chat:edit"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	tok, err := GetToken(ctx, s.DB, "twitch")
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.AccessToken != "a2" || tok.RefreshToken != "r2" {
		t.Errorf("token = %+v, want a2/r2", tok)
	}
	if tok.Scope != "chat:read chat:edit" {
		t.Errorf("scope = %q", tok.Scope)
	}
	if !tok.ExpiresAt.Equal(exp) {
		t.Errorf("expires_at = %v, want %v", tok.ExpiresAt, exp)
	}
}
