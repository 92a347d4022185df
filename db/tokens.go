package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Token is a stored OAuth credential row.
type Token struct {
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// GetToken loads the token row for provider. It returns ErrNotFound when absent.
func GetToken(ctx context.Context, db *sql.DB, provider string) (*Token, error) {
	t := &Token{Provider: provider}
	var at, rt, scope sql.NullString
	var exp sql.NullTime
	err := db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, scope FROM oauth_tokens WHERE provider=$1`, provider).
		Scan(&at, &rt, &exp, &scope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.AccessToken, t.RefreshToken, t.Scope = at.String, rt.String, scope.String
	if exp.Valid {
		t.ExpiresAt = exp.Time
	}
	return t, nil
}

// UpsertToken stores t, replacing any previous row for the same provider.
func UpsertToken(ctx context.Context, db *sql.DB, t Token) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, scope, updated_at)
		 VALUES ($1,$2,$3,$4,$5,NOW())
		 ON CONFLICT (provider) DO UPDATE SET access_token=EXCLUDED.access_token,
		   refresh_token=EXCLUDED.refresh_token, expires_at=EXCLUDED.expires_at,
		   scope=EXCLUDED.scope, updated_at=NOW()`,
		t.Provider, t.AccessToken, t.RefreshToken, t.ExpiresAt, strings.TrimSpace(t.Scope))
	return err
}
