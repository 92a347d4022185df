package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
)

// Entry is one stored section/key/value row.
type Entry struct {
	Key   string
	Value string
}

// KVStore keeps permission state in the permission_kv table.
type KVStore struct{ DB *sql.DB }

// NewKVStore returns a store over db. The schema must already be migrated.
func NewKVStore(db *sql.DB) *KVStore { return &KVStore{DB: db} }

// Get returns the value under section/key; ok is false when absent.
func (s *KVStore) Get(ctx context.Context, section, key string) (string, bool, error) {
	var v string
	err := s.DB.QueryRowContext(ctx,
		`SELECT value FROM permission_kv WHERE section=$1 AND key=$2`, section, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set inserts or replaces section/key.
func (s *KVStore) Set(ctx context.Context, section, key, value string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO permission_kv (section, key, value, updated_at) VALUES ($1,$2,$3,NOW())
		 ON CONFLICT (section, key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
		section, key, value)
	return err
}

// Exists reports whether section/key is stored.
func (s *KVStore) Exists(ctx context.Context, section, key string) (bool, error) {
	var ok bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM permission_kv WHERE section=$1 AND key=$2)`, section, key).Scan(&ok)
	return ok, err
}

// Delete removes section/key. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, section, key string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM permission_kv WHERE section=$1 AND key=$2`, section, key)
	return err
}

// Keys lists every key in section, sorted.
func (s *KVStore) Keys(ctx context.Context, section string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key FROM permission_kv WHERE section=$1 ORDER BY key`, section)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Entries lists every row in section, sorted by key.
func (s *KVStore) Entries(ctx context.Context, section string) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key, value FROM permission_kv WHERE section=$1 ORDER BY key`, section)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping checks database connectivity.
func (s *KVStore) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }
