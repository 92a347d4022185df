package permissions

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/onnwee/modkeeper/db"
)

// Store sections used by this package.
const (
	SectionGroup              = "group"
	SectionGroups             = "groups"
	SectionGroupPoints        = "grouppoints"
	SectionGroupPointsOffline = "grouppointsoffline"
	SectionVisited            = "visited"
	SectionSubOverride        = "subscriptionoverride"
)

// Store is the durable section/key/value backend. Values are strings; the
// helpers below give them int and bool shapes.
type Store interface {
	Get(ctx context.Context, section, key string) (value string, ok bool, err error)
	Set(ctx context.Context, section, key, value string) error
	Exists(ctx context.Context, section, key string) (bool, error)
	Delete(ctx context.Context, section, key string) error
	Keys(ctx context.Context, section string) ([]string, error)
}

// EntryLister is implemented by stores that can read a whole section in one
// pass. db.KVStore and db.MemoryStore both do.
type EntryLister interface {
	Entries(ctx context.Context, section string) ([]db.Entry, error)
}

// Entries returns every key/value pair in section. Stores without an
// EntryLister fall back to Keys plus one Get per key.
func Entries(ctx context.Context, s Store, section string) ([]db.Entry, error) {
	if l, ok := s.(EntryLister); ok {
		return l.Entries(ctx, section)
	}
	keys, err := s.Keys(ctx, section)
	if err != nil {
		return nil, err
	}
	out := make([]db.Entry, 0, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(ctx, section, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, db.Entry{Key: k, Value: v})
		}
	}
	return out, nil
}

// The helpers swallow store errors after logging them: a failing store must
// never abort chat processing, so reads fall back to their default.

func logStoreErr(op, section, key string, err error) {
	slog.Warn("permission store "+op+" failed",
		slog.String("component", "permissions_store"),
		slog.String("section", section),
		slog.String("key", key),
		slog.Any("err", err))
}

// GetInt reads an integer value, returning def when missing, malformed or on error.
func GetInt(ctx context.Context, s Store, section, key string, def int) int {
	v, ok, err := s.Get(ctx, section, key)
	if err != nil {
		logStoreErr("get", section, key, err)
		return def
	}
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// SetInt writes an integer value.
func SetInt(ctx context.Context, s Store, section, key string, v int) {
	if err := s.Set(ctx, section, key, strconv.Itoa(v)); err != nil {
		logStoreErr("set", section, key, err)
	}
}

// GetBool reads a boolean value ("true"/"1" are true), returning def when missing.
func GetBool(ctx context.Context, s Store, section, key string, def bool) bool {
	v, ok, err := s.Get(ctx, section, key)
	if err != nil {
		logStoreErr("get", section, key, err)
		return def
	}
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// SetBool writes a boolean value.
func SetBool(ctx context.Context, s Store, section, key string, v bool) {
	if err := s.Set(ctx, section, key, strconv.FormatBool(v)); err != nil {
		logStoreErr("set", section, key, err)
	}
}

// GetOrSetString returns the stored value, writing def first when the key is absent.
func GetOrSetString(ctx context.Context, s Store, section, key, def string) string {
	v, ok, err := s.Get(ctx, section, key)
	if err != nil {
		logStoreErr("get", section, key, err)
		return def
	}
	if ok {
		return v
	}
	if err := s.Set(ctx, section, key, def); err != nil {
		logStoreErr("set", section, key, err)
	}
	return def
}

func exists(ctx context.Context, s Store, section, key string) bool {
	ok, err := s.Exists(ctx, section, key)
	if err != nil {
		logStoreErr("exists", section, key, err)
		return false
	}
	return ok
}
