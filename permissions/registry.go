package permissions

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// User is a snapshot of one cached chat participant.
type User struct {
	Username string
	Group    GroupID
	// HasMode is true while the group was raised by an operator mode grant.
	HasMode bool
}

type entry struct {
	User
	seq uint64
}

// Registry caches users seen since their last eviction. The persistent store
// remains the long-term source of truth; the registry only warms it.
type Registry struct {
	store Store

	mu    sync.RWMutex
	users map[string]*entry
	seq   uint64
}

// NewRegistry returns an empty registry seeding new users from store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, users: make(map[string]*entry)}
}

// Normalize returns the canonical registry key for a username.
func Normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Get returns the cached user without creating one.
func (r *Registry) Get(username string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.users[Normalize(username)]
	if !ok {
		return User{}, false
	}
	return e.User, true
}

// GetOrCreate returns the cached user, creating it from the persisted group
// (Viewer when absent) on first sight. It is the only creation path.
func (r *Registry) GetOrCreate(ctx context.Context, username string) User {
	key := Normalize(username)
	if u, ok := r.Get(key); ok {
		return u
	}
	// Read outside the lock. Only the engine goroutine creates or mutates users
	// (see the package doc), so no other writer can race this insert.
	g := Clamp(GetInt(ctx, r.store, SectionGroup, key, int(Viewer)))

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.users[key]; ok {
		return e.User
	}
	r.seq++
	e := &entry{User: User{Username: key, Group: g}, seq: r.seq}
	r.users[key] = e
	return e.User
}

// Exists reports whether username is cached.
func (r *Registry) Exists(username string) bool {
	_, ok := r.Get(username)
	return ok
}

// Len returns the number of cached users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Usernames returns every cached username in discovery order.
func (r *Registry) Usernames() []string {
	return r.collect(func(User) bool { return true })
}

// UsernamesInGroup returns cached usernames whose group is g, in discovery
// order. Callers wanting a display order must sort the result themselves.
func (r *Registry) UsernamesInGroup(g GroupID) []string {
	return r.collect(func(u User) bool { return u.Group == g })
}

func (r *Registry) collect(keep func(User) bool) []string {
	r.mu.RLock()
	matched := make([]*entry, 0, len(r.users))
	for _, e := range r.users {
		if keep(e.User) {
			matched = append(matched, e)
		}
	}
	r.mu.RUnlock()
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	out := make([]string, len(matched))
	for i, e := range matched {
		out[i] = e.Username
	}
	return out
}

// Remove drops username from the cache. It reports whether it was present.
func (r *Registry) Remove(username string) bool {
	key := Normalize(username)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[key]; !ok {
		return false
	}
	delete(r.users, key)
	return true
}

func (r *Registry) setGroup(username string, g GroupID) (prev GroupID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[Normalize(username)]
	if !ok {
		return Viewer, false
	}
	prev = e.Group
	e.Group = g
	return prev, true
}

func (r *Registry) setMode(username string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.users[Normalize(username)]; ok {
		e.HasMode = on
	}
}

// reset drops every cached user.
func (r *Registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[string]*entry)
}
