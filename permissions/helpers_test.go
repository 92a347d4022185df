package permissions

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/onnwee/modkeeper/db"
)

type fakePresence struct {
	mu      sync.Mutex
	live    map[string]bool
	removed []string
}

func newFakePresence(names ...string) *fakePresence {
	p := &fakePresence{live: make(map[string]bool)}
	for _, n := range names {
		p.live[n] = true
	}
	return p
}

func (p *fakePresence) Has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live[name]
}

func (p *fakePresence) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.live, name)
	p.removed = append(p.removed, name)
}

type fakeSubs struct {
	mu      sync.Mutex
	checked []string
}

func (s *fakeSubs) Check(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = append(s.checked, name)
}

var testIdentity = Identity{Bot: "ModBot", Owner: "Streamer", Channel: "streamer"}

func newTestEngine(t *testing.T, opts Options) (*Engine, *db.MemoryStore) {
	t.Helper()
	store := db.NewMemoryStore()
	return NewEngine(New(store, testIdentity), opts), store
}

func persistedGroup(t *testing.T, s Store, name string) (GroupID, bool) {
	t.Helper()
	v, ok, err := s.Get(context.Background(), SectionGroup, name)
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	if !ok {
		return Viewer, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		t.Fatalf("stored group %q is not numeric", v)
	}
	return GroupID(n), true
}
