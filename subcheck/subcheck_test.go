package subcheck

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/modkeeper/db"
	"github.com/onnwee/modkeeper/permissions"
)

type fakeHelix struct {
	mu    sync.Mutex
	subs  map[string]bool
	fail  map[string]bool
	calls int
}

func (f *fakeHelix) GetUserID(_ context.Context, login string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[login] {
		return "", errors.New("helix unavailable")
	}
	return "id-" + login, nil
}

func (f *fakeHelix) IsSubscribed(_ context.Context, broadcasterID, userID string) (bool, error) {
	if broadcasterID != "b1" {
		return false, errors.New("wrong broadcaster")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[userID], nil
}

type recorder struct {
	mu     sync.Mutex
	events []permissions.Event
}

func (r *recorder) sink(_ context.Context, ev permissions.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func TestProcess(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	helix := &fakeHelix{subs: map[string]bool{"id-alice": true}, fail: map[string]bool{"broken": true}}
	c := New(helix, store, "b1", Options{})
	rec := &recorder{}

	permissions.SetBool(ctx, store, permissions.SectionSubOverride, "bob", true)
	c.process(ctx, "alice", rec.sink)
	c.process(ctx, "bob", rec.sink)
	c.process(ctx, "broken", rec.sink)

	if !permissions.GetBool(ctx, store, permissions.SectionSubOverride, "alice", false) {
		t.Error("alice should carry the override")
	}
	if permissions.GetBool(ctx, store, permissions.SectionSubOverride, "bob", true) {
		t.Error("bob's stale override should be cleared")
	}
	if len(rec.events) != 1 {
		t.Fatalf("events = %+v, want one assertion", rec.events)
	}
	if ev, ok := rec.events[0].(permissions.SpecialUserEvent); !ok || ev.Username != "alice" || !ev.Subscriber {
		t.Errorf("event = %+v", rec.events[0])
	}
	if ok, _ := store.Exists(ctx, permissions.SectionSubOverride, "broken"); ok {
		t.Error("failed lookup must not write")
	}
}

func TestCheckDedupesAndRechecks(t *testing.T) {
	helix := &fakeHelix{}
	c := New(helix, db.NewMemoryStore(), "b1", Options{QueueSize: 1, Recheck: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Check("alice")
	c.Check("alice")
	c.Check("bob") // queue full
	if len(c.queue) != 1 {
		t.Fatalf("queue length = %d, want 1", len(c.queue))
	}
	<-c.queue
	c.done("alice", true)

	c.Check("alice")
	if len(c.queue) != 0 {
		t.Error("recently checked user queued again")
	}
	now = now.Add(2 * time.Minute)
	c.Check("alice")
	if len(c.queue) != 1 {
		t.Error("user not rechecked after the recheck interval")
	}
	c.Check("bob")
	if len(c.queue) != 1 {
		t.Error("overflowing check should have been dropped")
	}
}

func TestPruneForgetsExpiredChecks(t *testing.T) {
	c := New(&fakeHelix{}, db.NewMemoryStore(), "b1", Options{Recheck: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.done("alice", true)
	now = now.Add(30 * time.Second)
	c.done("bob", true)

	if n := c.prune(); n != 0 {
		t.Errorf("pruned %d fresh entries, want 0", n)
	}
	now = now.Add(45 * time.Second)
	if n := c.prune(); n != 1 {
		t.Errorf("pruned %d entries, want 1 (alice)", n)
	}
	c.mu.Lock()
	_, aliceKept := c.checked["alice"]
	_, bobKept := c.checked["bob"]
	size := len(c.checked)
	c.mu.Unlock()
	if aliceKept || !bobKept || size != 1 {
		t.Errorf("checked = alice:%v bob:%v size:%d", aliceKept, bobKept, size)
	}

	now = now.Add(time.Hour)
	c.prune()
	c.mu.Lock()
	size = len(c.checked)
	c.mu.Unlock()
	if size != 0 {
		t.Errorf("checked size = %d after every window expired, want 0", size)
	}

	c.Check("alice")
	if len(c.queue) != 1 {
		t.Error("pruned user should be checkable again")
	}
}

func TestDisabled(t *testing.T) {
	c := New(nil, db.NewMemoryStore(), "", Options{})
	if c.Enabled() {
		t.Fatal("checker without helix should be disabled")
	}
	c.Check("alice")
	if len(c.queue) != 0 {
		t.Error("disabled checker queued work")
	}
}

func TestRunProcessesQueue(t *testing.T) {
	helix := &fakeHelix{subs: map[string]bool{"id-a": true, "id-c": true}}
	store := db.NewMemoryStore()
	c := New(helix, store, "b1", Options{Concurrency: 2})
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, rec.sink) }()

	for _, n := range []string{"a", "b", "c"} {
		c.Check(n)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec.mu.Lock()
		n := len(rec.events)
		rec.mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(rec.events) != 2 {
		t.Errorf("events = %+v, want 2 assertions", rec.events)
	}
}
