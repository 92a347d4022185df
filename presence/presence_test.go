package presence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache(ttl time.Duration) (*Cache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := New(ttl)
	c.now = clk.now
	return c, clk
}

func TestTouchAndExpire(t *testing.T) {
	c, clk := newTestCache(time.Minute)
	c.Touch("Alice", " bob ", "")

	if !c.Has("alice") || !c.Has("BOB") {
		t.Fatal("touched names should be live")
	}
	if c.Has("carol") {
		t.Error("unknown name is live")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}

	clk.t = clk.t.Add(59 * time.Second)
	c.Touch("bob")
	clk.t = clk.t.Add(2 * time.Second)
	if c.Has("alice") {
		t.Error("alice should have expired")
	}
	if !c.Has("bob") {
		t.Error("bob was refreshed and should be live")
	}
	if n := c.Prune(); n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
}

func TestPinAndRemove(t *testing.T) {
	c, clk := newTestCache(time.Minute)
	c.Pin("ModBot")
	c.Touch("modbot", "alice")
	c.Remove("modbot")
	c.Remove("alice")
	clk.t = clk.t.Add(time.Hour)

	if !c.Has("modbot") {
		t.Error("pinned name must stay live")
	}
	if c.Has("alice") {
		t.Error("removed name is live")
	}
}

func TestReplace(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Touch("old")
	c.Replace([]string{"New", "other"})
	if c.Has("old") {
		t.Error("Replace kept a stale name")
	}
	if !c.Has("new") || !c.Has("other") || c.Len() != 2 {
		t.Error("Replace did not install the new set")
	}
}

func TestPollReplacesAndSurvivesErrors(t *testing.T) {
	c := New(time.Minute)
	c.Touch("stale")
	var calls atomic.Int32
	lister := ListerFunc(func(context.Context) ([]string, error) {
		if calls.Add(1) == 2 {
			return nil, errors.New("helix down")
		}
		return []string{"alice", "bob"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Poll(ctx, c, lister, 5*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Poll returned %v", err)
	}
	if calls.Load() < 3 {
		t.Fatalf("lister called %d times", calls.Load())
	}
	if c.Has("stale") || !c.Has("alice") || !c.Has("bob") {
		t.Error("poller did not keep the chatters list")
	}
}

func TestPollDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Poll(ctx, New(0), ListerFunc(func(context.Context) ([]string, error) {
			t.Error("lister called while disabled")
			return nil, nil
		}), 0)
	}()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Poll = %v", err)
	}
}
