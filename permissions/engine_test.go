package permissions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startEngine(t *testing.T, e *Engine) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("engine did not stop")
		}
	}
}

func TestEngineRunSeedsAndProcesses(t *testing.T) {
	e, store := newTestEngine(t, Options{})
	cancel := startEngine(t, e)
	ctx := context.Background()

	for _, ev := range []Event{
		JoinEvent{Username: "alice"},
		ModeEvent{Username: "alice", Mode: "o", Add: true},
		MessageEvent{Sender: "bob"},
	} {
		if err := e.Submit(ctx, ev); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	var alice, bot GroupID
	var bobSeen bool
	err := e.Do(ctx, func(context.Context) {
		alice = e.Permissions().GroupID("alice")
		bot = e.Permissions().GroupID("modbot")
		bobSeen = e.Permissions().UserExists("bob")
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if alice != Moderator || bot != Administrator || !bobSeen {
		t.Errorf("alice=%d bot=%d bobSeen=%v", alice, bot, bobSeen)
	}
	if v, _, _ := store.Get(ctx, SectionGroups, "0"); v != "Caster" {
		t.Errorf("groups/0 = %q, want Caster", v)
	}

	cancel()
	if e.Permissions().Registry().Len() != 0 {
		t.Error("registry not cleared on shutdown")
	}
	if err := e.Submit(ctx, JoinEvent{Username: "late"}); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("Submit after stop = %v, want ErrEngineStopped", err)
	}
	if err := e.Do(ctx, func(context.Context) {}); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("Do after stop = %v, want ErrEngineStopped", err)
	}
}

func TestEngineSubmitHonoursContext(t *testing.T) {
	e, _ := newTestEngine(t, Options{QueueSize: 1})
	ctx := context.Background()
	if err := e.Submit(ctx, JoinEvent{Username: "a"}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := e.Submit(cctx, JoinEvent{Username: "b"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit on full queue = %v, want deadline exceeded", err)
	}
}

func TestEngineSweepOnTicker(t *testing.T) {
	presence := newFakePresence("alice")
	e, _ := newTestEngine(t, Options{Presence: presence, GCInterval: 10 * time.Millisecond})
	cancel := startEngine(t, e)
	defer cancel()
	ctx := context.Background()

	_ = e.Submit(ctx, JoinEvent{Username: "alice"})
	_ = e.Submit(ctx, JoinEvent{Username: "bob"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var bob, alice bool
		_ = e.Do(ctx, func(context.Context) {
			bob = e.Permissions().UserExists("bob")
			alice = e.Permissions().UserExists("alice")
		})
		if !bob && alice {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sweep did not evict bob")
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	presence := newFakePresence("alice", "carol")
	e, store := newTestEngine(t, Options{Presence: presence})
	p := e.Permissions()

	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		e.Dispatch(ctx, JoinEvent{Username: name})
	}
	p.SetGroup(ctx, "bob", int(Regular))

	if n := e.Sweep(ctx); n != 2 {
		t.Errorf("Sweep evicted %d, want 2", n)
	}
	if p.UserExists("bob") || p.UserExists("dave") {
		t.Error("absent users still cached")
	}
	if !p.UserExists("alice") || !p.UserExists("carol") {
		t.Error("live users evicted")
	}
	if got, _ := persistedGroup(t, store, "bob"); got != Viewer {
		t.Errorf("bob persisted = %d, want Viewer", got)
	}
	if _, ok := persistedGroup(t, store, "dave"); ok {
		t.Error("sweep created a record for dave")
	}
	if n := e.Sweep(ctx); n != 0 {
		t.Errorf("second sweep evicted %d", n)
	}
}

func TestSweepWithoutPresence(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, Options{})
	e.Dispatch(ctx, JoinEvent{Username: "alice"})
	if n := e.Sweep(ctx); n != 0 || !e.Permissions().UserExists("alice") {
		t.Error("sweep without presence must keep everyone")
	}
}

func TestWritesThroughDoWithConcurrentReaders(t *testing.T) {
	e, store := newTestEngine(t, Options{})
	cancel := startEngine(t, e)
	defer cancel()
	p := e.Permissions()
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = p.GroupID("user")
					_ = p.UsernamesInGroup(Moderator)
					_ = p.IsMod("user", nil)
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		g := Moderator
		if i%2 == 1 {
			g = Regular
		}
		if err := e.Do(ctx, func(ctx context.Context) { p.SetGroup(ctx, "user", int(g)) }); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	close(stop)
	wg.Wait()

	if got := p.GroupID("user"); got != Regular {
		t.Errorf("group = %v, want Regular", got)
	}
	if got, _ := persistedGroup(t, store, "user"); got != Regular {
		t.Errorf("persisted = %v, want Regular", got)
	}
}
