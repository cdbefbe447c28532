package session

import (
	"testing"
	"time"

	"github.com/ggoodman/mcp-engine-go/transport"
	"github.com/ggoodman/mcp-engine-go/transport/transporttest"
)

func TestRegistryCreateGetRemove(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	s := r.Create(transport.KindStreamable, WithUserID("u1"))
	if s.ID() == "" {
		t.Fatal("expected id")
	}
	got, ok := r.Get(s.ID())
	if !ok || got != s {
		t.Fatal("lookup failed")
	}
	if got.UserID() != "u1" {
		t.Fatalf("user = %q", got.UserID())
	}

	if !r.Remove(s.ID()) {
		t.Fatal("remove should report true")
	}
	if s.Active() {
		t.Fatal("removed session should be closed")
	}
	if _, ok := r.Get(s.ID()); ok {
		t.Fatal("removed session still visible")
	}
	if r.Remove("missing") {
		t.Fatal("remove of unknown id should report false")
	}
	if _, ok := r.Get(""); ok {
		t.Fatal("empty id should not resolve")
	}
}

func TestRegistryRange(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	for range 3 {
		r.Create(transport.KindSSE)
	}
	n := 0
	r.Range(func(*Session) bool {
		n++
		return true
	})
	if n != 3 {
		t.Fatalf("ranged over %d sessions", n)
	}
}

func TestRegistryEvictsOnlyOverflow(t *testing.T) {
	r := NewRegistry(WithMaxSessions(3))
	defer r.Close()

	var sessions []*Session
	for range 4 {
		sessions = append(sessions, r.Create(transport.KindStreamable))
		time.Sleep(time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sessions[0].Active() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sessions[0].Active() {
		t.Fatal("least recently used session was not evicted")
	}

	time.Sleep(50 * time.Millisecond)
	for i, s := range sessions[1:] {
		if !s.Active() {
			t.Fatalf("session %d evicted, only the overflow should go", i+1)
		}
	}
	if n := r.Len(); n != 3 {
		t.Fatalf("len = %d, want 3", n)
	}
}

func TestRegistryIdleTTL(t *testing.T) {
	r := NewRegistry(WithIdleTTL(20 * time.Millisecond))
	defer r.Close()

	s := r.Create(transport.KindStreamable)
	time.Sleep(40 * time.Millisecond)
	if _, ok := r.Get(s.ID()); ok {
		t.Fatal("expired session should not resolve")
	}
	if s.Active() {
		t.Fatal("expired session should be closed on lookup")
	}
}

func TestRegistryIdleTTLSparesOpenStreams(t *testing.T) {
	r := NewRegistry(WithIdleTTL(20 * time.Millisecond))
	defer r.Close()

	sse := r.Create(transport.KindSSE)
	sse.SetPushTransport(transporttest.NewRecorder())
	subscribed := r.Create(transport.KindStreamable)
	subscribed.Subscribe("https://foo", transporttest.NewRecorder())
	idle := r.Create(transport.KindStreamable)

	time.Sleep(40 * time.Millisecond)

	seen := map[string]bool{}
	r.Range(func(s *Session) bool {
		seen[s.ID()] = true
		return true
	})
	if !seen[sse.ID()] || !seen[subscribed.ID()] {
		t.Fatalf("sessions with open streams should stay visible, saw %v", seen)
	}
	if seen[idle.ID()] {
		t.Fatal("idle session without a stream should expire")
	}

	for _, s := range []*Session{sse, subscribed} {
		got, ok := r.Get(s.ID())
		if !ok || got != s || !s.Active() {
			t.Fatalf("session %s should resolve and stay active", s.ID())
		}
	}
}
