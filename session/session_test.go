package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-engine-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/transport"
	"github.com/ggoodman/mcp-engine-go/transport/transporttest"
)

func TestJSONRPCIDMonotonic(t *testing.T) {
	s := New("s1", transport.KindStreamable)

	const n = 200
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := s.JSONRPCID().String()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(seen))
	}
}

func TestLifecycle(t *testing.T) {
	s := New("s1", transport.KindStreamable)
	if s.State() != StateUninitialized {
		t.Fatalf("state = %s", s.State())
	}
	if err := s.CompleteInitialize(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := s.BeginInitialize(mcp.Version20250326, Capabilities{Sampling: true}, mcp.ImplementationInfo{Name: "c"}); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateInitializing || s.Version() != mcp.Version20250326 {
		t.Fatalf("state = %s version = %s", s.State(), s.Version())
	}
	if err := s.BeginInitialize(mcp.Version20250618, Capabilities{}, mcp.ImplementationInfo{}); err == nil {
		t.Fatal("second initialize should fail")
	}
	if err := s.CompleteInitialize(); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteInitialize(); err != nil {
		t.Fatalf("repeat initialized should be a no-op, got %v", err)
	}
	if !s.Capabilities().Sampling {
		t.Fatal("capabilities not recorded")
	}
}

func TestPollResponseDelivers(t *testing.T) {
	s := New("s1", transport.KindStreamable)
	id := s.JSONRPCID()
	s.Expect(id)

	go func() {
		other := jsonrpc.NewRequestID(int64(9999))
		s.OfferResponse(other, []byte(`{"other":true}`))
		s.OfferResponse(id, []byte(`{"ok":true}`))
	}()

	got, err := s.PollResponse(t.Context(), id, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"ok":true}` {
		t.Fatalf("got %s", got)
	}
}

func TestPollResponseTimeoutSynthesizesError(t *testing.T) {
	s := New("s1", transport.KindStreamable)
	id := s.JSONRPCID()

	start := time.Now()
	got, err := s.PollResponse(t.Context(), id, 30*time.Millisecond)
	if !errors.Is(err, ErrResponseTimeout) {
		t.Fatalf("expected ErrResponseTimeout, got %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("returned before the deadline")
	}
	var resp jsonrpc.Response
	if err := json.Unmarshal(got, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInternalError || resp.Error.Message != TimeoutMessage {
		t.Fatalf("unexpected payload %s", got)
	}
	if resp.ID.String() != id.String() {
		t.Fatalf("id = %s, want %s", resp.ID, id)
	}

	if s.OfferResponse(id, []byte(`{}`)) {
		t.Fatal("waiter must be removed after timeout")
	}
}

func TestPollResponseMismatchedDoesNotResetDeadline(t *testing.T) {
	s := New("s1", transport.KindStreamable)
	id := s.JSONRPCID()
	s.Expect(id)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		other := jsonrpc.NewRequestID("noise")
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
				s.OfferResponse(other, []byte(`{}`))
			}
		}
	}()

	start := time.Now()
	if _, err := s.PollResponse(t.Context(), id, 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if el := time.Since(start); el > 500*time.Millisecond {
		t.Fatalf("deadline drifted: %s", el)
	}
}

func TestPollResponseDisconnect(t *testing.T) {
	s := New("s1", transport.KindStreamable)
	id := s.JSONRPCID()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Close()
	}()
	if _, err := s.PollResponse(t.Context(), id, time.Second); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
}

func TestPollResponseContext(t *testing.T) {
	s := New("s1", transport.KindStreamable)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := s.PollResponse(ctx, s.JSONRPCID(), time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type fakeFeatures struct{ reason string }

func (f *fakeFeatures) RequestCancelled(reason string) { f.reason = reason }

func TestClearRequest(t *testing.T) {
	s := New("s1", transport.KindStreamable)
	tr := transporttest.NewRecorder()

	s.OnRequest("1", tr)
	s.StoreFeatures("1", &fakeFeatures{})
	s.BeforeFeatureRequest("1")

	if got, ok := s.Transport("1"); !ok || got != tr {
		t.Fatal("transport not bound")
	}
	if _, ok := s.Features("1"); !ok {
		t.Fatal("features not cached")
	}

	s.AfterFeatureRequest("1")
	if _, ok := s.Transport("1"); ok {
		t.Fatal("transport entry should be cleared")
	}
	if _, ok := s.Features("1"); ok {
		t.Fatal("features entry should be cleared")
	}
	if s.InFlight() != 0 {
		t.Fatalf("in flight = %d", s.InFlight())
	}
}

func TestRootsDirtyFlag(t *testing.T) {
	s := New("s1", transport.KindStreamable)
	if _, dirty := s.Roots(); !dirty {
		t.Fatal("roots start dirty")
	}
	s.SetRoots([]mcp.Root{{URI: "file:///a"}})
	roots, dirty := s.Roots()
	if dirty || len(roots) != 1 {
		t.Fatalf("roots = %v dirty = %v", roots, dirty)
	}
	s.MarkRootsDirty()
	if _, dirty := s.Roots(); !dirty {
		t.Fatal("expected dirty after MarkRootsDirty")
	}
}

func TestSubscribeIdempotentAndCloseUnblocks(t *testing.T) {
	s := New("s1", transport.KindStreamable)
	a := transporttest.NewRecorder()
	b := transporttest.NewRecorder()

	if !s.Subscribe("file:///x", a) {
		t.Fatal("first subscribe should bind")
	}
	if s.Subscribe("file:///x", b) {
		t.Fatal("second subscribe should keep the first binding")
	}
	if got, _ := s.Subscription("file:///x"); got != a {
		t.Fatal("binding replaced")
	}

	released := make(chan bool, 1)
	go func() { released <- a.Block(time.Second) }()
	<-a.Blocked()
	s.Close()
	if !<-released {
		t.Fatal("Close should unblock subscription transports")
	}
	if s.Active() {
		t.Fatal("session should be inactive after Close")
	}
	s.Close()
}
