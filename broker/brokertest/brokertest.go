// Package brokertest is a conformance suite for broker.Broker
// implementations.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-engine-go/broker"
)

// BrokerFactory creates a fresh broker for one subtest.
type BrokerFactory func(t *testing.T) broker.Broker

// RunBrokerTests runs the suite against brokers built by factory.
func RunBrokerTests(t *testing.T, factory BrokerFactory) {
	t.Run("PublishAndSubscribeFromBeginning", func(t *testing.T) {
		testPublishAndSubscribeFromBeginning(t, factory)
	})
	t.Run("PublishAndSubscribeFromLastEventID", func(t *testing.T) {
		testPublishAndSubscribeFromLastEventID(t, factory)
	})
	t.Run("MultipleSubscribersToSameNamespace", func(t *testing.T) {
		testMultipleSubscribersToSameNamespace(t, factory)
	})
	t.Run("NamespaceIsolation", func(t *testing.T) {
		testNamespaceIsolation(t, factory)
	})
	t.Run("SubscriptionContextCancellation", func(t *testing.T) {
		testSubscriptionContextCancellation(t, factory)
	})
	t.Run("HandlerErrorStopsSubscription", func(t *testing.T) {
		testHandlerErrorStopsSubscription(t, factory)
	})
	t.Run("ResumeFromNonExistentEventID", func(t *testing.T) {
		testResumeFromNonExistentEventID(t, factory)
	})
}

// collector records envelopes and cancels once it has want of them.
type collector struct {
	mu     sync.Mutex
	got    []broker.MessageEnvelope
	want   int
	cancel context.CancelFunc
}

func (c *collector) handle(_ context.Context, env broker.MessageEnvelope) error {
	c.mu.Lock()
	c.got = append(c.got, env)
	done := len(c.got) >= c.want
	c.mu.Unlock()
	if done {
		c.cancel()
	}
	return nil
}

func (c *collector) envelopes() []broker.MessageEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]broker.MessageEnvelope(nil), c.got...)
}

func subscribe(ctx context.Context, b broker.Broker, namespace, lastEventID string, h broker.MessageHandler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- b.Subscribe(ctx, namespace, lastEventID, h) }()
	return done
}

func waitDone(t *testing.T, done <-chan error, want error) {
	t.Helper()
	select {
	case err := <-done:
		if !errors.Is(err, want) {
			t.Fatalf("subscription ended with %v, want %v", err, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscription did not complete within timeout")
	}
}

func testPublishAndSubscribeFromBeginning(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespace := "test-namespace"
	c := &collector{want: 1, cancel: cancel}
	done := subscribe(ctx, b, namespace, "", c.handle)

	// Give the subscription time to start.
	time.Sleep(100 * time.Millisecond)

	eventID, err := b.Publish(ctx, namespace, []byte(`{"uri":"file:///a"}`))
	if err != nil {
		t.Fatalf("Failed to publish message: %v", err)
	}
	if eventID == "" {
		t.Fatal("Expected non-empty event ID")
	}

	waitDone(t, done, context.Canceled)

	got := c.envelopes()
	if len(got) != 1 || got[0].ID != eventID || string(got[0].Data) != `{"uri":"file:///a"}` {
		t.Fatalf("received %+v", got)
	}
}

func testPublishAndSubscribeFromLastEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespace := "test-namespace-2"
	eventID1, err := b.Publish(ctx, namespace, []byte("one"))
	if err != nil {
		t.Fatalf("Failed to publish first message: %v", err)
	}
	eventID2, err := b.Publish(ctx, namespace, []byte("two"))
	if err != nil {
		t.Fatalf("Failed to publish second message: %v", err)
	}

	c := &collector{want: 1, cancel: cancel}
	waitDone(t, subscribe(ctx, b, namespace, eventID1, c.handle), context.Canceled)

	got := c.envelopes()
	if len(got) != 1 || got[0].ID != eventID2 || string(got[0].Data) != "two" {
		t.Fatalf("received %+v", got)
	}
}

func testMultipleSubscribersToSameNamespace(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	namespace := "test-namespace-3"
	const subscribers = 3

	var cs []*collector
	var dones []<-chan error
	for range subscribers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c := &collector{want: 2, cancel: cancel}
		cs = append(cs, c)
		dones = append(dones, subscribe(ctx, b, namespace, "", c.handle))
	}

	time.Sleep(100 * time.Millisecond)

	for i := range 2 {
		if _, err := b.Publish(context.Background(), namespace, []byte(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Failed to publish: %v", err)
		}
	}

	for i, done := range dones {
		waitDone(t, done, context.Canceled)
		got := cs[i].envelopes()
		if len(got) != 2 || string(got[0].Data) != "m0" || string(got[1].Data) != "m1" {
			t.Fatalf("subscriber %d received %+v", i, got)
		}
	}
}

func testNamespaceIsolation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctxA, cancelA := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelA()
	ctxB, cancelB := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelB()

	a := &collector{want: 1, cancel: cancelA}
	bb := &collector{want: 1, cancel: cancelB}
	doneA := subscribe(ctxA, b, "test-namespace-4a", "", a.handle)
	doneB := subscribe(ctxB, b, "test-namespace-4b", "", bb.handle)

	time.Sleep(100 * time.Millisecond)

	if _, err := b.Publish(context.Background(), "test-namespace-4a", []byte("for-a")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Publish(context.Background(), "test-namespace-4b", []byte("for-b")); err != nil {
		t.Fatal(err)
	}

	waitDone(t, doneA, context.Canceled)
	waitDone(t, doneB, context.Canceled)

	if got := a.envelopes(); len(got) != 1 || string(got[0].Data) != "for-a" {
		t.Fatalf("namespace a received %+v", got)
	}
	if got := bb.envelopes(); len(got) != 1 || string(got[0].Data) != "for-b" {
		t.Fatalf("namespace b received %+v", got)
	}
}

func testSubscriptionContextCancellation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	done := subscribe(ctx, b, "test-namespace-5", "", func(context.Context, broker.MessageEnvelope) error { return nil })
	waitDone(t, done, context.DeadlineExceeded)
}

func testHandlerErrorStopsSubscription(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespace := "test-namespace-6"
	expectedErr := errors.New("handler error")
	done := subscribe(ctx, b, namespace, "", func(context.Context, broker.MessageEnvelope) error { return expectedErr })

	time.Sleep(100 * time.Millisecond)

	if _, err := b.Publish(ctx, namespace, []byte("x")); err != nil {
		t.Fatalf("Failed to publish message: %v", err)
	}
	waitDone(t, done, expectedErr)
}

func testResumeFromNonExistentEventID(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	defer cleanupBroker(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := b.Subscribe(ctx, "test-namespace-8", "non-existent-id", func(context.Context, broker.MessageEnvelope) error {
		return nil
	})
	if err == nil {
		t.Fatal("Expected error for non-existent event ID, got nil")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("Subscription should fail immediately for non-existent event ID, not timeout")
	}
}

// cleanupBroker drops the suite's namespaces and closes the broker when it
// has a Close method.
func cleanupBroker(t *testing.T, b broker.Broker) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	namespaces := []string{
		"test-namespace", "test-namespace-2", "test-namespace-3",
		"test-namespace-4a", "test-namespace-4b", "test-namespace-5",
		"test-namespace-6", "test-namespace-8",
	}
	for _, ns := range namespaces {
		if err := b.Cleanup(ctx, ns); err != nil {
			t.Logf("Warning: failed to cleanup namespace %s: %v", ns, err)
		}
	}

	if closer, ok := b.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			t.Logf("Warning: failed to close broker: %v", err)
		}
	}
}
