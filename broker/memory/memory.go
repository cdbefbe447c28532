// Package memory provides an in-process broker.Broker for single-node
// deployments and tests.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/mcp-engine-go/broker"
)

// DefaultMaxHistory bounds the events retained per namespace for resumption.
const DefaultMaxHistory = 1024

// Broker implements broker.Broker with channels. State is process-local.
type Broker struct {
	mu           sync.RWMutex
	namespaces   map[string]*namespace
	eventCounter atomic.Int64
	maxHistory   int
}

type namespace struct {
	mu          sync.RWMutex
	messages    []broker.MessageEnvelope
	subscribers map[*subscription]struct{}
}

type subscription struct {
	ch     chan broker.MessageEnvelope
	cancel context.CancelFunc
}

// Option configures a Broker.
type Option func(*Broker)

// WithMaxHistory overrides DefaultMaxHistory.
func WithMaxHistory(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.maxHistory = n
		}
	}
}

// New creates an empty broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		namespaces: make(map[string]*namespace),
		maxHistory: DefaultMaxHistory,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) namespace(name string) *namespace {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns, ok := b.namespaces[name]
	if !ok {
		ns = &namespace{subscribers: make(map[*subscription]struct{})}
		b.namespaces[name] = ns
	}
	return ns
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, namespaceName string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	envelope := broker.MessageEnvelope{
		ID:   strconv.FormatInt(b.eventCounter.Add(1), 10),
		Data: append([]byte(nil), data...),
	}

	ns := b.namespace(namespaceName)
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.messages = append(ns.messages, envelope)
	if over := len(ns.messages) - b.maxHistory; over > 0 {
		ns.messages = append(ns.messages[:0:0], ns.messages[over:]...)
	}

	// Skip subscribers that are backed up rather than block the publisher.
	for sub := range ns.subscribers {
		select {
		case sub.ch <- envelope:
		default:
		}
	}
	return envelope.ID, nil
}

// Subscribe implements broker.Broker.
func (b *Broker) Subscribe(ctx context.Context, namespaceName string, lastEventID string, handler broker.MessageHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ns := b.namespace(namespaceName)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub := &subscription{ch: make(chan broker.MessageEnvelope, 100), cancel: cancel}

	ns.mu.Lock()
	var backlog []broker.MessageEnvelope
	if lastEventID != "" {
		start := -1
		for i, msg := range ns.messages {
			if msg.ID == lastEventID {
				start = i + 1
				break
			}
		}
		if start < 0 {
			ns.mu.Unlock()
			return fmt.Errorf("namespace %q: %w: %s", namespaceName, broker.ErrUnknownEventID, lastEventID)
		}
		backlog = append(backlog, ns.messages[start:]...)
	}
	ns.subscribers[sub] = struct{}{}
	ns.mu.Unlock()

	defer func() {
		ns.mu.Lock()
		delete(ns.subscribers, sub)
		ns.mu.Unlock()
	}()

	for _, env := range backlog {
		if err := handler(subCtx, env); err != nil {
			return err
		}
	}

	for {
		select {
		case <-subCtx.Done():
			// Cleanup cancels only the subscription context.
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		case env := <-sub.ch:
			if err := handler(subCtx, env); err != nil {
				return err
			}
		}
	}
}

// Cleanup implements broker.Broker.
func (b *Broker) Cleanup(ctx context.Context, namespaceName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	ns, ok := b.namespaces[namespaceName]
	delete(b.namespaces, namespaceName)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	for sub := range ns.subscribers {
		sub.cancel()
	}
	ns.subscribers = make(map[*subscription]struct{})
	ns.messages = nil
	return nil
}

var _ broker.Broker = (*Broker)(nil)
