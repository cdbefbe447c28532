package mcpserver

import (
	"sync"
)

// ListKind names a listable collection whose contents can change.
type ListKind string

const (
	ListTools     ListKind = "tools"
	ListPrompts   ListKind = "prompts"
	ListResources ListKind = "resources"
)

// ChangeNotifier fans list-changed signals out to subscribers.
type ChangeNotifier struct {
	subscribers   []chan ListKind
	subscribersMu sync.RWMutex
	closed        bool
}

// Notify signals every subscriber that kind changed.
func (cn *ChangeNotifier) Notify(kind ListKind) {
	cn.subscribersMu.RLock()
	defer cn.subscribersMu.RUnlock()

	if cn.closed {
		return
	}

	// Non-blocking so a slow consumer cannot stall the others.
	for _, ch := range cn.subscribers {
		select {
		case ch <- kind:
		default:
		}
	}
}

// Close closes every subscriber channel. Later subscribers receive a closed
// channel.
func (cn *ChangeNotifier) Close() {
	cn.subscribersMu.Lock()
	if cn.closed {
		cn.subscribersMu.Unlock()
		return
	}
	cn.closed = true
	subs := cn.subscribers
	cn.subscribers = nil
	cn.subscribersMu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

// Subscriber registers a new listener.
func (cn *ChangeNotifier) Subscriber() <-chan ListKind {
	cn.subscribersMu.Lock()
	defer cn.subscribersMu.Unlock()

	if cn.closed {
		ch := make(chan ListKind)
		close(ch)
		return ch
	}

	ch := make(chan ListKind, 8)
	cn.subscribers = append(cn.subscribers, ch)
	return ch
}
