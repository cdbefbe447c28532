// Package broker fans events out across server instances. Each namespace is
// an ordered log; subscribers receive events published after they start, or
// resume after a known event ID.
package broker

import (
	"context"
	"errors"
)

// ErrUnknownEventID is returned by Subscribe when lastEventID is not in the
// namespace's retained history.
var ErrUnknownEventID = errors.New("unknown event id")

// MessageHandler is called for each delivered event. Returning an error
// ends the subscription with that error.
type MessageHandler func(ctx context.Context, envelope MessageEnvelope) error

// Broker publishes to and subscribes on namespaces.
type Broker interface {
	// Publish appends data to namespace and returns the event ID.
	Publish(ctx context.Context, namespace string, data []byte) (eventID string, err error)

	// Subscribe delivers events to handler until ctx ends or the handler
	// fails. With an empty lastEventID delivery starts at the next
	// published event; otherwise it resumes after lastEventID.
	Subscribe(ctx context.Context, namespace string, lastEventID string, handler MessageHandler) error

	// Cleanup drops the namespace's history and ends its subscriptions.
	Cleanup(ctx context.Context, namespace string) error
}

// MessageEnvelope is one event in a namespace.
type MessageEnvelope struct {
	// ID increases monotonically within the namespace.
	ID   string `json:"id"`
	Data []byte `json:"data"`
}
