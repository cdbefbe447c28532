// Package transport defines how a session pushes JSON-RPC payloads to a
// client. SSE is the legacy long-lived event stream paired with a separate
// POST endpoint. Streamable answers each POST directly or upgrades that
// single response to a one-shot event stream. Stdio writes newline-delimited
// messages to a pipe for subprocess servers.
//
// Transports never see net/http directly. The HTTP layer adapts each request
// into an Exchange, which is enough to read headers, write a JSON reply or
// open a push Stream.
package transport

import (
	"context"
	"errors"
	"time"
)

// Kind identifies a transport flavor.
type Kind string

const (
	KindSSE        Kind = "sse"
	KindStreamable Kind = "streamable-http"
	KindStdio      Kind = "stdio"
)

var (
	// ErrClosed is returned when sending on a transport whose client has
	// gone away or whose response has already been completed.
	ErrClosed = errors.New("transport closed")

	// ErrQueueFull is returned when a message is dropped because the
	// client is not draining its stream fast enough.
	ErrQueueFull = errors.New("transport queue full")
)

// Stream is a one-directional push channel to the client.
type Stream interface {
	// Send emits one event. Implementations flush after every event.
	Send(event string, data []byte) error
	// Done is closed when the client disconnects.
	Done() <-chan struct{}
}

// Exchange is one HTTP request/response pair as seen by a transport.
type Exchange interface {
	Context() context.Context
	Header(name string) string
	Query(name string) string
	SetHeader(name, value string)
	// WriteJSON completes the response with a JSON body.
	WriteJSON(status int, body []byte) error
	// OpenStream switches the response to an event stream. It may be called
	// at most once, and not after WriteJSON.
	OpenStream() (Stream, error)
}

// Transport is the per-session or per-request push abstraction the session
// and features layers talk to.
type Transport interface {
	Kind() Kind
	// OnConnect runs whatever the transport needs for the lifetime of the
	// connection. For SSE it blocks, pumping queued messages, until the
	// transport is disconnected or ctx ends.
	OnConnect(ctx context.Context) error
	// OnDisconnect tears the transport down. It is idempotent.
	OnDisconnect()
	// OnRequest returns the transport that should carry messages produced
	// while handling the request with the given id (empty for
	// notifications).
	OnRequest(ex Exchange, requestID string) Transport
	// Send delivers one serialized JSON-RPC message.
	Send(ctx context.Context, msg []byte) error
	// Upgrade makes sure later messages can still be pushed after the final
	// response to the bound request has been sent.
	Upgrade() error
	// Block suspends the caller until Unblock is called, the timeout
	// elapses or the client goes away. It reports whether Unblock ended the
	// wait.
	Block(timeout time.Duration) bool
	// Unblock releases a pending or future Block.
	Unblock()
}
