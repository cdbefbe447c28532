package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultSSEQueueSize = 256

// SSE is the legacy transport: one long-lived event stream per session,
// opened by GET, while the client posts messages to a separate endpoint.
type SSE struct {
	stream   Stream
	endpoint string
	log      *slog.Logger

	queue     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

var _ Transport = (*SSE)(nil)

// SSEOption configures an SSE transport.
type SSEOption func(*SSE)

// WithSSELogger sets the logger used by the pump loop.
func WithSSELogger(l *slog.Logger) SSEOption {
	return func(t *SSE) {
		if l != nil {
			t.log = l
		}
	}
}

// WithSSEQueueSize bounds the number of messages waiting to be written.
func WithSSEQueueSize(n int) SSEOption {
	return func(t *SSE) {
		if n > 0 {
			t.queue = make(chan []byte, n)
		}
	}
}

// NewSSE binds a transport to an open stream. endpoint is the URL the client
// must POST to, already carrying the sessionId query parameter.
func NewSSE(stream Stream, endpoint string, opts ...SSEOption) *SSE {
	t := &SSE{
		stream:   stream,
		endpoint: endpoint,
		log:      slog.Default(),
		queue:    make(chan []byte, defaultSSEQueueSize),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func (t *SSE) Kind() Kind { return KindSSE }

// OnConnect announces the POST endpoint and then writes queued messages in
// FIFO order until a nil poison marker is dequeued, the transport is closed,
// the client disconnects or ctx ends.
func (t *SSE) OnConnect(ctx context.Context) error {
	if err := t.stream.Send("endpoint", []byte(t.endpoint)); err != nil {
		t.log.ErrorContext(ctx, "transport.sse.endpoint.fail", slog.String("err", err.Error()))
		t.OnDisconnect()
		return err
	}
	t.log.DebugContext(ctx, "transport.sse.connect", slog.String("endpoint", t.endpoint))

	for {
		select {
		case msg := <-t.queue:
			if msg == nil {
				t.log.DebugContext(ctx, "transport.sse.poison")
				return nil
			}
			if err := t.stream.Send("message", msg); err != nil {
				t.log.InfoContext(ctx, "transport.sse.write.fail", slog.String("err", err.Error()))
				t.OnDisconnect()
				return err
			}
		case <-t.closed:
			return nil
		case <-t.stream.Done():
			t.OnDisconnect()
			return nil
		case <-ctx.Done():
			t.OnDisconnect()
			return ctx.Err()
		}
	}
}

// OnDisconnect closes the transport and enqueues the poison marker.
func (t *SSE) OnDisconnect() {
	t.closeOnce.Do(func() {
		select {
		case t.queue <- nil:
		default:
		}
		close(t.closed)
	})
}

// OnRequest returns t: every message for an SSE session travels over the
// session's single stream.
func (t *SSE) OnRequest(Exchange, string) Transport { return t }

// Send enqueues msg for the pump loop. It never blocks: when the queue is
// full the message is dropped and ErrQueueFull returned.
func (t *SSE) Send(ctx context.Context, msg []byte) error {
	if msg == nil {
		return nil
	}
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	select {
	case t.queue <- msg:
		return nil
	default:
		t.log.WarnContext(ctx, "transport.sse.overflow", slog.Int("queue_size", cap(t.queue)), slog.Int("bytes", len(msg)))
		return ErrQueueFull
	}
}

// Upgrade is a no-op: the stream is already long-lived.
func (t *SSE) Upgrade() error { return nil }

// Block returns immediately; an SSE session never needs to hold an HTTP
// response open.
func (t *SSE) Block(time.Duration) bool { return true }

// Unblock is a no-op.
func (t *SSE) Unblock() {}

// Closed is closed once the transport has been disconnected.
func (t *SSE) Closed() <-chan struct{} { return t.closed }
