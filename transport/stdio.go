package transport

import (
	"context"
	"io"
	"sync"
	"time"
)

// Stdio writes one JSON-RPC message per line to a single peer. Every message
// of the session, replies and server-initiated requests alike, shares the
// one writer.
type Stdio struct {
	mu sync.Mutex
	w  io.Writer

	closed    chan struct{}
	closeOnce sync.Once
}

var _ Transport = (*Stdio)(nil)

// NewStdio returns a transport writing to w.
func NewStdio(w io.Writer) *Stdio {
	return &Stdio{w: w, closed: make(chan struct{})}
}

func (t *Stdio) Kind() Kind { return KindStdio }

// OnConnect blocks until the transport is disconnected or ctx ends.
func (t *Stdio) OnConnect(ctx context.Context) error {
	select {
	case <-t.closed:
		return nil
	case <-ctx.Done():
		t.OnDisconnect()
		return ctx.Err()
	}
}

// OnDisconnect closes the transport. Later sends fail with ErrClosed.
func (t *Stdio) OnDisconnect() {
	t.closeOnce.Do(func() { close(t.closed) })
}

// OnRequest returns t.
func (t *Stdio) OnRequest(Exchange, string) Transport { return t }

// Send writes msg followed by a newline.
func (t *Stdio) Send(ctx context.Context, msg []byte) error {
	if msg == nil {
		return nil
	}
	select {
	case <-t.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	line := make([]byte, 0, len(msg)+1)
	line = append(append(line, msg...), '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.w.Write(line)
	return err
}

func (t *Stdio) Upgrade() error { return nil }

// Block returns immediately; the pipe outlives every request.
func (t *Stdio) Block(time.Duration) bool { return true }

func (t *Stdio) Unblock() {}

// Closed is closed once the transport has been disconnected.
func (t *Stdio) Closed() <-chan struct{} { return t.closed }
