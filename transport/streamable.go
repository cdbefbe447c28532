package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ggoodman/mcp-engine-go/internal/jsonrpc"
)

// Streamable is bound to a single POST. The final response to the bound
// request is written as plain JSON unless something forced an upgrade
// first: any other message (a nested request, a notification) or an
// explicit Upgrade switches the response to a one-shot event stream that
// lives until the transport is disconnected.
type Streamable struct {
	ex        Exchange
	requestID string
	log       *slog.Logger

	mu     sync.Mutex
	stream Stream
	done   bool

	latch       chan struct{}
	unblockOnce sync.Once
}

var _ Transport = (*Streamable)(nil)

// NewStreamable binds a transport to ex. requestID is the id of the request
// being answered, empty when the POST carried a notification or response.
func NewStreamable(ex Exchange, requestID string, log *slog.Logger) *Streamable {
	if log == nil {
		log = slog.Default()
	}
	return &Streamable{
		ex:        ex,
		requestID: requestID,
		log:       log,
		latch:     make(chan struct{}),
	}
}

func (t *Streamable) Kind() Kind { return KindStreamable }

// OnConnect is a no-op; the HTTP response itself is the connection.
func (t *Streamable) OnConnect(context.Context) error { return nil }

// OnDisconnect completes the response and releases any Block.
func (t *Streamable) OnDisconnect() {
	t.Unblock()
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
}

// OnRequest returns a fresh transport bound to ex.
func (t *Streamable) OnRequest(ex Exchange, requestID string) Transport {
	return NewStreamable(ex, requestID, t.log)
}

// Send writes msg as the JSON reply when it is the final response and no
// stream is open, and as an SSE event otherwise.
func (t *Streamable) Send(ctx context.Context, msg []byte) error {
	if msg == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return ErrClosed
	}

	if t.stream == nil && t.isFinalResponse(msg) {
		t.done = true
		if err := t.ex.WriteJSON(http.StatusOK, msg); err != nil {
			return err
		}
		return nil
	}

	if err := t.upgradeLocked(); err != nil {
		return err
	}
	select {
	case <-t.stream.Done():
		t.done = true
		return ErrClosed
	default:
	}
	return t.stream.Send("message", msg)
}

// Upgrade opens the one-shot event stream if it is not open yet.
func (t *Streamable) Upgrade() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrClosed
	}
	return t.upgradeLocked()
}

func (t *Streamable) upgradeLocked() error {
	if t.stream != nil {
		return nil
	}
	s, err := t.ex.OpenStream()
	if err != nil {
		return err
	}
	t.stream = s
	t.log.DebugContext(t.ex.Context(), "transport.streamable.upgrade", slog.String("request_id", t.requestID))
	return nil
}

// Upgraded reports whether the response switched to an event stream.
func (t *Streamable) Upgraded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stream != nil
}

// Block waits on the single-count latch.
func (t *Streamable) Block(timeout time.Duration) bool {
	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}
	select {
	case <-t.latch:
		return true
	case <-timer:
		return false
	case <-t.ex.Context().Done():
		return false
	}
}

// Unblock releases the latch. Later calls are no-ops.
func (t *Streamable) Unblock() {
	t.unblockOnce.Do(func() { close(t.latch) })
}

func (t *Streamable) isFinalResponse(msg []byte) bool {
	if t.requestID == "" {
		return false
	}
	var env struct {
		Method string             `json:"method"`
		ID     *jsonrpc.RequestID `json:"id"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return false
	}
	return env.Method == "" && env.ID.String() == t.requestID
}
