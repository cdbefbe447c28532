// Package transporttest provides in-memory stand-ins for the HTTP
// collaborator and for transports, for use in tests of packages that push
// messages to clients.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ggoodman/mcp-engine-go/transport"
)

// Event is one event emitted on a Stream.
type Event struct {
	Name string
	Data []byte
}

// Stream records events. Disconnect simulates the client going away.
type Stream struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	// FailErr, when set, is returned by Send.
	FailErr error
}

var _ transport.Stream = (*Stream)(nil)

// NewStream returns an open stream.
func NewStream() *Stream {
	return &Stream{notify: make(chan struct{}, 1), done: make(chan struct{})}
}

func (s *Stream) Send(event string, data []byte) error {
	s.mu.Lock()
	if s.FailErr != nil {
		err := s.FailErr
		s.mu.Unlock()
		return err
	}
	s.events = append(s.events, Event{Name: event, Data: append([]byte(nil), data...)})
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *Stream) Done() <-chan struct{} { return s.done }

// Disconnect closes Done.
func (s *Stream) Disconnect() { s.once.Do(func() { close(s.done) }) }

// Events returns a copy of the recorded events.
func (s *Stream) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// WaitForEvents blocks until at least n events were recorded or the timeout
// elapses, and returns what was recorded.
func (s *Stream) WaitForEvents(n int, timeout time.Duration) []Event {
	deadline := time.After(timeout)
	for {
		evs := s.Events()
		if len(evs) >= n {
			return evs
		}
		select {
		case <-s.notify:
		case <-deadline:
			return s.Events()
		}
	}
}

// Exchange is an in-memory transport.Exchange.
type Exchange struct {
	Ctx     context.Context
	Headers map[string]string
	Queries map[string]string

	mu         sync.Mutex
	respHeader map[string]string
	status     int
	body       []byte
	stream     *Stream
}

var _ transport.Exchange = (*Exchange)(nil)

// NewExchange returns an exchange bound to ctx.
func NewExchange(ctx context.Context) *Exchange {
	return &Exchange{
		Ctx:        ctx,
		Headers:    map[string]string{},
		Queries:    map[string]string{},
		respHeader: map[string]string{},
	}
}

func (e *Exchange) Context() context.Context  { return e.Ctx }
func (e *Exchange) Header(name string) string { return e.Headers[name] }
func (e *Exchange) Query(name string) string  { return e.Queries[name] }

func (e *Exchange) SetHeader(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.respHeader[name] = value
}

func (e *Exchange) WriteJSON(status int, body []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != 0 || e.stream != nil {
		return errors.New("response already started")
	}
	e.status = status
	e.body = append([]byte(nil), body...)
	return nil
}

func (e *Exchange) OpenStream() (transport.Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != 0 || e.stream != nil {
		return nil, errors.New("response already started")
	}
	e.stream = NewStream()
	return e.stream, nil
}

// Status returns the status written by WriteJSON, or 0.
func (e *Exchange) Status() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Body returns the body written by WriteJSON.
func (e *Exchange) Body() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.body
}

// ResponseHeader returns a header set through SetHeader.
func (e *Exchange) ResponseHeader(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.respHeader[name]
}

// Stream returns the stream opened through OpenStream, or nil.
func (e *Exchange) Stream() *Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream
}

// Recorder is a transport.Transport that records every message sent and can
// optionally answer server-initiated requests.
type Recorder struct {
	mu       sync.Mutex
	messages [][]byte
	notify   chan struct{}

	// Respond, when set, is invoked for every sent message that carries a
	// method and an id. It runs on its own goroutine.
	Respond func(method string, id json.RawMessage, params json.RawMessage)

	latch     chan struct{}
	latchOnce sync.Once
	closed    bool
	blocked   chan struct{}
}

var _ transport.Transport = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 64), latch: make(chan struct{}), blocked: make(chan struct{}, 1)}
}

func (r *Recorder) Kind() transport.Kind { return transport.KindStreamable }

func (r *Recorder) OnConnect(context.Context) error { return nil }

func (r *Recorder) OnRequest(transport.Exchange, string) transport.Transport { return r }

func (r *Recorder) Upgrade() error { return nil }

func (r *Recorder) OnDisconnect() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.Unblock()
}

func (r *Recorder) Send(_ context.Context, msg []byte) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return transport.ErrClosed
	}
	r.messages = append(r.messages, append([]byte(nil), msg...))
	respond := r.Respond
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}

	if respond != nil {
		var env struct {
			Method string          `json:"method"`
			ID     json.RawMessage `json:"id"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(msg, &env); err == nil && env.Method != "" && len(env.ID) > 0 {
			go respond(env.Method, env.ID, env.Params)
		}
	}
	return nil
}

func (r *Recorder) Block(timeout time.Duration) bool {
	select {
	case r.blocked <- struct{}{}:
	default:
	}
	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}
	select {
	case <-r.latch:
		return true
	case <-timer:
		return false
	}
}

func (r *Recorder) Unblock() { r.latchOnce.Do(func() { close(r.latch) }) }

// Blocked is signalled whenever Block is entered.
func (r *Recorder) Blocked() <-chan struct{} { return r.blocked }

// Messages returns a copy of every message sent so far.
func (r *Recorder) Messages() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.messages))
	copy(out, r.messages)
	return out
}

// WaitForMessages blocks until at least n messages were sent or the timeout
// elapses.
func (r *Recorder) WaitForMessages(n int, timeout time.Duration) [][]byte {
	deadline := time.After(timeout)
	for {
		msgs := r.Messages()
		if len(msgs) >= n {
			return msgs
		}
		select {
		case <-r.notify:
		case <-deadline:
			return r.Messages()
		}
	}
}

// Methods returns the method of every sent message, empty for responses.
func (r *Recorder) Methods() []string {
	var out []string
	for _, m := range r.Messages() {
		var env struct {
			Method string `json:"method"`
		}
		_ = json.Unmarshal(m, &env)
		out = append(out, env.Method)
	}
	return out
}
