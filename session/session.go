// Package session holds per-client protocol state: the negotiated protocol
// revision and capabilities, the lifecycle state, the correlation of
// server-initiated requests with client responses, and the per-request
// bookkeeping that lets nested calls find the transport they must use.
//
// A Session is safe for concurrent use. Sessions are created and looked up
// through a Registry.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-engine-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/internal/wire"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/transport"
)

// State is the lifecycle state of a session.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrDisconnected is returned by PollResponse when the session is closed
	// while a response is awaited.
	ErrDisconnected = errors.New("session disconnected")
	// ErrInvalidTransition is returned when a state change is attempted from
	// an unexpected state.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrResponseTimeout accompanies the payload PollResponse synthesizes
	// when no response arrives in time.
	ErrResponseTimeout = errors.New("response timed out")
)

// TimeoutMessage is the error message of the payload PollResponse
// synthesizes when no response arrives in time.
const TimeoutMessage = "Request timed out"

const defaultMaxInFlight = 1024

// Capabilities records what the client advertised during initialize.
type Capabilities struct {
	Roots            bool
	RootsListChanged bool
	Sampling         bool
	Elicitation      bool
}

// Features is the per-request feature bundle cached against a request id so
// that notifications about that request (cancellation) can reach it.
type Features interface {
	RequestCancelled(reason string)
}

// Session is one client's protocol state.
type Session struct {
	id     string
	userID string
	kind   transport.Kind
	log    *slog.Logger

	state      atomic.Int32
	nextID     atomic.Int64
	lastActive atomic.Int64

	mu         sync.RWMutex
	serializer wire.Serializer
	caps       Capabilities
	clientInfo mcp.ImplementationInfo
	logLevel   mcp.LoggingLevel
	push       transport.Transport

	reqMu       sync.Mutex
	transports  map[string]transport.Transport
	features    map[string]Features
	maxInFlight int

	pendMu  sync.Mutex
	pending map[string]chan []byte

	rootsMu    sync.Mutex
	roots      []mcp.Root
	rootsDirty bool

	subMu sync.Mutex
	subs  map[string]transport.Transport

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Session at creation.
type Option func(*Session)

// WithUserID binds the session to an authenticated principal.
func WithUserID(id string) Option { return func(s *Session) { s.userID = id } }

// WithLogger sets the session's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxInFlight bounds the per-request caches. Exceeding the bound is
// logged; live entries are never evicted.
func WithMaxInFlight(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxInFlight = n
		}
	}
}

// New constructs a session. Most callers should use Registry.Create.
func New(id string, kind transport.Kind, opts ...Option) *Session {
	s := &Session{
		id:          id,
		kind:        kind,
		log:         slog.Default(),
		serializer:  wire.For(mcp.LatestVersion()),
		logLevel:    mcp.LoggingLevelInfo,
		transports:  make(map[string]transport.Transport),
		features:    make(map[string]Features),
		maxInFlight: defaultMaxInFlight,
		pending:     make(map[string]chan []byte),
		rootsDirty:  true,
		subs:        make(map[string]transport.Transport),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.log = s.log.With(slog.String("session_id", id))
	s.Touch()
	return s
}

func (s *Session) ID() string            { return s.id }
func (s *Session) UserID() string        { return s.userID }
func (s *Session) Kind() transport.Kind  { return s.kind }
func (s *Session) State() State          { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{} { return s.done }
func (s *Session) Logger() *slog.Logger  { return s.log }
func (s *Session) Touch()                { s.lastActive.Store(time.Now().UnixNano()) }
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Active reports whether the session has not been closed.
func (s *Session) Active() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// BeginInitialize moves an uninitialized session to initializing and records
// the negotiated revision and client capabilities.
func (s *Session) BeginInitialize(v mcp.ProtocolVersion, caps Capabilities, info mcp.ImplementationInfo) error {
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return fmt.Errorf("%w: initialize from %s", ErrInvalidTransition, s.State())
	}
	s.mu.Lock()
	s.serializer = wire.For(v)
	s.caps = caps
	s.clientInfo = info
	s.mu.Unlock()
	return nil
}

// CompleteInitialize moves an initializing session to initialized. It is a
// no-op when the session is already initialized.
func (s *Session) CompleteInitialize() error {
	if s.state.CompareAndSwap(int32(StateInitializing), int32(StateInitialized)) {
		return nil
	}
	if s.State() == StateInitialized {
		return nil
	}
	return fmt.Errorf("%w: initialized from %s", ErrInvalidTransition, s.State())
}

// Serializer returns the serializer for the negotiated revision.
func (s *Session) Serializer() wire.Serializer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serializer
}

// Version returns the negotiated revision.
func (s *Session) Version() mcp.ProtocolVersion { return s.Serializer().Version() }

// Capabilities returns what the client advertised.
func (s *Session) Capabilities() Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// ClientInfo returns the client's implementation info.
func (s *Session) ClientInfo() mcp.ImplementationInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

// LogLevel returns the minimum level forwarded to the client.
func (s *Session) LogLevel() mcp.LoggingLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logLevel
}

// SetLogLevel changes the minimum level forwarded to the client.
func (s *Session) SetLogLevel(l mcp.LoggingLevel) {
	s.mu.Lock()
	s.logLevel = l
	s.mu.Unlock()
}

// SetPushTransport records the transport used for messages that are not
// tied to any request, such as list-changed notifications. Only SSE
// sessions have one.
func (s *Session) SetPushTransport(t transport.Transport) {
	s.mu.Lock()
	s.push = t
	s.mu.Unlock()
}

// PushTransport returns the session-wide transport, if any.
func (s *Session) PushTransport() transport.Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.push
}

// JSONRPCID allocates the id for the next server-initiated request.
func (s *Session) JSONRPCID() *jsonrpc.RequestID {
	return jsonrpc.NewRequestID(s.nextID.Add(1))
}

// OnRequest binds the transport serving the inbound request id.
func (s *Session) OnRequest(id string, t transport.Transport) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	s.transports[id] = t
	if n := len(s.transports); n > s.maxInFlight {
		s.log.Warn("session.requests.overflow", slog.Int("in_flight", n), slog.Int("max", s.maxInFlight))
	}
}

// Transport returns the transport bound to an inbound request id.
func (s *Session) Transport(id string) (transport.Transport, bool) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	t, ok := s.transports[id]
	return t, ok
}

// StoreFeatures caches the feature bundle created for a request.
func (s *Session) StoreFeatures(id string, f Features) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	s.features[id] = f
}

// Features returns the feature bundle cached for a request.
func (s *Session) Features(id string) (Features, bool) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	f, ok := s.features[id]
	return f, ok
}

// BeforeFeatureRequest runs before a handler receives its feature bundle.
func (s *Session) BeforeFeatureRequest(id string) {
	s.Touch()
	s.log.Debug("session.request.begin", slog.String("request_id", id))
}

// AfterFeatureRequest runs after the handler returned, on every exit path.
func (s *Session) AfterFeatureRequest(id string) {
	s.ClearRequest(id)
	s.log.Debug("session.request.end", slog.String("request_id", id))
}

// ClearRequest drops every cache entry associated with an inbound request id.
func (s *Session) ClearRequest(id string) {
	s.reqMu.Lock()
	delete(s.transports, id)
	delete(s.features, id)
	s.reqMu.Unlock()
}

// InFlight returns the number of inbound requests with cached state.
func (s *Session) InFlight() int {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	return len(s.transports)
}

// Expect registers interest in the response to an outbound request. It must
// be called before the request is sent so that a fast response is not lost.
// The returned func drops the registration; PollResponse also drops it on
// every exit path.
func (s *Session) Expect(id *jsonrpc.RequestID) (release func()) {
	key := id.String()
	s.pendMu.Lock()
	ch, ok := s.pending[key]
	if !ok {
		ch = make(chan []byte, 1)
		s.pending[key] = ch
	}
	s.pendMu.Unlock()
	return func() {
		s.pendMu.Lock()
		if s.pending[key] == ch {
			delete(s.pending, key)
		}
		s.pendMu.Unlock()
	}
}

// OfferResponse hands a client response to whoever awaits its id. Responses
// nobody awaits are discarded; the return value reports delivery.
func (s *Session) OfferResponse(id *jsonrpc.RequestID, payload []byte) bool {
	key := id.String()
	s.pendMu.Lock()
	ch, ok := s.pending[key]
	s.pendMu.Unlock()
	if !ok {
		s.log.Info("session.response.unmatched", slog.String("id", key))
		return false
	}
	select {
	case ch <- payload:
		return true
	default:
		s.log.Info("session.response.duplicate", slog.String("id", key))
		return false
	}
}

// PollResponse waits for the response to an outbound request. On timeout it
// returns a synthesized JSON-RPC error payload together with
// ErrResponseTimeout, so a client reply carrying the same code and message
// is never mistaken for a timeout. It fails with ErrDisconnected if the session closes first. The waiter is
// removed on every exit path.
func (s *Session) PollResponse(ctx context.Context, id *jsonrpc.RequestID, timeout time.Duration) ([]byte, error) {
	key := id.String()
	release := s.Expect(id)
	defer release()

	s.pendMu.Lock()
	ch := s.pending[key]
	s.pendMu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case payload := <-ch:
		return payload, nil
	case <-timer:
		s.log.InfoContext(ctx, "session.poll.timeout", slog.String("id", key), slog.Duration("timeout", timeout))
		b, err := json.Marshal(jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, TimeoutMessage, nil))
		if err != nil {
			return nil, err
		}
		return b, ErrResponseTimeout
	case <-s.done:
		return nil, ErrDisconnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Roots returns the cached roots and whether the cache is stale.
func (s *Session) Roots() ([]mcp.Root, bool) {
	s.rootsMu.Lock()
	defer s.rootsMu.Unlock()
	return append([]mcp.Root(nil), s.roots...), s.rootsDirty
}

// SetRoots replaces the cached roots and marks the cache fresh.
func (s *Session) SetRoots(roots []mcp.Root) {
	s.rootsMu.Lock()
	s.roots = append([]mcp.Root(nil), roots...)
	s.rootsDirty = false
	s.rootsMu.Unlock()
}

// MarkRootsDirty forces the next roots lookup to query the client.
func (s *Session) MarkRootsDirty() {
	s.rootsMu.Lock()
	s.rootsDirty = true
	s.rootsMu.Unlock()
}

// Subscribe binds uri to t. It reports false when uri was already
// subscribed, in which case the existing binding is kept.
func (s *Session) Subscribe(uri string, t transport.Transport) bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subs[uri]; ok {
		return false
	}
	s.subs[uri] = t
	return true
}

// Unsubscribe removes the binding for uri and returns it.
func (s *Session) Unsubscribe(uri string) (transport.Transport, bool) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	t, ok := s.subs[uri]
	delete(s.subs, uri)
	return t, ok
}

// Subscription returns the transport bound to uri.
func (s *Session) Subscription(uri string) (transport.Transport, bool) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	t, ok := s.subs[uri]
	return t, ok
}

// Subscriptions returns the subscribed URIs.
func (s *Session) Subscriptions() []string {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := make([]string, 0, len(s.subs))
	for uri := range s.subs {
		out = append(out, uri)
	}
	return out
}

// Close deactivates the session: pending polls fail with ErrDisconnected,
// held subscription transports are released and the push transport is
// disconnected. It is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.subMu.Lock()
		subs := s.subs
		s.subs = make(map[string]transport.Transport)
		s.subMu.Unlock()
		for _, t := range subs {
			t.Unblock()
		}

		if push := s.PushTransport(); push != nil {
			push.OnDisconnect()
		}
		s.log.Debug("session.close")
	})
}
