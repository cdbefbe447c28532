// Package features is the per-request toolbox handed to tool, prompt,
// resource and completion handlers. A Set is bound to one inbound request:
// messages it sends travel on the transport serving that request, and
// cancellation notifications for that request reach it through the session.
//
// Individual features are constructed on first use.
package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/mcp-engine-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/session"
	"github.com/ggoodman/mcp-engine-go/transport"
)

const (
	DefaultElicitationTimeout = 5 * time.Second
	DefaultRootsTimeout       = 30 * time.Second
	DefaultSamplingTimeout    = 60 * time.Second
	DefaultSubscribeTimeout   = 5 * time.Minute
)

var (
	// ErrNotSupported is the root of every CapabilityError.
	ErrNotSupported = errors.New("not supported by client")
	// ErrTimeout is returned when the client does not answer a
	// server-initiated request in time.
	ErrTimeout = errors.New("timed out waiting for client")
	// ErrNoTransport is returned when the request that owns a Set has
	// already completed and no session-wide transport exists.
	ErrNoTransport = errors.New("no transport bound to request")
)

// CapabilityError reports a server-initiated request the client did not
// negotiate support for.
type CapabilityError struct {
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s %s", e.Capability, ErrNotSupported.Error())
}

func (e *CapabilityError) Unwrap() error { return ErrNotSupported }

// ClientError is a JSON-RPC error returned by the client in answer to a
// server-initiated request.
type ClientError struct {
	Method  string
	Code    int
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client error for %s (%d): %s", e.Method, e.Code, e.Message)
}

// Config carries the timeouts used by nested calls.
type Config struct {
	ElicitationTimeout time.Duration
	RootsTimeout       time.Duration
	SamplingTimeout    time.Duration
	SubscribeTimeout   time.Duration
}

// DefaultConfig returns the default timeouts.
func DefaultConfig() Config {
	return Config{
		ElicitationTimeout: DefaultElicitationTimeout,
		RootsTimeout:       DefaultRootsTimeout,
		SamplingTimeout:    DefaultSamplingTimeout,
		SubscribeTimeout:   DefaultSubscribeTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ElicitationTimeout <= 0 {
		c.ElicitationTimeout = d.ElicitationTimeout
	}
	if c.RootsTimeout <= 0 {
		c.RootsTimeout = d.RootsTimeout
	}
	if c.SamplingTimeout <= 0 {
		c.SamplingTimeout = d.SamplingTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = d.SubscribeTimeout
	}
	return c
}

// Set is the feature bundle of one inbound request.
type Set struct {
	reg       *session.Registry
	sess      *session.Session
	requestID string
	tr        transport.Transport
	cfg       Config
	log       *slog.Logger

	progress      func() *Progress
	cancellation  func() *Cancellation
	roots         func() *Roots
	sampling      func() *Sampling
	elicitation   func() *Elicitation
	logger        func() *Logger
	subscriptions func() *Subscriptions
}

var _ session.Features = (*Set)(nil)

// Create builds the Set for requestID, binds it to the transport the session
// recorded for that request (the session-wide transport when none was
// recorded) and caches it on the session.
func Create(reg *session.Registry, sess *session.Session, requestID string, cfg Config) *Set {
	tr, ok := sess.Transport(requestID)
	if !ok {
		tr = sess.PushTransport()
	}
	s := &Set{
		reg:       reg,
		sess:      sess,
		requestID: requestID,
		tr:        tr,
		cfg:       cfg.withDefaults(),
		log:       sess.Logger().With(slog.String("request_id", requestID)),
	}
	s.progress = sync.OnceValue(func() *Progress { return &Progress{set: s} })
	s.cancellation = sync.OnceValue(func() *Cancellation { return newCancellation() })
	s.roots = sync.OnceValue(func() *Roots { return &Roots{set: s} })
	s.sampling = sync.OnceValue(func() *Sampling { return &Sampling{set: s} })
	s.elicitation = sync.OnceValue(func() *Elicitation { return &Elicitation{set: s} })
	s.logger = sync.OnceValue(func() *Logger { return &Logger{set: s} })
	s.subscriptions = sync.OnceValue(func() *Subscriptions { return &Subscriptions{set: s} })
	if requestID != "" {
		sess.StoreFeatures(requestID, s)
	}
	return s
}

func (s *Set) Session() *session.Session      { return s.sess }
func (s *Set) RequestID() string              { return s.requestID }
func (s *Set) Transport() transport.Transport { return s.tr }
func (s *Set) Progress() *Progress            { return s.progress() }
func (s *Set) Cancellation() *Cancellation    { return s.cancellation() }
func (s *Set) Roots() *Roots                  { return s.roots() }
func (s *Set) Sampling() *Sampling            { return s.sampling() }
func (s *Set) Elicitation() *Elicitation      { return s.elicitation() }
func (s *Set) Logger() *Logger                { return s.logger() }
func (s *Set) Subscriptions() *Subscriptions  { return s.subscriptions() }

// RequestCancelled records a client cancellation of the owning request.
func (s *Set) RequestCancelled(reason string) {
	s.Cancellation().cancel(reason)
	s.log.Info("features.cancellation.requested", slog.String("reason", reason))
}

// notify sends a notification on the Set's transport.
func (s *Set) notify(ctx context.Context, method mcp.Method, params any) error {
	if s.tr == nil {
		return ErrNoTransport
	}
	return sendNotification(ctx, s.tr, method, params)
}

func sendNotification(ctx context.Context, tr transport.Transport, method mcp.Method, params any) error {
	note, err := jsonrpc.NewNotification(string(method), params)
	if err != nil {
		return err
	}
	b, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	return tr.Send(ctx, b)
}

// CallOption adjusts a single server-initiated request.
type CallOption func(*callConfig)

type callConfig struct {
	timeout time.Duration
}

// WithTimeout overrides the default wait for the client's answer.
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// call sends a request to the client on the Set's transport and waits for
// the correlated response.
func (s *Set) call(ctx context.Context, method mcp.Method, params any, timeout time.Duration, opts []CallOption) (json.RawMessage, error) {
	cc := callConfig{timeout: timeout}
	for _, o := range opts {
		if o != nil {
			o(&cc)
		}
	}
	if s.tr == nil {
		return nil, ErrNoTransport
	}

	log := s.log.With(slog.String("method", string(method)))
	start := time.Now()

	id := s.sess.JSONRPCID()
	req, err := jsonrpc.NewRequest(id, string(method), params)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}

	release := s.sess.Expect(id)
	defer release()

	if err := s.tr.Send(ctx, b); err != nil {
		log.ErrorContext(ctx, "features.call.write.fail", slog.String("err", err.Error()))
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	payload, err := s.sess.PollResponse(ctx, id, cc.timeout)
	if errors.Is(err, session.ErrResponseTimeout) {
		log.InfoContext(ctx, "features.call.timeout", slog.Duration("timeout", cc.timeout))
		return nil, fmt.Errorf("%s: %w", method, ErrTimeout)
	}
	if err != nil {
		log.InfoContext(ctx, "features.call.fail", slog.String("err", err.Error()))
		return nil, err
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		log.ErrorContext(ctx, "features.call.unmarshal_response.fail", slog.String("err", err.Error()))
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if resp.Error != nil {
		log.InfoContext(ctx, "features.call.client_error", slog.Int("code", int(resp.Error.Code)), slog.String("message", resp.Error.Message))
		return nil, &ClientError{Method: string(method), Code: int(resp.Error.Code), Message: resp.Error.Message}
	}

	log.DebugContext(ctx, "features.call.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return resp.Result, nil
}
