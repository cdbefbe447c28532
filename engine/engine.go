// Package engine is the JSON-RPC dispatcher. It owns the method table,
// capability negotiation and error translation, and routes client responses
// to the session's correlation layer. The HTTP and stdio surfaces feed it decoded
// envelopes together with the transport that should carry the answer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ggoodman/mcp-engine-go/broker"
	"github.com/ggoodman/mcp-engine-go/features"
	"github.com/ggoodman/mcp-engine-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/internal/logctx"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/mcpserver"
	"github.com/ggoodman/mcp-engine-go/session"
	"github.com/ggoodman/mcp-engine-go/transport"
	"github.com/google/uuid"
)

// Engine dispatches JSON-RPC messages for every session in a registry.
type Engine struct {
	reg    *session.Registry
	srv    *mcpserver.Server
	log    *slog.Logger
	id     string // process-unique, tags broker events
	cfg    features.Config
	broker broker.Broker

	requests      map[mcp.Method]requestHandler
	notifications map[mcp.Method]notificationHandler
	changes       <-chan mcpserver.ListKind
}

// call is the state of one inbound request while its handler runs.
type call struct {
	sess *session.Session
	tr   transport.Transport
	req  *jsonrpc.Request
	id   string
	set  *features.Set

	// after runs once the response has been sent.
	after func()
}

type (
	requestHandler      func(ctx context.Context, c *call) (any, error)
	notificationHandler func(ctx context.Context, sess *session.Session, params json.RawMessage)
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithFeatureConfig sets the timeouts used by nested client calls.
func WithFeatureConfig(cfg features.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithBroker relays resource updates to other instances through b.
func WithBroker(b broker.Broker) Option {
	return func(e *Engine) { e.broker = b }
}

// New builds an engine serving srv to the sessions in reg. Methods are
// registered according to what srv offers at construction time.
func New(reg *session.Registry, srv *mcpserver.Server, opts ...Option) *Engine {
	e := &Engine{
		reg: reg,
		srv: srv,
		log: slog.Default(),
		id:  uuid.NewString(),
		cfg: features.DefaultConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.requests, e.notifications = e.methodTable()
	e.changes = srv.Changes()
	return e
}

func (e *Engine) methodTable() (map[mcp.Method]requestHandler, map[mcp.Method]notificationHandler) {
	req := map[mcp.Method]requestHandler{
		mcp.InitializeMethod:        e.handleInitialize,
		mcp.PingMethod:              e.handlePing,
		mcp.LoggingSetLevelMethod:   e.handleSetLoggingLevel,
		mcp.SessionDisconnectMethod: e.handleDisconnect,
	}
	if e.srv.Tools().Len() > 0 {
		req[mcp.ToolsListMethod] = e.handleToolsList
		req[mcp.ToolsCallMethod] = e.handleToolCall
	}
	if e.srv.HasResources() {
		req[mcp.ResourcesListMethod] = e.handleResourcesList
		req[mcp.ResourcesReadMethod] = e.handleResourcesRead
		req[mcp.ResourcesTemplatesListMethod] = e.handleResourcesTemplatesList
	}
	if e.srv.SubscriptionsEnabled() {
		req[mcp.ResourcesSubscribeMethod] = e.handleResourcesSubscribe
		req[mcp.ResourcesUnsubscribeMethod] = e.handleResourcesUnsubscribe
	}
	if e.srv.Prompts().Len() > 0 {
		req[mcp.PromptsListMethod] = e.handlePromptsList
		req[mcp.PromptsGetMethod] = e.handlePromptsGet
	}
	if e.srv.Completions().Len() > 0 {
		req[mcp.CompletionCompleteMethod] = e.handleCompletionsComplete
	}

	notes := map[mcp.Method]notificationHandler{
		mcp.InitializedNotificationMethod:      e.handleInitialized,
		mcp.CancelledNotificationMethod:        e.handleCancelled,
		mcp.RootsListChangedNotificationMethod: e.handleRootsListChanged,
		mcp.SessionDisconnectMethod:            e.handleDisconnectNotification,
	}
	return req, notes
}

// Registry is the session registry the engine serves.
func (e *Engine) Registry() *session.Registry { return e.reg }

// Handles reports whether method has a request handler.
func (e *Engine) Handles(method string) bool {
	_, ok := e.requests[mcp.Method(method)]
	return ok
}

// HandleRequest runs the handler for req and sends the response on tr. The
// transport and feature set bound to the request id are released on every
// exit path. The returned error reports only a failure to deliver the
// response.
func (e *Engine) HandleRequest(ctx context.Context, sess *session.Session, tr transport.Transport, req *jsonrpc.Request) error {
	start := time.Now()
	id := req.ID.String()
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: id, Type: string(jsonrpc.TypeRequest)})
	log := e.log.With(slog.String("method", req.Method))

	h, ok := e.requests[mcp.Method(req.Method)]
	if !ok {
		log.InfoContext(ctx, "engine.handle_request.unsupported")
		return e.send(ctx, tr, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil))
	}
	if sess.State() == session.StateUninitialized && req.Method != string(mcp.InitializeMethod) && req.Method != string(mcp.PingMethod) {
		log.InfoContext(ctx, "engine.handle_request.uninitialized")
		return e.send(ctx, tr, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "Session not initialized", nil))
	}

	sess.OnRequest(id, tr)
	c := &call{
		sess: sess,
		tr:   tr,
		req:  req,
		id:   id,
		set:  features.Create(e.reg, sess, id, e.cfg),
	}
	sess.BeforeFeatureRequest(id)
	defer sess.AfterFeatureRequest(id)

	result, err := e.invoke(ctx, h, c)

	var resp *jsonrpc.Response
	if err != nil {
		resp = e.errorResponse(ctx, log, req.ID, err)
	} else if resp, err = jsonrpc.NewResultResponse(req.ID, result); err != nil {
		log.ErrorContext(ctx, "engine.handle_request.marshal.fail", slog.String("err", err.Error()))
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	}

	sendErr := e.send(ctx, tr, resp)
	if sendErr == nil && c.after != nil {
		c.after()
	}
	if err == nil && sendErr == nil {
		log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	}
	return sendErr
}

// invoke runs h, turning a panic into an error.
func (e *Engine) invoke(ctx context.Context, h requestHandler, c *call) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.ErrorContext(ctx, "engine.handle_request.panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%v", r)
		}
	}()
	return h(ctx, c)
}

func (e *Engine) send(ctx context.Context, tr transport.Transport, resp *jsonrpc.Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.plumbing.fail", slog.String("err", err.Error()))
		return err
	}
	if err := tr.Send(ctx, b); err != nil {
		e.log.ErrorContext(ctx, "engine.plumbing.fail", slog.String("stage", "send"), slog.String("err", err.Error()))
		return err
	}
	return nil
}

// HandleNotification applies a client notification. Unknown methods are
// ignored.
func (e *Engine) HandleNotification(ctx context.Context, sess *session.Session, note *jsonrpc.Request) {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: note.Method, Type: string(jsonrpc.TypeNotification)})
	h, ok := e.notifications[mcp.Method(note.Method)]
	if !ok {
		e.log.DebugContext(ctx, "engine.handle_notification.ignored", slog.String("method", note.Method))
		return
	}
	sess.Touch()
	h(ctx, sess, note.Params)
}

// HandleResponse routes a client's answer to a server-initiated request to
// whoever is polling for it. Unmatched responses are dropped.
func (e *Engine) HandleResponse(ctx context.Context, sess *session.Session, res *jsonrpc.Response) {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{ID: res.ID.String(), Type: string(jsonrpc.TypeResponse)})
	payload, err := json.Marshal(res)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.handle_response.marshal.fail", slog.String("err", err.Error()))
		return
	}
	if !sess.OfferResponse(res.ID, payload) {
		e.log.InfoContext(ctx, "engine.handle_response.unmatched")
	}
}

// Disconnect removes sess from the registry, closing its transports.
func (e *Engine) Disconnect(ctx context.Context, sess *session.Session) bool {
	ok := e.reg.Remove(sess.ID())
	e.log.InfoContext(ctx, "engine.session.disconnect", slog.String("session_id", sess.ID()), slog.Bool("known", ok))
	return ok
}
