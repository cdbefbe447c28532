package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-engine-go/broker"
	"github.com/ggoodman/mcp-engine-go/features"
	"github.com/ggoodman/mcp-engine-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/mcpserver"
	"github.com/ggoodman/mcp-engine-go/session"
)

// UpdatesNamespace is the broker namespace carrying resource updates
// between instances.
const UpdatesNamespace = "resources:updated"

type updateEvent struct {
	Origin string `json:"origin"`
	URI    string `json:"uri"`
}

// NotifyResourceUpdated pushes notifications/resources/updated to every local
// session subscribed to uri and, when a broker is configured, relays the
// update to other instances. It returns the number of local sessions
// notified.
func (e *Engine) NotifyResourceUpdated(ctx context.Context, uri string) int {
	n := features.BroadcastResourceUpdated(ctx, e.reg, uri)
	if e.broker == nil {
		return n
	}
	b, err := json.Marshal(updateEvent{Origin: e.id, URI: uri})
	if err != nil {
		e.log.ErrorContext(ctx, "engine.notify.marshal.fail", slog.String("uri", uri), slog.String("err", err.Error()))
		return n
	}
	if _, err := e.broker.Publish(ctx, UpdatesNamespace, b); err != nil {
		e.log.ErrorContext(ctx, "engine.notify.publish.fail", slog.String("uri", uri), slog.String("err", err.Error()))
	}
	return n
}

var listChangedMethods = map[mcpserver.ListKind]mcp.Method{
	mcpserver.ListTools:     mcp.ToolsListChangedNotificationMethod,
	mcpserver.ListPrompts:   mcp.PromptsListChangedNotificationMethod,
	mcpserver.ListResources: mcp.ResourcesListChangedNotificationMethod,
}

// NotifyListChanged sends the list_changed notification for kind to every
// initialized session that holds a long-lived channel. Streamable HTTP
// sessions have no channel to push on between requests and are skipped.
func (e *Engine) NotifyListChanged(ctx context.Context, kind mcpserver.ListKind) int {
	method, ok := listChangedMethods[kind]
	if !ok {
		return 0
	}
	note, err := jsonrpc.NewNotification(string(method), nil)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.notify.marshal.fail", slog.String("method", string(method)), slog.String("err", err.Error()))
		return 0
	}
	payload, err := json.Marshal(note)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.notify.marshal.fail", slog.String("method", string(method)), slog.String("err", err.Error()))
		return 0
	}

	n := 0
	e.reg.Range(func(sess *session.Session) bool {
		if sess.State() != session.StateInitialized {
			return true
		}
		tr := sess.PushTransport()
		if tr == nil {
			return true
		}
		if err := tr.Send(ctx, payload); err != nil {
			e.log.InfoContext(ctx, "engine.notify.list_changed.fail", slog.String("session_id", sess.ID()), slog.String("err", err.Error()))
			return true
		}
		n++
		return true
	})
	e.log.DebugContext(ctx, "engine.notify.list_changed", slog.String("method", string(method)), slog.Int("sessions", n))
	return n
}

// Run forwards collection changes as list_changed notifications and, with a
// broker configured, applies resource updates published by other instances.
// It blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if e.broker != nil {
		go e.relayUpdates(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case kind, ok := <-e.changes:
			if !ok {
				<-ctx.Done()
				return ctx.Err()
			}
			e.NotifyListChanged(ctx, kind)
		}
	}
}

func (e *Engine) relayUpdates(ctx context.Context) {
	var last string
	for {
		err := e.broker.Subscribe(ctx, UpdatesNamespace, last, func(ctx context.Context, env broker.MessageEnvelope) error {
			last = env.ID
			var ev updateEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				e.log.InfoContext(ctx, "engine.relay.invalid", slog.String("err", err.Error()))
				return nil
			}
			if ev.Origin == e.id {
				return nil
			}
			features.BroadcastResourceUpdated(ctx, e.reg, ev.URI)
			return nil
		})
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, broker.ErrUnknownEventID) {
			last = ""
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			e.log.ErrorContext(ctx, "engine.relay.fail", slog.String("err", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
