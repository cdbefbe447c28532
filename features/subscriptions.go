package features

import (
	"context"
	"log/slog"

	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/session"
)

// Subscriptions manages resources/updated delivery. A subscription binds a
// URI to the transport of the request that created it; for Streamable HTTP
// that request is held open until the client unsubscribes.
type Subscriptions struct {
	set *Set
}

// Subscribe binds uri to the owning request's transport. Subscribing twice
// to the same URI keeps the original binding and reports false.
func (s *Subscriptions) Subscribe(uri string) (bool, error) {
	if s.set.tr == nil {
		return false, ErrNoTransport
	}
	if !s.set.sess.Subscribe(uri, s.set.tr) {
		return false, nil
	}
	if err := s.set.tr.Upgrade(); err != nil {
		s.set.sess.Unsubscribe(uri)
		return false, err
	}
	s.set.log.Debug("features.subscriptions.subscribe", slog.String("uri", uri))
	return true, nil
}

// Unsubscribe drops the binding for uri and releases the request holding it.
func (s *Subscriptions) Unsubscribe(uri string) bool {
	tr, ok := s.set.sess.Unsubscribe(uri)
	if !ok {
		return false
	}
	tr.Unblock()
	s.set.log.Debug("features.subscriptions.unsubscribe", slog.String("uri", uri))
	return true
}

// BlockSubscribe holds the owning request open until the subscription is
// released or the subscribe timeout elapses. Transports without a hold
// return at once and keep the binding. A hold that times out or loses its
// connection drops the binding, since the transport can no longer deliver.
func (s *Subscriptions) BlockSubscribe(uri string) bool {
	tr, ok := s.set.sess.Subscription(uri)
	if !ok || tr != s.set.tr {
		return false
	}
	if tr.Block(s.set.cfg.SubscribeTimeout) {
		return true
	}
	if cur, ok := s.set.sess.Subscription(uri); ok && cur == tr {
		s.set.sess.Unsubscribe(uri)
	}
	s.set.log.Debug("features.subscriptions.hold_expired", slog.String("uri", uri))
	return false
}

// SendSessionUpdate notifies only the owning session.
func (s *Subscriptions) SendSessionUpdate(ctx context.Context, uri string) bool {
	return sendUpdate(ctx, s.set.sess, uri)
}

// SendUpdate notifies every session subscribed to uri and returns how many
// were notified.
func (s *Subscriptions) SendUpdate(ctx context.Context, uri string) int {
	return BroadcastResourceUpdated(ctx, s.set.reg, uri)
}

// BroadcastResourceUpdated notifies every live session in reg that is
// subscribed to uri.
func BroadcastResourceUpdated(ctx context.Context, reg *session.Registry, uri string) int {
	if reg == nil {
		return 0
	}
	n := 0
	reg.Range(func(sess *session.Session) bool {
		if sendUpdate(ctx, sess, uri) {
			n++
		}
		return true
	})
	return n
}

func sendUpdate(ctx context.Context, sess *session.Session, uri string) bool {
	tr, ok := sess.Subscription(uri)
	if !ok {
		return false
	}
	if err := sendNotification(ctx, tr, mcp.ResourcesUpdatedNotificationMethod, mcp.ResourceUpdatedNotification{URI: uri}); err != nil {
		sess.Logger().InfoContext(ctx, "features.subscriptions.update.fail", slog.String("uri", uri), slog.String("err", err.Error()))
		return false
	}
	return true
}
