package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/karlseguin/ccache/v3"

	"github.com/ggoodman/mcp-engine-go/transport"
)

const (
	defaultMaxSessions = 1000
	defaultIdleTTL     = time.Hour
)

// Registry maps session ids to live sessions. It is bounded: when full, the
// least recently used session is evicted, closed and reported as a warning.
type Registry struct {
	cache   *ccache.Cache[*Session]
	log     *slog.Logger
	idleTTL time.Duration
	maxSize int64
	opts    []Option
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxSessions bounds the number of live sessions.
func WithMaxSessions(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxSize = int64(n)
		}
	}
}

// WithIdleTTL sets how long a session may go unused before lookups stop
// returning it. Sessions holding a push transport or a subscription stream
// do not expire while they hold it.
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idleTTL = d
		}
	}
}

// WithRegistryLogger sets the logger for the registry and the sessions it
// creates.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithSessionOptions applies opts to every session the registry creates.
func WithSessionOptions(opts ...Option) RegistryOption {
	return func(r *Registry) { r.opts = append(r.opts, opts...) }
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		log:     slog.Default(),
		idleTTL: defaultIdleTTL,
		maxSize: defaultMaxSessions,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.cache = ccache.New(ccache.Configure[*Session]().
		MaxSize(r.maxSize).
		ItemsToPrune(1).
		OnDelete(r.onDelete))
	return r
}

func (r *Registry) onDelete(item *ccache.Item[*Session]) {
	sess := item.Value()
	if sess == nil || !sess.Active() {
		return
	}
	r.log.Warn("session.registry.evict", slog.String("session_id", sess.ID()), slog.Time("last_active", sess.LastActive()))
	sess.Close()
}

// Create registers a new session with a random id.
func (r *Registry) Create(kind transport.Kind, opts ...Option) *Session {
	all := append([]Option{WithLogger(r.log)}, r.opts...)
	all = append(all, opts...)
	sess := New(uuid.NewString(), kind, all...)
	r.cache.Set(sess.ID(), sess, r.idleTTL)
	r.log.Debug("session.registry.create", slog.String("session_id", sess.ID()), slog.String("kind", string(kind)))
	return sess
}

// Get returns the live session with the given id and extends its idle
// deadline.
func (r *Registry) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	item := r.cache.Get(id)
	if item == nil {
		return nil, false
	}
	sess := item.Value()
	if r.expired(item) || !sess.Active() {
		r.Remove(id)
		return nil, false
	}
	item.Extend(r.idleTTL)
	sess.Touch()
	return sess, true
}

// expired reports whether item is past its idle deadline. A session whose
// client still holds an open stream is extended instead.
func (r *Registry) expired(item *ccache.Item[*Session]) bool {
	if !item.Expired() {
		return false
	}
	sess := item.Value()
	if sess.PushTransport() == nil && len(sess.Subscriptions()) == 0 {
		return true
	}
	item.Extend(r.idleTTL)
	return false
}

// Remove closes and forgets a session. It reports whether the id was known.
func (r *Registry) Remove(id string) bool {
	item := r.cache.Get(id)
	if item == nil {
		return false
	}
	item.Value().Close()
	r.cache.Delete(id)
	return true
}

// Range calls fn for every live session until fn returns false.
func (r *Registry) Range(fn func(*Session) bool) {
	var live []*Session
	r.cache.ForEachFunc(func(_ string, item *ccache.Item[*Session]) bool {
		if !r.expired(item) && item.Value().Active() {
			live = append(live, item.Value())
		}
		return true
	})
	for _, s := range live {
		if !fn(s) {
			return
		}
	}
}

// Len reports the number of tracked sessions.
func (r *Registry) Len() int { return r.cache.ItemCount() }

// Close closes every session and stops the cache's background worker.
func (r *Registry) Close() {
	r.Range(func(s *Session) bool {
		s.Close()
		return true
	})
	r.cache.Clear()
	r.cache.Stop()
}
