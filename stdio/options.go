package stdio

import (
	"io"
	"log/slog"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO replaces stdin and stdout. A nil argument keeps the default.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger sets the logger. Logs must not go to the writer carrying
// protocol messages.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithUserProvider sets how the peer is identified.
func WithUserProvider(up UserProvider) Option {
	return func(h *Handler) {
		if up != nil {
			h.userProvider = up
		}
	}
}

// WithUserID identifies the peer as id. An empty id keeps the current
// provider.
func WithUserID(id string) Option {
	if id == "" {
		return func(*Handler) {}
	}
	return WithUserProvider(StaticUser(id))
}
