package features

import (
	"sync"
	"sync/atomic"
)

// Cancellation is cooperative: it records that the client asked to cancel
// the owning request, and handlers poll it.
type Cancellation struct {
	requested atomic.Bool
	reason    atomic.Pointer[string]
	done      chan struct{}
	once      sync.Once
}

func newCancellation() *Cancellation {
	return &Cancellation{done: make(chan struct{})}
}

func (c *Cancellation) cancel(reason string) {
	c.once.Do(func() {
		c.reason.Store(&reason)
		c.requested.Store(true)
		close(c.done)
	})
}

// IsRequested reports whether the client cancelled the request.
func (c *Cancellation) IsRequested() bool { return c.requested.Load() }

// Reason returns the reason the client gave, if any.
func (c *Cancellation) Reason() string {
	if r := c.reason.Load(); r != nil {
		return *r
	}
	return ""
}

// Done is closed once cancellation is requested.
func (c *Cancellation) Done() <-chan struct{} { return c.done }
