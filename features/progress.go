package features

import (
	"context"
	"sync"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// Progress emits notifications/progress for the owning request. It only
// emits once armed with the progress token the client sent in the
// request's _meta, and disarms itself once progress reaches the total.
type Progress struct {
	set *Set

	mu    sync.Mutex
	total float64
	token mcp.ProgressToken
	armed bool
}

// Total sets the expected total. Zero means unknown.
func (p *Progress) Total(total float64) *Progress {
	p.mu.Lock()
	p.total = total
	p.mu.Unlock()
	return p
}

// Token arms emission. A nil token leaves the tracker disarmed.
func (p *Progress) Token(token mcp.ProgressToken) *Progress {
	p.mu.Lock()
	if token != nil {
		p.token = token
		p.armed = true
	}
	p.mu.Unlock()
	return p
}

// Armed reports whether Send would currently emit.
func (p *Progress) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.armed
}

// Send reports progress. It is a no-op when disarmed or when progress
// exceeds a known total.
func (p *Progress) Send(ctx context.Context, progress float64) error {
	return p.SendMessage(ctx, progress, "")
}

// SendMessage is Send with a human-readable status message.
func (p *Progress) SendMessage(ctx context.Context, progress float64, message string) error {
	p.mu.Lock()
	if !p.armed || (p.total > 0 && progress > p.total) {
		p.mu.Unlock()
		return nil
	}
	params := mcp.ProgressNotificationParams{
		ProgressToken: p.token,
		Progress:      progress,
		Total:         p.total,
	}
	if p.set.sess.Version().AtLeast(mcp.Version20250326) {
		params.Message = message
	}
	if p.total > 0 && progress >= p.total {
		p.armed = false
	}
	p.mu.Unlock()

	return p.set.notify(ctx, mcp.ProgressNotificationMethod, params)
}
