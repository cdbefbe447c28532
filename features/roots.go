package features

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// Roots lists the client's workspace roots. Results are cached on the
// session until the client reports a change.
type Roots struct {
	set *Set
}

// List returns the client's roots, querying the client only when the cache
// is stale.
func (r *Roots) List(ctx context.Context, opts ...CallOption) ([]mcp.Root, error) {
	if !r.set.sess.Capabilities().Roots {
		return nil, &CapabilityError{Capability: "roots"}
	}
	if cached, dirty := r.set.sess.Roots(); !dirty {
		return cached, nil
	}

	raw, err := r.set.call(ctx, mcp.RootsListMethod, struct{}{}, r.set.cfg.RootsTimeout, opts)
	if err != nil {
		return nil, err
	}
	var res mcp.ListRootsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode roots/list result: %w", err)
	}
	r.set.sess.SetRoots(res.Roots)
	return res.Roots, nil
}
