package features

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-engine-go/internal/validation"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/schema"
)

// ElicitAction is the user's answer to an elicitation.
type ElicitAction string

const (
	ElicitActionAccept  ElicitAction = "accept"
	ElicitActionDecline ElicitAction = "decline"
	ElicitActionCancel  ElicitAction = "cancel"
)

// ElicitResult carries the action and, when accepted, the submitted values.
type ElicitResult struct {
	Action  ElicitAction
	Content map[string]any
}

// Elicitation asks the user, through the client, for structured input.
type Elicitation struct {
	set *Set
}

// Elicit sends elicitation/create with the given message and JSON Schema.
// The default wait is five seconds.
func (e *Elicitation) Elicit(ctx context.Context, message string, requestedSchema json.RawMessage, opts ...CallOption) (*ElicitResult, error) {
	if !e.set.sess.Capabilities().Elicitation {
		return nil, &CapabilityError{Capability: "elicitation"}
	}
	if len(requestedSchema) == 0 {
		requestedSchema = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	requestedSchema, err := validation.ElicitationSchema(requestedSchema)
	if err != nil {
		return nil, err
	}

	raw, err := e.set.call(ctx, mcp.ElicitationCreateMethod, mcp.ElicitRequest{Message: message, RequestedSchema: requestedSchema}, e.set.cfg.ElicitationTimeout, opts)
	if err != nil {
		return nil, err
	}
	var res mcp.ElicitResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode elicitation result: %w", err)
	}

	out := &ElicitResult{Content: res.Content}
	switch ElicitAction(res.Action) {
	case ElicitActionAccept, ElicitActionDecline, ElicitActionCancel:
		out.Action = ElicitAction(res.Action)
	default:
		out.Action = ElicitActionCancel
	}
	if out.Action != ElicitActionAccept {
		out.Content = nil
	}
	return out, nil
}

// ElicitInto derives the requested schema from T and, when the user
// accepts, decodes the submitted values into dst.
func ElicitInto[T any](ctx context.Context, e *Elicitation, message string, dst *T, opts ...CallOption) (ElicitAction, error) {
	sch, err := schema.For[T]()
	if err != nil {
		return ElicitActionCancel, err
	}
	res, err := e.Elicit(ctx, message, sch, opts...)
	if err != nil {
		return ElicitActionCancel, err
	}
	if res.Action != ElicitActionAccept {
		return res.Action, nil
	}
	b, err := json.Marshal(res.Content)
	if err != nil {
		return ElicitActionCancel, fmt.Errorf("encode elicitation content: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return ElicitActionCancel, fmt.Errorf("decode elicitation content: %w", err)
	}
	return res.Action, nil
}
