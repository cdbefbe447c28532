package mcpserver

import (
	"context"

	"github.com/ggoodman/mcp-engine-go/features"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// maxCompletionValues caps a completion/complete answer.
const maxCompletionValues = 100

// CompletionHandler suggests values for arg.
type CompletionHandler func(ctx context.Context, f *features.Set, arg mcp.CompleteArgument) ([]string, error)

// Completion offers argument completion for one prompt or resource
// template.
type Completion struct {
	ref     mcp.CompleteReference
	handler CompletionHandler
}

// NewPromptCompletion completes arguments of the named prompt.
func NewPromptCompletion(prompt string, h CompletionHandler) *Completion {
	return &Completion{ref: mcp.CompleteReference{Type: mcp.RefTypePrompt, Name: prompt}, handler: h}
}

// NewResourceCompletion completes placeholders of the resource template
// whose raw template string is uri.
func NewResourceCompletion(uri string, h CompletionHandler) *Completion {
	return &Completion{ref: mcp.CompleteReference{Type: mcp.RefTypeResource, URI: uri}, handler: h}
}

// Matches reports whether ref names this completion's target.
func (c *Completion) Matches(ref mcp.CompleteReference) bool {
	if ref.Type != c.ref.Type {
		return false
	}
	if c.ref.Type == mcp.RefTypePrompt {
		return ref.Name == c.ref.Name
	}
	return ref.URI == c.ref.URI
}

func (c *Completion) key() string { return c.ref.Type + ":" + c.ref.Name + c.ref.URI }

// Complete runs the handler and truncates the answer.
func (c *Completion) Complete(ctx context.Context, f *features.Set, arg mcp.CompleteArgument) (mcp.Completion, error) {
	values, err := c.handler(ctx, f, arg)
	if err != nil {
		return mcp.Completion{}, err
	}
	out := mcp.Completion{Values: values, Total: len(values)}
	if out.Values == nil {
		out.Values = []string{}
	}
	if len(out.Values) > maxCompletionValues {
		out.Values = out.Values[:maxCompletionValues]
		out.HasMore = true
	}
	return out, nil
}
