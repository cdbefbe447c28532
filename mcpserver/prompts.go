package mcpserver

import (
	"context"

	"github.com/ggoodman/mcp-engine-go/content"
	"github.com/ggoodman/mcp-engine-go/features"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// PromptResult is the rendered prompt.
type PromptResult struct {
	Description string
	Messages    []content.PromptMessage
}

// PromptHandler renders a prompt from its arguments.
type PromptHandler func(ctx context.Context, f *features.Set, args map[string]string) (*PromptResult, error)

// Prompt is a prompt template descriptor.
type Prompt struct {
	name        string
	title       string
	description string
	arguments   []mcp.PromptArgument
	handler     PromptHandler
}

// PromptOption configures a Prompt.
type PromptOption func(*Prompt)

func WithPromptTitle(title string) PromptOption {
	return func(p *Prompt) { p.title = title }
}

func WithPromptDescription(desc string) PromptOption {
	return func(p *Prompt) { p.description = desc }
}

// WithPromptArgument declares an argument. Required arguments are checked
// before the handler runs.
func WithPromptArgument(name, description string, required bool) PromptOption {
	return func(p *Prompt) {
		p.arguments = append(p.arguments, mcp.PromptArgument{Name: name, Description: description, Required: required})
	}
}

// NewPrompt builds a prompt descriptor.
func NewPrompt(name string, h PromptHandler, opts ...PromptOption) *Prompt {
	p := &Prompt{name: name, handler: h}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Prompt) Name() string { return p.name }

// Descriptor renders the prompt in its latest wire shape.
func (p *Prompt) Descriptor() mcp.Prompt {
	return mcp.Prompt{
		Name:        p.name,
		Title:       p.title,
		Description: p.description,
		Arguments:   p.arguments,
	}
}

// Get validates args and renders the prompt.
func (p *Prompt) Get(ctx context.Context, f *features.Set, args map[string]string) (*PromptResult, error) {
	for _, a := range p.arguments {
		if a.Required && args[a.Name] == "" {
			return nil, NewProtocolError(CodeInvalidParams, "missing required argument %q", a.Name)
		}
	}
	if p.handler == nil {
		return nil, NewProtocolError(CodeInternalError, "prompt %q has no handler", p.name)
	}
	res, err := p.handler(ctx, f, args)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &PromptResult{}
	}
	if res.Description == "" {
		res.Description = p.description
	}
	return res, nil
}
