package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-engine-go/content"
	"github.com/ggoodman/mcp-engine-go/features"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/schema"
)

// ToolResult is what a tool handler produces. Structured is sent as
// structuredContent to clients that negotiated structured output and as a
// JSON text block otherwise.
type ToolResult struct {
	Content    []content.Content
	Structured any
}

// TextResult is a ToolResult with a single text block.
func TextResult(text string) *ToolResult {
	return &ToolResult{Content: []content.Content{content.Text{Text: text}}}
}

// ToolHandler handles tools/call. Returning a *ToolError produces an
// isError result; any other error becomes a JSON-RPC error.
type ToolHandler func(ctx context.Context, f *features.Set, args json.RawMessage) (*ToolResult, error)

// Tool is a callable tool descriptor.
type Tool struct {
	name        string
	title       string
	description string
	input       *schema.Lazy
	output      *schema.Lazy
	annotations *mcp.ToolAnnotations
	handler     ToolHandler
}

// ToolOption configures a Tool.
type ToolOption func(*Tool)

// WithToolTitle sets the human-readable title.
func WithToolTitle(title string) ToolOption {
	return func(t *Tool) { t.title = title }
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(t *Tool) { t.description = desc }
}

// WithInputSchema sets the input schema as a JSON document.
func WithInputSchema(src string) ToolOption {
	return func(t *Tool) { t.input = schema.NewLazy(src) }
}

// WithOutputSchema sets the output schema as a JSON document.
func WithOutputSchema(src string) ToolOption {
	return func(t *Tool) { t.output = schema.NewLazy(src) }
}

// WithToolAnnotations attaches behavioral hints.
func WithToolAnnotations(a mcp.ToolAnnotations) ToolOption {
	return func(t *Tool) { t.annotations = &a }
}

// NewTool builds a tool with an untyped handler.
func NewTool(name string, h ToolHandler, opts ...ToolOption) *Tool {
	t := &Tool{name: name, handler: h, input: schema.NewLazy("")}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TypedTool builds a tool whose input schema is reflected from A. Arguments
// are decoded strictly; unknown fields produce an isError result.
func TypedTool[A any](name string, fn func(ctx context.Context, f *features.Set, args A) (*ToolResult, error), opts ...ToolOption) *Tool {
	t := NewTool(name, func(ctx context.Context, f *features.Set, raw json.RawMessage) (*ToolResult, error) {
		var a A
		if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&a); err != nil {
				return nil, Errorf("invalid arguments: %v", err)
			}
		}
		return fn(ctx, f, a)
	})
	t.input = schema.NewLazy(string(schema.MustFor[A]()))
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TypedToolWithOutput is TypedTool with an output schema reflected from O.
// The handler's value is returned as structured content.
func TypedToolWithOutput[A, O any](name string, fn func(ctx context.Context, f *features.Set, args A) (O, error), opts ...ToolOption) *Tool {
	t := TypedTool(name, func(ctx context.Context, f *features.Set, args A) (*ToolResult, error) {
		out, err := fn(ctx, f, args)
		if err != nil {
			return nil, err
		}
		return &ToolResult{Structured: out}, nil
	})
	t.output = schema.NewLazy(string(schema.MustFor[O]()))
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string { return t.name }

// Descriptor renders the tool in its latest wire shape. Schemas are parsed
// on first use.
func (t *Tool) Descriptor() (mcp.Tool, error) {
	in, err := t.input.Raw()
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("tool %q input schema: %w", t.name, err)
	}
	out, err := t.output.Raw()
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("tool %q output schema: %w", t.name, err)
	}
	return mcp.Tool{
		Name:         t.name,
		Title:        t.title,
		Description:  t.description,
		InputSchema:  in,
		OutputSchema: out,
		Annotations:  t.annotations,
	}, nil
}

// Call invokes the handler.
func (t *Tool) Call(ctx context.Context, f *features.Set, args json.RawMessage) (*ToolResult, error) {
	if t.handler == nil {
		return nil, NewProtocolError(CodeInternalError, "tool %q has no handler", t.name)
	}
	res, err := t.handler(ctx, f, args)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &ToolResult{}
	}
	return res, nil
}
