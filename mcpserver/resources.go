package mcpserver

import (
	"context"
	"fmt"

	"github.com/ggoodman/mcp-engine-go/content"
	"github.com/ggoodman/mcp-engine-go/features"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/yosida95/uritemplate/v3"
)

// ResourceHandler reads the resource at uri.
type ResourceHandler func(ctx context.Context, f *features.Set, uri string) ([]content.ResourceContents, error)

// TemplateHandler reads a resource matched by a template. vars holds the
// values extracted from the URI.
type TemplateHandler func(ctx context.Context, f *features.Set, uri string, vars map[string]string) ([]content.ResourceContents, error)

type resourceMeta struct {
	name        string
	title       string
	description string
	mimeType    string
	size        int64
	annotations *mcp.Annotations
}

// ResourceOption configures a Resource or ResourceTemplate.
type ResourceOption func(*resourceMeta)

func WithResourceTitle(title string) ResourceOption {
	return func(m *resourceMeta) { m.title = title }
}

func WithResourceDescription(desc string) ResourceOption {
	return func(m *resourceMeta) { m.description = desc }
}

func WithResourceMIMEType(mt string) ResourceOption {
	return func(m *resourceMeta) { m.mimeType = mt }
}

// WithResourceSize sets the advertised size in bytes. Templates ignore it.
func WithResourceSize(n int64) ResourceOption {
	return func(m *resourceMeta) { m.size = n }
}

func WithResourceAnnotations(a mcp.Annotations) ResourceOption {
	return func(m *resourceMeta) { m.annotations = &a }
}

// Resource is a concrete, directly addressable resource.
type Resource struct {
	uri     string
	meta    resourceMeta
	handler ResourceHandler
}

// NewResource builds a resource descriptor.
func NewResource(uri, name string, h ResourceHandler, opts ...ResourceOption) *Resource {
	r := &Resource{uri: uri, meta: resourceMeta{name: name}, handler: h}
	for _, opt := range opts {
		opt(&r.meta)
	}
	return r
}

func (r *Resource) URI() string { return r.uri }

// Descriptor renders the resource in its latest wire shape.
func (r *Resource) Descriptor() mcp.Resource {
	return mcp.Resource{
		URI:         r.uri,
		Name:        r.meta.name,
		Title:       r.meta.title,
		Description: r.meta.description,
		MimeType:    r.meta.mimeType,
		Size:        r.meta.size,
		Annotations: r.meta.annotations,
	}
}

// Read invokes the handler. Contents without a URI inherit the resource's,
// and contents without a MIME type inherit the advertised one.
func (r *Resource) Read(ctx context.Context, f *features.Set) ([]content.ResourceContents, error) {
	if r.handler == nil {
		return nil, ResourceNotFound(r.uri)
	}
	out, err := r.handler(ctx, f, r.uri)
	if err != nil {
		return nil, err
	}
	return fillContents(out, r.uri, r.meta.mimeType), nil
}

// ResourceTemplate is a family of resources addressed by an RFC 6570 URI
// template such as "https://x/{id}".
type ResourceTemplate struct {
	tpl     *uritemplate.Template
	meta    resourceMeta
	handler TemplateHandler
}

// NewResourceTemplate parses tpl and builds a template descriptor.
func NewResourceTemplate(tpl, name string, h TemplateHandler, opts ...ResourceOption) (*ResourceTemplate, error) {
	parsed, err := uritemplate.New(tpl)
	if err != nil {
		return nil, fmt.Errorf("parse uri template %q: %w", tpl, err)
	}
	t := &ResourceTemplate{tpl: parsed, meta: resourceMeta{name: name}, handler: h}
	for _, opt := range opts {
		opt(&t.meta)
	}
	return t, nil
}

// MustResourceTemplate is NewResourceTemplate that panics on a malformed
// template.
func MustResourceTemplate(tpl, name string, h TemplateHandler, opts ...ResourceOption) *ResourceTemplate {
	t, err := NewResourceTemplate(tpl, name, h, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *ResourceTemplate) Template() string { return t.tpl.Raw() }

// Match reports whether uri is produced by the template and extracts the
// placeholder values.
func (t *ResourceTemplate) Match(uri string) (map[string]string, bool) {
	values := t.tpl.Match(uri)
	if values == nil {
		return nil, false
	}
	vars := make(map[string]string, len(t.tpl.Varnames()))
	for _, name := range t.tpl.Varnames() {
		if v := values.Get(name); v.Valid() {
			vars[name] = v.String()
		}
	}
	return vars, true
}

// Descriptor renders the template in its latest wire shape.
func (t *ResourceTemplate) Descriptor() mcp.ResourceTemplate {
	return mcp.ResourceTemplate{
		URITemplate: t.tpl.Raw(),
		Name:        t.meta.name,
		Title:       t.meta.title,
		Description: t.meta.description,
		MimeType:    t.meta.mimeType,
		Annotations: t.meta.annotations,
	}
}

// Read invokes the handler for a URI already matched with Match.
func (t *ResourceTemplate) Read(ctx context.Context, f *features.Set, uri string, vars map[string]string) ([]content.ResourceContents, error) {
	if t.handler == nil {
		return nil, ResourceNotFound(uri)
	}
	out, err := t.handler(ctx, f, uri, vars)
	if err != nil {
		return nil, err
	}
	return fillContents(out, uri, t.meta.mimeType), nil
}

func fillContents(in []content.ResourceContents, uri, mimeType string) []content.ResourceContents {
	for i := range in {
		if in[i].URI == "" {
			in[i].URI = uri
		}
		if in[i].MIMEType == "" {
			in[i].MIMEType = mimeType
		}
	}
	return in
}
