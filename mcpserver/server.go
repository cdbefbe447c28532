package mcpserver

import (
	"sync/atomic"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 50

// Server is the configured set of tools, prompts, resources, resource
// templates and completions offered to clients, along with the metadata
// returned from initialize. Collections may be replaced at runtime; each
// replacement rebuilds the pagination and emits a list-changed signal.
type Server struct {
	info         mcp.ImplementationInfo
	instructions string
	pageSize     int
	subscribe    bool

	tools       atomic.Pointer[Pagination[*Tool]]
	prompts     atomic.Pointer[Pagination[*Prompt]]
	resources   atomic.Pointer[Pagination[*Resource]]
	templates   atomic.Pointer[Pagination[*ResourceTemplate]]
	completions atomic.Pointer[Pagination[*Completion]]

	changes ChangeNotifier
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	info         mcp.ImplementationInfo
	instructions string
	pageSize     int
	subscribe    bool
	tools        []*Tool
	prompts      []*Prompt
	resources    []*Resource
	templates    []*ResourceTemplate
	completions  []*Completion
}

// WithServerInfo sets the serverInfo returned from initialize.
func WithServerInfo(info mcp.ImplementationInfo) Option {
	return func(c *serverConfig) { c.info = info }
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(instr string) Option {
	return func(c *serverConfig) { c.instructions = instr }
}

// WithPageSize sets the listing page size. Zero disables pagination.
func WithPageSize(n int) Option {
	return func(c *serverConfig) { c.pageSize = n }
}

// WithSubscriptions controls whether resources/subscribe is offered. It is
// on by default when resources or templates are configured.
func WithSubscriptions(enabled bool) Option {
	return func(c *serverConfig) { c.subscribe = enabled }
}

func WithTools(tools ...*Tool) Option {
	return func(c *serverConfig) { c.tools = append(c.tools, tools...) }
}

func WithPrompts(prompts ...*Prompt) Option {
	return func(c *serverConfig) { c.prompts = append(c.prompts, prompts...) }
}

func WithResources(resources ...*Resource) Option {
	return func(c *serverConfig) { c.resources = append(c.resources, resources...) }
}

func WithResourceTemplates(templates ...*ResourceTemplate) Option {
	return func(c *serverConfig) { c.templates = append(c.templates, templates...) }
}

func WithCompletions(completions ...*Completion) Option {
	return func(c *serverConfig) { c.completions = append(c.completions, completions...) }
}

// New builds a Server.
func New(opts ...Option) *Server {
	cfg := serverConfig{
		info:      mcp.ImplementationInfo{Name: "mcp-engine-go", Version: "dev"},
		pageSize:  DefaultPageSize,
		subscribe: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		info:         cfg.info,
		instructions: cfg.instructions,
		pageSize:     cfg.pageSize,
		subscribe:    cfg.subscribe,
	}
	s.tools.Store(NewPagination(cfg.tools, s.pageSize, (*Tool).Name))
	s.prompts.Store(NewPagination(cfg.prompts, s.pageSize, (*Prompt).Name))
	s.resources.Store(NewPagination(cfg.resources, s.pageSize, (*Resource).URI))
	s.templates.Store(NewPagination(cfg.templates, s.pageSize, (*ResourceTemplate).Template))
	s.completions.Store(NewPagination(cfg.completions, 0, (*Completion).key))
	return s
}

func (s *Server) Info() mcp.ImplementationInfo                      { return s.info }
func (s *Server) Instructions() string                              { return s.instructions }
func (s *Server) PageSize() int                                     { return s.pageSize }
func (s *Server) Tools() *Pagination[*Tool]                         { return s.tools.Load() }
func (s *Server) Prompts() *Pagination[*Prompt]                     { return s.prompts.Load() }
func (s *Server) Resources() *Pagination[*Resource]                 { return s.resources.Load() }
func (s *Server) ResourceTemplates() *Pagination[*ResourceTemplate] { return s.templates.Load() }
func (s *Server) Completions() *Pagination[*Completion]             { return s.completions.Load() }

// HasResources reports whether any resource or template is configured.
func (s *Server) HasResources() bool {
	return s.Resources().Len() > 0 || s.ResourceTemplates().Len() > 0
}

// SubscriptionsEnabled reports whether resources/subscribe is offered.
func (s *Server) SubscriptionsEnabled() bool { return s.subscribe && s.HasResources() }

// SetTools replaces the tool collection.
func (s *Server) SetTools(tools ...*Tool) {
	s.tools.Store(NewPagination(tools, s.pageSize, (*Tool).Name))
	s.changes.Notify(ListTools)
}

// SetPrompts replaces the prompt collection.
func (s *Server) SetPrompts(prompts ...*Prompt) {
	s.prompts.Store(NewPagination(prompts, s.pageSize, (*Prompt).Name))
	s.changes.Notify(ListPrompts)
}

// SetResources replaces the resource collection.
func (s *Server) SetResources(resources ...*Resource) {
	s.resources.Store(NewPagination(resources, s.pageSize, (*Resource).URI))
	s.changes.Notify(ListResources)
}

// Changes returns a channel signalled whenever a collection is replaced.
func (s *Server) Changes() <-chan ListKind { return s.changes.Subscriber() }

// Close stops change delivery.
func (s *Server) Close() { s.changes.Close() }

// Capabilities advertises what is configured.
func (s *Server) Capabilities() mcp.ServerCapabilities {
	var caps mcp.ServerCapabilities
	caps.Logging = &struct{}{}
	if s.Tools().Len() > 0 {
		caps.Tools = &mcp.ListChangedCapability{ListChanged: true}
	}
	if s.Prompts().Len() > 0 {
		caps.Prompts = &mcp.ListChangedCapability{ListChanged: true}
	}
	if s.HasResources() {
		caps.Resources = &mcp.ResourcesCapability{ListChanged: true, Subscribe: s.SubscriptionsEnabled()}
	}
	if s.Completions().Len() > 0 {
		caps.Completions = &struct{}{}
	}
	return caps
}

// FindResource resolves uri against concrete resources, then templates in
// configuration order.
func (s *Server) FindResource(uri string) (*Resource, *ResourceTemplate, map[string]string, bool) {
	if r, ok := s.Resources().Get(uri); ok {
		return r, nil, nil, true
	}
	for _, t := range s.ResourceTemplates().All() {
		if vars, ok := t.Match(uri); ok {
			return nil, t, vars, true
		}
	}
	return nil, nil, nil, false
}

// FindCompletion returns the completion registered for ref.
func (s *Server) FindCompletion(ref mcp.CompleteReference) (*Completion, bool) {
	for _, c := range s.Completions().All() {
		if c.Matches(ref) {
			return c, true
		}
	}
	return nil, false
}
