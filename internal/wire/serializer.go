// Package wire converts domain values into the JSON shapes of a specific
// protocol revision. A Serializer is selected once per session, at
// initialize, and reused for every payload the session sends.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-engine-go/content"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// revision lists what a protocol revision adds on top of the previous one.
type revision struct {
	audio            bool
	toolAnnotations  bool
	titles           bool
	structuredOutput bool
	resourceLinks    bool
	lastModified     bool
}

var revisions = map[mcp.ProtocolVersion]revision{
	mcp.Version20241105: {},
	mcp.Version20250326: {
		audio:           true,
		toolAnnotations: true,
	},
	mcp.Version20250618: {
		audio:            true,
		toolAnnotations:  true,
		titles:           true,
		structuredOutput: true,
		resourceLinks:    true,
		lastModified:     true,
	},
}

// Serializer renders payloads for one protocol revision.
type Serializer struct {
	version mcp.ProtocolVersion
	rev     revision
}

// For returns the serializer for v. Unknown revisions use the latest one.
func For(v mcp.ProtocolVersion) Serializer {
	rev, ok := revisions[v]
	if !ok {
		v = mcp.LatestVersion()
		rev = revisions[v]
	}
	return Serializer{version: v, rev: rev}
}

// Version reports the revision this serializer renders.
func (s Serializer) Version() mcp.ProtocolVersion { return s.version }

// ServerInfo strips fields unknown to the revision.
func (s Serializer) ServerInfo(info mcp.ImplementationInfo) mcp.ImplementationInfo {
	if !s.rev.titles {
		info.Title = ""
	}
	return info
}

// Tool renders a tool descriptor.
func (s Serializer) Tool(t mcp.Tool) mcp.Tool {
	if !s.rev.titles {
		t.Title = ""
		if t.Annotations != nil {
			a := *t.Annotations
			a.Title = ""
			t.Annotations = &a
		}
	}
	if !s.rev.structuredOutput {
		t.OutputSchema = nil
	}
	if !s.rev.toolAnnotations {
		t.Annotations = nil
	}
	return t
}

// Tools renders a slice of tool descriptors.
func (s Serializer) Tools(in []mcp.Tool) []mcp.Tool {
	out := make([]mcp.Tool, 0, len(in))
	for _, t := range in {
		out = append(out, s.Tool(t))
	}
	return out
}

// Resource renders a resource descriptor.
func (s Serializer) Resource(r mcp.Resource) mcp.Resource {
	if !s.rev.titles {
		r.Title = ""
	}
	r.Annotations = s.annotations(r.Annotations)
	return r
}

// Resources renders a slice of resource descriptors.
func (s Serializer) Resources(in []mcp.Resource) []mcp.Resource {
	out := make([]mcp.Resource, 0, len(in))
	for _, r := range in {
		out = append(out, s.Resource(r))
	}
	return out
}

// ResourceTemplate renders a resource template descriptor.
func (s Serializer) ResourceTemplate(r mcp.ResourceTemplate) mcp.ResourceTemplate {
	if !s.rev.titles {
		r.Title = ""
	}
	r.Annotations = s.annotations(r.Annotations)
	return r
}

// ResourceTemplates renders a slice of resource template descriptors.
func (s Serializer) ResourceTemplates(in []mcp.ResourceTemplate) []mcp.ResourceTemplate {
	out := make([]mcp.ResourceTemplate, 0, len(in))
	for _, r := range in {
		out = append(out, s.ResourceTemplate(r))
	}
	return out
}

// Prompt renders a prompt descriptor.
func (s Serializer) Prompt(p mcp.Prompt) mcp.Prompt {
	if !s.rev.titles {
		p.Title = ""
		if len(p.Arguments) > 0 {
			args := make([]mcp.PromptArgument, len(p.Arguments))
			for i, a := range p.Arguments {
				a.Title = ""
				args[i] = a
			}
			p.Arguments = args
		}
	}
	return p
}

// Prompts renders a slice of prompt descriptors.
func (s Serializer) Prompts(in []mcp.Prompt) []mcp.Prompt {
	out := make([]mcp.Prompt, 0, len(in))
	for _, p := range in {
		out = append(out, s.Prompt(p))
	}
	return out
}

// Content renders one content block. Variants the revision cannot express
// are downgraded to text.
func (s Serializer) Content(c content.Content) mcp.ContentBlock {
	switch v := c.(type) {
	case content.Text:
		return mcp.ContentBlock{Type: mcp.ContentTypeText, Text: v.Text, Annotations: s.contentAnnotations(v.Annotations)}
	case *content.Text:
		return s.Content(*v)
	case content.Image:
		return mcp.ContentBlock{
			Type:        mcp.ContentTypeImage,
			Data:        base64.StdEncoding.EncodeToString(v.Data),
			MimeType:    v.MIMEType,
			Annotations: s.contentAnnotations(v.Annotations),
		}
	case *content.Image:
		return s.Content(*v)
	case content.Audio:
		if !s.rev.audio {
			return mcp.ContentBlock{Type: mcp.ContentTypeText, Text: fmt.Sprintf("[audio content: %s]", v.MIMEType)}
		}
		return mcp.ContentBlock{
			Type:        mcp.ContentTypeAudio,
			Data:        base64.StdEncoding.EncodeToString(v.Data),
			MimeType:    v.MIMEType,
			Annotations: s.contentAnnotations(v.Annotations),
		}
	case *content.Audio:
		return s.Content(*v)
	case content.EmbeddedResource:
		rc := s.ResourceContents(content.ResourceContents{URI: v.URI, MIMEType: v.MIMEType, Text: v.Text, Blob: v.Blob})
		return mcp.ContentBlock{Type: mcp.ContentTypeResource, Resource: &rc, Annotations: s.contentAnnotations(v.Annotations)}
	case *content.EmbeddedResource:
		return s.Content(*v)
	case content.ResourceLink:
		if !s.rev.resourceLinks {
			return mcp.ContentBlock{Type: mcp.ContentTypeText, Text: v.URI}
		}
		return mcp.ContentBlock{
			Type:        mcp.ContentTypeResourceLink,
			URI:         v.URI,
			Name:        v.Name,
			Title:       v.Title,
			Description: v.Description,
			MimeType:    v.MIMEType,
			Size:        v.Size,
			Annotations: s.contentAnnotations(v.Annotations),
		}
	case *content.ResourceLink:
		return s.Content(*v)
	default:
		return mcp.ContentBlock{Type: mcp.ContentTypeText, Text: ""}
	}
}

// Contents renders a slice of content blocks. The result is never nil.
func (s Serializer) Contents(in []content.Content) []mcp.ContentBlock {
	out := make([]mcp.ContentBlock, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		out = append(out, s.Content(c))
	}
	return out
}

// ResourceContents renders one resources/read entry.
func (s Serializer) ResourceContents(rc content.ResourceContents) mcp.ResourceContents {
	out := mcp.ResourceContents{URI: rc.URI, MimeType: rc.MIMEType}
	if rc.Blob != nil {
		out.Blob = base64.StdEncoding.EncodeToString(rc.Blob)
	} else {
		out.Text = rc.Text
	}
	return out
}

// PromptMessage renders a role-qualified prompt message.
func (s Serializer) PromptMessage(m content.PromptMessage) mcp.PromptMessage {
	return mcp.PromptMessage{Role: mcp.Role(m.Role), Content: s.Content(m.Content)}
}

// SamplingMessage renders a role-qualified sampling message.
func (s Serializer) SamplingMessage(m content.SamplingMessage) mcp.SamplingMessage {
	return mcp.SamplingMessage{Role: mcp.Role(m.Role), Content: s.Content(m.Content)}
}

// ToolResult renders a tools/call result. A structured value with no
// accompanying content is also carried as a JSON text block, which is the
// only form revisions before 2025-06-18 can see.
func (s Serializer) ToolResult(contents []content.Content, structured any, isError bool) (mcp.CallToolResult, error) {
	res := mcp.CallToolResult{Content: s.Contents(contents), IsError: isError}
	if structured == nil {
		return res, nil
	}
	if s.rev.structuredOutput {
		res.StructuredContent = structured
	}
	if len(res.Content) == 0 {
		b, err := json.Marshal(structured)
		if err != nil {
			return mcp.CallToolResult{}, fmt.Errorf("marshal structured content: %w", err)
		}
		res.Content = append(res.Content, mcp.ContentBlock{Type: mcp.ContentTypeText, Text: string(b)})
	}
	return res, nil
}

func (s Serializer) annotations(a *mcp.Annotations) *mcp.Annotations {
	if a == nil || s.rev.lastModified || a.LastModified == "" {
		return a
	}
	cp := *a
	cp.LastModified = ""
	return &cp
}

func (s Serializer) contentAnnotations(a *content.Annotations) *mcp.Annotations {
	if a == nil {
		return nil
	}
	out := &mcp.Annotations{}
	for _, r := range a.Audience {
		out.Audience = append(out.Audience, mcp.Role(r))
	}
	if a.Priority != nil {
		out.Priority = *a.Priority
	}
	if s.rev.lastModified {
		out.LastModified = a.LastModified
	}
	return out
}
