// Package content models the polymorphic content carried by tool results,
// prompt messages, sampling messages and resource reads. Each variant is a
// plain struct implementing Content; the wire shape for a given protocol
// revision is produced by the serializer, never by the variants themselves.
package content

// Role identifies the speaker of a prompt or sampling message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind discriminates Content variants.
type Kind string

const (
	KindText         Kind = "text"
	KindImage        Kind = "image"
	KindAudio        Kind = "audio"
	KindResource     Kind = "resource"
	KindResourceLink Kind = "resource_link"
)

// Annotations are advisory audience and priority hints.
type Annotations struct {
	Audience     []Role
	Priority     *float64
	LastModified string
}

// Content is exactly one content block.
type Content interface {
	Kind() Kind
	isContent()
}

// Text content block.
type Text struct {
	Text        string
	Annotations *Annotations
}

func (Text) Kind() Kind { return KindText }
func (Text) isContent() {}

// Image content block. Data holds raw bytes; encoding happens on the wire.
type Image struct {
	Data        []byte
	MIMEType    string
	Annotations *Annotations
}

func (Image) Kind() Kind { return KindImage }
func (Image) isContent() {}

// Audio content block.
type Audio struct {
	Data        []byte
	MIMEType    string
	Annotations *Annotations
}

func (Audio) Kind() Kind { return KindAudio }
func (Audio) isContent() {}

// EmbeddedResource inlines the contents of a resource. Exactly one of Text or
// Blob is meaningful; Blob wins when both are set.
type EmbeddedResource struct {
	URI         string
	MIMEType    string
	Text        string
	Blob        []byte
	Annotations *Annotations
}

func (EmbeddedResource) Kind() Kind { return KindResource }
func (EmbeddedResource) isContent() {}

// ResourceLink points at a resource the client may read separately.
type ResourceLink struct {
	URI         string
	Name        string
	Title       string
	Description string
	MIMEType    string
	Size        int64
	Annotations *Annotations
}

func (ResourceLink) Kind() Kind { return KindResourceLink }
func (ResourceLink) isContent() {}

// PromptMessage is a role-qualified content block returned by prompts/get.
type PromptMessage struct {
	Role    Role
	Content Content
}

// SamplingMessage is a role-qualified content block exchanged during
// sampling/createMessage.
type SamplingMessage struct {
	Role    Role
	Content Content
}

// UserText builds a user-authored sampling message.
func UserText(s string) SamplingMessage {
	return SamplingMessage{Role: RoleUser, Content: Text{Text: s}}
}

// AssistantText builds an assistant-authored sampling message.
func AssistantText(s string) SamplingMessage {
	return SamplingMessage{Role: RoleAssistant, Content: Text{Text: s}}
}

// UserPrompt builds a user-authored prompt message.
func UserPrompt(c Content) PromptMessage { return PromptMessage{Role: RoleUser, Content: c} }

// AssistantPrompt builds an assistant-authored prompt message.
func AssistantPrompt(c Content) PromptMessage {
	return PromptMessage{Role: RoleAssistant, Content: c}
}

// ResourceContents is one entry of a resources/read result.
type ResourceContents struct {
	URI      string
	MIMEType string
	Text     string
	Blob     []byte
}

var (
	_ Content = Text{}
	_ Content = Image{}
	_ Content = Audio{}
	_ Content = EmbeddedResource{}
	_ Content = ResourceLink{}
)
