package features

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-engine-go/content"
	"github.com/ggoodman/mcp-engine-go/internal/wire"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

// CreateMessageRequest asks the client's model for a completion.
type CreateMessageRequest struct {
	Messages         []content.SamplingMessage
	ModelPreferences *mcp.ModelPreferences
	SystemPrompt     string
	IncludeContext   string
	Temperature      *float64
	MaxTokens        int
	StopSequences    []string
	Metadata         map[string]any
}

// CreateMessageResult is the client's completion.
type CreateMessageResult struct {
	Role       content.Role
	Content    content.Content
	Model      string
	StopReason string
}

// Sampling delegates model completions to the client.
type Sampling struct {
	set *Set
}

// CreateMessage sends sampling/createMessage and decodes the answer.
func (s *Sampling) CreateMessage(ctx context.Context, req CreateMessageRequest, opts ...CallOption) (*CreateMessageResult, error) {
	if !s.set.sess.Capabilities().Sampling {
		return nil, &CapabilityError{Capability: "sampling"}
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("sampling requires at least one message")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	ser := s.set.sess.Serializer()
	wireReq := mcp.CreateMessageRequest{
		ModelPreferences: req.ModelPreferences,
		SystemPrompt:     req.SystemPrompt,
		IncludeContext:   req.IncludeContext,
		Temperature:      req.Temperature,
		MaxTokens:        maxTokens,
		StopSequences:    req.StopSequences,
		Metadata:         req.Metadata,
	}
	for _, m := range req.Messages {
		wireReq.Messages = append(wireReq.Messages, ser.SamplingMessage(m))
	}

	raw, err := s.set.call(ctx, mcp.SamplingCreateMessageMethod, wireReq, s.set.cfg.SamplingTimeout, opts)
	if err != nil {
		return nil, err
	}
	var res mcp.CreateMessageResultReceived
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode sampling result: %w", err)
	}
	c, err := wire.DecodeContent(res.Content)
	if err != nil {
		return nil, fmt.Errorf("decode sampling content: %w", err)
	}
	return &CreateMessageResult{
		Role:       content.Role(res.Role),
		Content:    c,
		Model:      res.Model,
		StopReason: res.StopReason,
	}, nil
}
