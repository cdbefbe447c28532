package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/ggoodman/mcp-engine-go/content"
	"github.com/ggoodman/mcp-engine-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/internal/logctx"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/mcpserver"
	"github.com/ggoodman/mcp-engine-go/session"
)

func (e *Engine) handleInitialize(ctx context.Context, c *call) (any, error) {
	var req mcp.InitializeRequest
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}

	v := mcp.FindVersion(req.ProtocolVersion)
	if string(v) != req.ProtocolVersion {
		e.log.InfoContext(ctx, "engine.initialize.version_fallback",
			slog.String("requested", req.ProtocolVersion),
			slog.String("negotiated", v.String()))
	}

	caps := session.Capabilities{
		Roots:       req.Capabilities.Roots != nil,
		Sampling:    req.Capabilities.Sampling != nil,
		Elicitation: req.Capabilities.Elicitation != nil,
	}
	if req.Capabilities.Roots != nil {
		caps.RootsListChanged = req.Capabilities.Roots.ListChanged
	}

	if err := c.sess.BeginInitialize(v, caps, req.ClientInfo); err != nil {
		return nil, mcpserver.NewProtocolError(mcpserver.CodeInvalidRequest, "%v", err)
	}

	ser := c.sess.Serializer()
	e.log.InfoContext(ctx, "engine.initialize.ok",
		slog.String("session_id", c.sess.ID()),
		slog.String("protocol_version", v.String()),
		slog.String("client", req.ClientInfo.Name))

	return &mcp.InitializeResult{
		ProtocolVersion: v.String(),
		Capabilities:    e.srv.Capabilities(),
		ServerInfo:      ser.ServerInfo(e.srv.Info()),
		Instructions:    e.srv.Instructions(),
	}, nil
}

func (e *Engine) handlePing(ctx context.Context, c *call) (any, error) {
	return &mcp.EmptyResult{}, nil
}

func (e *Engine) handleSetLoggingLevel(ctx context.Context, c *call) (any, error) {
	var req mcp.SetLevelRequest
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}
	if !mcp.IsValidLoggingLevel(req.Level) {
		return nil, mcpserver.NewProtocolError(mcpserver.CodeInvalidParams, "Invalid logging level: %q", req.Level)
	}
	c.sess.SetLogLevel(req.Level)
	return &mcp.EmptyResult{}, nil
}

func (e *Engine) handleDisconnect(ctx context.Context, c *call) (any, error) {
	c.after = func() { e.Disconnect(context.WithoutCancel(ctx), c.sess) }
	return &mcp.EmptyResult{}, nil
}

func invalidCursor() error {
	return mcpserver.NewProtocolError(mcpserver.CodeInvalidParams, "Invalid cursor")
}

func (e *Engine) handleToolsList(ctx context.Context, c *call) (any, error) {
	var req mcp.PaginatedRequest
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}
	page, ok := e.srv.Tools().Page(req.Cursor)
	if !ok {
		return nil, invalidCursor()
	}

	descs := make([]mcp.Tool, 0, len(page.Items))
	for _, t := range page.Items {
		desc, err := t.Descriptor()
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	return &mcp.ListToolsResult{
		Tools:           c.sess.Serializer().Tools(descs),
		PaginatedResult: mcp.PaginatedResult{NextCursor: page.Cursor},
	}, nil
}

func (e *Engine) handleToolCall(ctx context.Context, c *call) (any, error) {
	var req mcp.CallToolRequestReceived
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}
	tool, ok := e.srv.Tools().Get(req.Name)
	if !ok {
		return nil, mcpserver.NewProtocolError(mcpserver.CodeInvalidParams, "Unknown tool: %s", req.Name)
	}
	if req.Meta != nil && req.Meta.ProgressToken != nil {
		c.set.Progress().Token(req.Meta.ProgressToken)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: req.Name})
	ser := c.sess.Serializer()

	res, err := tool.Call(ctx, c.set, req.Arguments)
	if err != nil {
		var te *mcpserver.ToolError
		switch {
		case errors.As(err, &te):
			e.log.InfoContext(ctx, "engine.tool_call.tool_error", slog.String("err", te.Message))
			return ser.ToolResult(te.Result(), nil, true)
		case isClientFailure(err):
			e.log.InfoContext(ctx, "engine.tool_call.client_fail", slog.String("err", err.Error()))
			return ser.ToolResult([]content.Content{content.Text{Text: err.Error()}}, nil, true)
		default:
			return nil, err
		}
	}
	return ser.ToolResult(res.Content, res.Structured, false)
}

func (e *Engine) handleResourcesList(ctx context.Context, c *call) (any, error) {
	var req mcp.PaginatedRequest
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}
	page, ok := e.srv.Resources().Page(req.Cursor)
	if !ok {
		return nil, invalidCursor()
	}

	descs := make([]mcp.Resource, 0, len(page.Items))
	for _, r := range page.Items {
		descs = append(descs, r.Descriptor())
	}
	return &mcp.ListResourcesResult{
		Resources:       c.sess.Serializer().Resources(descs),
		PaginatedResult: mcp.PaginatedResult{NextCursor: page.Cursor},
	}, nil
}

func (e *Engine) handleResourcesTemplatesList(ctx context.Context, c *call) (any, error) {
	var req mcp.PaginatedRequest
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}
	page, ok := e.srv.ResourceTemplates().Page(req.Cursor)
	if !ok {
		return nil, invalidCursor()
	}

	descs := make([]mcp.ResourceTemplate, 0, len(page.Items))
	for _, t := range page.Items {
		descs = append(descs, t.Descriptor())
	}
	return &mcp.ListResourceTemplatesResult{
		ResourceTemplates: c.sess.Serializer().ResourceTemplates(descs),
		PaginatedResult:   mcp.PaginatedResult{NextCursor: page.Cursor},
	}, nil
}

func (e *Engine) handleResourcesRead(ctx context.Context, c *call) (any, error) {
	var req mcp.ReadResourceRequest
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}
	if req.Meta != nil && req.Meta.ProgressToken != nil {
		c.set.Progress().Token(req.Meta.ProgressToken)
	}

	r, tpl, vars, ok := e.srv.FindResource(req.URI)
	if !ok {
		return nil, mcpserver.ResourceNotFound(req.URI)
	}

	var (
		contents []content.ResourceContents
		err      error
	)
	if r != nil {
		contents, err = r.Read(ctx, c.set)
	} else {
		contents, err = tpl.Read(ctx, c.set, req.URI, vars)
	}
	if err != nil {
		return nil, err
	}

	ser := c.sess.Serializer()
	res := &mcp.ReadResourceResult{Contents: make([]mcp.ResourceContents, 0, len(contents))}
	for _, rc := range contents {
		res.Contents = append(res.Contents, ser.ResourceContents(rc))
	}
	return res, nil
}

func (e *Engine) handleResourcesSubscribe(ctx context.Context, c *call) (any, error) {
	var req mcp.SubscribeRequest
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}
	if _, _, _, ok := e.srv.FindResource(req.URI); !ok {
		return nil, mcpserver.NewProtocolError(mcpserver.CodeInvalidParams, "Unable to find resource")
	}

	subs := c.set.Subscriptions()
	added, err := subs.Subscribe(req.URI)
	if err != nil {
		return nil, err
	}
	if added {
		uri := req.URI
		c.after = func() { subs.BlockSubscribe(uri) }
	}
	return &mcp.EmptyResult{}, nil
}

func (e *Engine) handleResourcesUnsubscribe(ctx context.Context, c *call) (any, error) {
	var req mcp.UnsubscribeRequest
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}
	c.set.Subscriptions().Unsubscribe(req.URI)
	return &mcp.EmptyResult{}, nil
}

func (e *Engine) handlePromptsList(ctx context.Context, c *call) (any, error) {
	var req mcp.PaginatedRequest
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}
	page, ok := e.srv.Prompts().Page(req.Cursor)
	if !ok {
		return nil, invalidCursor()
	}

	ser := c.sess.Serializer()
	res := &mcp.ListPromptsResult{Prompts: make([]mcp.Prompt, 0, len(page.Items))}
	for _, p := range page.Items {
		res.Prompts = append(res.Prompts, ser.Prompt(p.Descriptor()))
	}
	res.NextCursor = page.Cursor
	return res, nil
}

func (e *Engine) handlePromptsGet(ctx context.Context, c *call) (any, error) {
	var req mcp.GetPromptRequestReceived
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}
	p, ok := e.srv.Prompts().Get(req.Name)
	if !ok {
		return nil, mcpserver.NewProtocolError(mcpserver.CodeInvalidParams, "Unknown prompt: %s", req.Name)
	}
	if req.Meta != nil && req.Meta.ProgressToken != nil {
		c.set.Progress().Token(req.Meta.ProgressToken)
	}

	out, err := p.Get(ctx, c.set, req.Arguments)
	if err != nil {
		return nil, err
	}

	ser := c.sess.Serializer()
	res := &mcp.GetPromptResult{Description: out.Description, Messages: make([]mcp.PromptMessage, 0, len(out.Messages))}
	for _, m := range out.Messages {
		res.Messages = append(res.Messages, ser.PromptMessage(m))
	}
	return res, nil
}

func (e *Engine) handleCompletionsComplete(ctx context.Context, c *call) (any, error) {
	var req mcp.CompleteRequest
	if err := decodeParams(c.req.Params, &req); err != nil {
		return nil, err
	}
	if req.Ref.Type != mcp.RefTypePrompt && req.Ref.Type != mcp.RefTypeResource {
		return nil, mcpserver.NewProtocolError(mcpserver.CodeInvalidParams, "Invalid reference type: %q", req.Ref.Type)
	}

	comp, ok := e.srv.FindCompletion(req.Ref)
	if !ok {
		return &mcp.CompleteResult{Completion: mcp.Completion{Values: []string{}}}, nil
	}
	out, err := comp.Complete(ctx, c.set, req.Argument)
	if err != nil {
		return nil, err
	}
	return &mcp.CompleteResult{Completion: out}, nil
}

func (e *Engine) handleInitialized(ctx context.Context, sess *session.Session, _ json.RawMessage) {
	if err := sess.CompleteInitialize(); err != nil {
		e.log.InfoContext(ctx, "engine.initialized.invalid", slog.String("err", err.Error()))
		return
	}
	e.log.InfoContext(ctx, "engine.initialized.ok", slog.String("session_id", sess.ID()))
}

func (e *Engine) handleCancelled(ctx context.Context, sess *session.Session, params json.RawMessage) {
	var note mcp.CancelledNotification
	if err := json.Unmarshal(params, &note); err != nil || len(note.RequestID) == 0 {
		e.log.InfoContext(ctx, "engine.cancelled.invalid")
		return
	}
	var id jsonrpc.RequestID
	if err := json.Unmarshal(note.RequestID, &id); err != nil {
		e.log.InfoContext(ctx, "engine.cancelled.invalid", slog.String("err", err.Error()))
		return
	}
	f, ok := sess.Features(id.String())
	if !ok {
		e.log.DebugContext(ctx, "engine.cancelled.unknown_request", slog.String("request_id", id.String()))
		return
	}
	f.RequestCancelled(note.Reason)
}

func (e *Engine) handleRootsListChanged(ctx context.Context, sess *session.Session, _ json.RawMessage) {
	sess.MarkRootsDirty()
}

func (e *Engine) handleDisconnectNotification(ctx context.Context, sess *session.Session, _ json.RawMessage) {
	e.Disconnect(ctx, sess)
}
