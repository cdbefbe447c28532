package stdio_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/ggoodman/mcp-engine-go/content"
	"github.com/ggoodman/mcp-engine-go/engine"
	"github.com/ggoodman/mcp-engine-go/features"
	"github.com/ggoodman/mcp-engine-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/mcpserver"
	"github.com/ggoodman/mcp-engine-go/session"
	"github.com/ggoodman/mcp-engine-go/stdio"
)

type message struct {
	ID     *jsonrpc.RequestID `json:"id"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params"`
	Result json.RawMessage    `json:"result"`
	Error  *jsonrpc.Error     `json:"error"`
}

type peer struct {
	t    *testing.T
	reg  *session.Registry
	in   *io.PipeWriter
	out  <-chan message
	done chan error
	ids  int64
}

func startPeer(t *testing.T, srvOpts ...mcpserver.Option) *peer {
	t.Helper()
	reg := session.NewRegistry()
	t.Cleanup(reg.Close)
	srv := mcpserver.New(srvOpts...)
	t.Cleanup(srv.Close)
	eng := engine.New(reg, srv)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	h := stdio.NewHandler(eng, stdio.WithIO(inR, outW), stdio.WithUserID("alice"))

	p := &peer{t: t, reg: reg, in: inW, done: make(chan error, 1)}
	out := make(chan message, 16)
	p.out = out
	go func() {
		defer close(out)
		sc := bufio.NewScanner(outR)
		for sc.Scan() {
			var m message
			if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
				t.Errorf("decode %q: %v", sc.Text(), err)
				return
			}
			out <- m
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		p.done <- h.Serve(ctx)
		outW.Close()
	}()
	t.Cleanup(func() {
		cancel()
		inW.Close()
	})
	return p
}

func (p *peer) write(v any) {
	p.t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		p.t.Fatal(err)
	}
	p.writeRaw(string(b))
}

func (p *peer) writeRaw(line string) {
	p.t.Helper()
	if _, err := io.WriteString(p.in, line+"\n"); err != nil {
		p.t.Fatalf("write: %v", err)
	}
}

func (p *peer) request(method string, params any) *jsonrpc.RequestID {
	p.t.Helper()
	p.ids++
	id := jsonrpc.NewRequestID(p.ids)
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		p.t.Fatal(err)
	}
	p.write(req)
	return id
}

func (p *peer) notify(method string) {
	p.t.Helper()
	n, err := jsonrpc.NewNotification(method, nil)
	if err != nil {
		p.t.Fatal(err)
	}
	p.write(n)
}

func (p *peer) next() message {
	p.t.Helper()
	select {
	case m, ok := <-p.out:
		if !ok {
			p.t.Fatalf("output closed")
		}
		return m
	case <-time.After(5 * time.Second):
		p.t.Fatalf("timeout waiting for message")
	}
	return message{}
}

func (p *peer) call(method string, params any) message {
	p.t.Helper()
	id := p.request(method, params)
	m := p.next()
	if m.ID == nil || m.ID.String() != id.String() {
		p.t.Fatalf("reply id = %v, want %v", m.ID, id)
	}
	return m
}

func (p *peer) initialize(caps mcp.ClientCapabilities) {
	p.t.Helper()
	m := p.call(string(mcp.InitializeMethod), mcp.InitializeRequest{
		ProtocolVersion: "2025-06-18",
		Capabilities:    caps,
		ClientInfo:      mcp.ImplementationInfo{Name: "test-client", Version: "1.0.0"},
	})
	if m.Error != nil {
		p.t.Fatalf("initialize: %+v", m.Error)
	}
	p.notify(string(mcp.InitializedNotificationMethod))
}

func (p *peer) wait() error {
	p.t.Helper()
	select {
	case err := <-p.done:
		return err
	case <-time.After(5 * time.Second):
		p.t.Fatalf("Serve did not return")
	}
	return nil
}

func echoTool() *mcpserver.Tool {
	return mcpserver.NewTool("echo", func(ctx context.Context, f *features.Set, args json.RawMessage) (*mcpserver.ToolResult, error) {
		return mcpserver.TextResult("echo"), nil
	})
}

func TestInitializeAndListTools(t *testing.T) {
	p := startPeer(t, mcpserver.WithTools(echoTool()))
	p.initialize(mcp.ClientCapabilities{})

	var sess *session.Session
	p.reg.Range(func(s *session.Session) bool {
		sess = s
		return false
	})
	if sess == nil || sess.UserID() != "alice" {
		t.Fatalf("session = %+v", sess)
	}

	m := p.call(string(mcp.ToolsListMethod), nil)
	var res mcp.ListToolsResult
	if err := json.Unmarshal(m.Result, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Tools) != 1 || res.Tools[0].Name != "echo" {
		t.Fatalf("tools = %+v", res.Tools)
	}
}

func TestNestedSamplingRoundTrip(t *testing.T) {
	summarize := mcpserver.NewTool("summarize", func(ctx context.Context, f *features.Set, args json.RawMessage) (*mcpserver.ToolResult, error) {
		res, err := f.Sampling().CreateMessage(ctx, features.CreateMessageRequest{
			Messages:  []content.SamplingMessage{{Role: content.RoleUser, Content: content.Text{Text: "hi"}}},
			MaxTokens: 10,
		})
		if err != nil {
			return nil, err
		}
		return &mcpserver.ToolResult{Content: []content.Content{res.Content}}, nil
	})
	p := startPeer(t, mcpserver.WithTools(summarize))
	p.initialize(mcp.ClientCapabilities{Sampling: &struct{}{}})

	id := p.request(string(mcp.ToolsCallMethod), map[string]any{"name": "summarize"})

	nested := p.next()
	if nested.Method != string(mcp.SamplingCreateMessageMethod) || nested.ID == nil {
		t.Fatalf("nested = %+v", nested)
	}
	answer, err := jsonrpc.NewResultResponse(nested.ID, map[string]any{
		"role":    "assistant",
		"model":   "m",
		"content": map[string]any{"type": "text", "text": "summary"},
	})
	if err != nil {
		t.Fatal(err)
	}
	p.write(answer)

	final := p.next()
	if final.ID == nil || final.ID.String() != id.String() {
		t.Fatalf("final = %+v", final)
	}
	var res mcp.CallToolResult
	if err := json.Unmarshal(final.Result, &res); err != nil {
		t.Fatal(err)
	}
	if res.IsError || len(res.Content) != 1 || res.Content[0].Text != "summary" {
		t.Fatalf("result = %+v", res)
	}
}

func TestMalformedInput(t *testing.T) {
	p := startPeer(t)

	tests := []struct {
		name string
		line string
		want jsonrpc.ErrorCode
	}{
		{"parse error", `{"jsonrpc":`, jsonrpc.ErrorCodeParseError},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, jsonrpc.ErrorCodeInvalidRequest},
	}
	for _, tt := range tests {
		p.writeRaw(tt.line)
		m := p.next()
		if m.Error == nil || m.Error.Code != tt.want {
			t.Fatalf("%s: reply = %+v, want code %v", tt.name, m, tt.want)
		}
	}

	// The loop survives bad lines.
	p.initialize(mcp.ClientCapabilities{})
}

func TestServeEndsOnEOF(t *testing.T) {
	p := startPeer(t)
	p.initialize(mcp.ClientCapabilities{})
	p.in.Close()

	if err := p.wait(); err != nil {
		t.Fatalf("Serve = %v", err)
	}
	if n := p.reg.Len(); n != 0 {
		t.Fatalf("sessions = %d, want 0", n)
	}
}

func TestServeEndsOnDisconnect(t *testing.T) {
	p := startPeer(t)
	p.initialize(mcp.ClientCapabilities{})
	p.notify(string(mcp.SessionDisconnectMethod))

	if err := p.wait(); err != nil {
		t.Fatalf("Serve = %v", err)
	}
}
