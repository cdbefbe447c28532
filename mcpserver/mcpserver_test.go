package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/mcp-engine-go/content"
	"github.com/ggoodman/mcp-engine-go/features"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

func TestResourceTemplateMatch(t *testing.T) {
	tpl := MustResourceTemplate("https://x/{id}", "x", nil)

	vars, ok := tpl.Match("https://x/42")
	if !ok || vars["id"] != "42" {
		t.Fatalf("vars = %v, ok = %v", vars, ok)
	}
	if _, ok := tpl.Match("https://y/42"); ok {
		t.Fatal("different host must not match")
	}

	srv := New(WithResourceTemplates(tpl))
	if _, _, _, ok := srv.FindResource("https://y/42"); ok {
		t.Fatal("unmatched uri must not resolve")
	}
	_, got, vars, ok := srv.FindResource("https://x/7")
	if !ok || got != tpl || vars["id"] != "7" {
		t.Fatalf("FindResource = %v %v %v", got, vars, ok)
	}
}

func TestResourceTemplateReadWithoutHandler(t *testing.T) {
	tpl := MustResourceTemplate("https://x/{id}", "x", nil)
	_, err := tpl.Read(t.Context(), nil, "https://x/1", nil)
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.ErrorCode() != CodeResourceNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestResourceReadFillsDefaults(t *testing.T) {
	r := NewResource("res://a", "a", func(context.Context, *features.Set, string) ([]content.ResourceContents, error) {
		return []content.ResourceContents{{Text: "hi"}}, nil
	}, WithResourceMIMEType("text/plain"))
	got, err := r.Read(t.Context(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].URI != "res://a" || got[0].MIMEType != "text/plain" {
		t.Fatalf("contents = %+v", got)
	}
}

type echoArgs struct {
	Message string `json:"message"`
}

type echoOut struct {
	Echo string `json:"echo"`
}

func TestTypedToolDescriptorAndDecoding(t *testing.T) {
	tool := TypedToolWithOutput("echo", func(_ context.Context, _ *features.Set, a echoArgs) (echoOut, error) {
		return echoOut{Echo: a.Message}, nil
	}, WithToolTitle("Echo"), WithToolDescription("echoes"))

	desc, err := tool.Descriptor()
	if err != nil {
		t.Fatal(err)
	}
	if desc.Name != "echo" || desc.Title != "Echo" || desc.Description != "echoes" {
		t.Fatalf("desc = %+v", desc)
	}
	var in map[string]any
	if err := json.Unmarshal(desc.InputSchema, &in); err != nil {
		t.Fatal(err)
	}
	if in["type"] != "object" {
		t.Fatalf("input schema = %s", desc.InputSchema)
	}
	if props, _ := in["properties"].(map[string]any); props["message"] == nil {
		t.Fatalf("input schema lacks message: %s", desc.InputSchema)
	}
	if len(desc.OutputSchema) == 0 {
		t.Fatal("output schema missing")
	}

	res, err := tool.Call(t.Context(), nil, json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	if out, ok := res.Structured.(echoOut); !ok || out.Echo != "hi" {
		t.Fatalf("structured = %#v", res.Structured)
	}

	_, err = tool.Call(t.Context(), nil, json.RawMessage(`{"message":"hi","extra":1}`))
	var te *ToolError
	if !errors.As(err, &te) || !strings.Contains(te.Message, "invalid arguments") {
		t.Fatalf("expected ToolError, got %v", err)
	}
}

func TestToolInvalidSchema(t *testing.T) {
	tool := NewTool("bad", nil, WithInputSchema(`[1,2]`))
	if _, err := tool.Descriptor(); err == nil {
		t.Fatal("non-object schema must be rejected")
	}
	plain := NewTool("plain", nil)
	desc, err := plain.Descriptor()
	if err != nil || string(desc.InputSchema) != `{"type":"object"}` || desc.OutputSchema != nil {
		t.Fatalf("desc = %+v, err = %v", desc, err)
	}
}

func TestPromptRequiredArguments(t *testing.T) {
	p := NewPrompt("greet", func(_ context.Context, _ *features.Set, args map[string]string) (*PromptResult, error) {
		return &PromptResult{Messages: []content.PromptMessage{content.UserPrompt(content.Text{Text: "hello " + args["name"]})}}, nil
	}, WithPromptDescription("greets"), WithPromptArgument("name", "who", true))

	_, err := p.Get(t.Context(), nil, nil)
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.ErrorCode() != CodeInvalidParams {
		t.Fatalf("err = %v", err)
	}

	res, err := p.Get(t.Context(), nil, map[string]string{"name": "ada"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Description != "greets" || res.Messages[0].Content.(content.Text).Text != "hello ada" {
		t.Fatalf("res = %+v", res)
	}
}

func TestCompletionTruncates(t *testing.T) {
	c := NewPromptCompletion("greet", func(context.Context, *features.Set, mcp.CompleteArgument) ([]string, error) {
		return make([]string, 150), nil
	})
	if !c.Matches(mcp.CompleteReference{Type: mcp.RefTypePrompt, Name: "greet"}) {
		t.Fatal("should match prompt ref")
	}
	if c.Matches(mcp.CompleteReference{Type: mcp.RefTypeResource, URI: "greet"}) {
		t.Fatal("must not match other ref types")
	}
	out, err := c.Complete(t.Context(), nil, mcp.CompleteArgument{Name: "name"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Values) != 100 || !out.HasMore || out.Total != 150 {
		t.Fatalf("out = %d values, hasMore %v, total %d", len(out.Values), out.HasMore, out.Total)
	}
}

func TestServerCapabilitiesFollowConfiguration(t *testing.T) {
	empty := New()
	caps := empty.Capabilities()
	if caps.Tools != nil || caps.Prompts != nil || caps.Resources != nil || caps.Completions != nil {
		t.Fatalf("caps = %+v", caps)
	}
	if caps.Logging == nil {
		t.Fatal("logging is always offered")
	}

	srv := New(
		WithTools(NewTool("t", nil)),
		WithResources(NewResource("res://a", "a", nil)),
		WithSubscriptions(false),
	)
	caps = srv.Capabilities()
	if caps.Tools == nil || caps.Resources == nil || caps.Resources.Subscribe {
		t.Fatalf("caps = %+v", caps)
	}
}

func TestServerSetToolsNotifies(t *testing.T) {
	srv := New(WithPageSize(1))
	defer srv.Close()
	ch := srv.Changes()

	srv.SetTools(NewTool("a", nil), NewTool("b", nil))
	select {
	case kind := <-ch:
		if kind != ListTools {
			t.Fatalf("kind = %s", kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
	if srv.Tools().Len() != 2 || srv.Tools().PageCount() != 2 {
		t.Fatalf("tools = %d pages = %d", srv.Tools().Len(), srv.Tools().PageCount())
	}
}

func TestChangeNotifierClose(t *testing.T) {
	var cn ChangeNotifier
	ch := cn.Subscriber()
	cn.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	if _, ok := <-cn.Subscriber(); ok {
		t.Fatal("late subscriber should get a closed channel")
	}
	cn.Notify(ListTools)
}

func TestDirResources(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.bin"), []byte{0xff, 0xfe}, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := DirResources(dir, "file://ws/")
	if err != nil {
		t.Fatal(err)
	}
	byURI := map[string]*Resource{}
	for _, r := range res {
		byURI[r.URI()] = r
	}
	txt, ok := byURI["file://ws/sub/a.txt"]
	if !ok {
		t.Fatalf("resources = %v", byURI)
	}
	got, err := txt.Read(t.Context(), nil)
	if err != nil || got[0].Text != "hello" {
		t.Fatalf("read = %+v, %v", got, err)
	}
	bin, err := byURI["file://ws/b.bin"].Read(t.Context(), nil)
	if err != nil || len(bin[0].Blob) != 2 {
		t.Fatalf("read = %+v, %v", bin, err)
	}
}

func TestWatchDirReportsWrites(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	updates := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- WatchDir(ctx, dir, "file://ws", func(_ context.Context, uri string) { updates <- uri }, nil)
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case uri := <-updates:
			if uri != "file://ws/a.txt" {
				t.Fatalf("uri = %s", uri)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatal(err)
			}
			return
		case <-tick.C:
			// The watcher may not be registered yet; keep writing.
			_ = os.WriteFile(file, []byte("v2"), 0o644)
		case <-deadline:
			t.Fatal("no update observed")
		}
	}
}
