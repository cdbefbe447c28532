package wire

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ggoodman/mcp-engine-go/content"
	"github.com/ggoodman/mcp-engine-go/mcp"
)

func boolPtr(b bool) *bool { return &b }

func TestToolPerVersion(t *testing.T) {
	tool := mcp.Tool{
		Name:         "echo",
		Title:        "Echo",
		InputSchema:  json.RawMessage(`{"type":"object"}`),
		OutputSchema: json.RawMessage(`{"type":"object"}`),
		Annotations:  &mcp.ToolAnnotations{Title: "Echo", ReadOnlyHint: boolPtr(true)},
	}

	t.Run("2024-11-05", func(t *testing.T) {
		got := For(mcp.Version20241105).Tool(tool)
		if got.Title != "" || got.OutputSchema != nil || got.Annotations != nil {
			t.Fatalf("expected bare tool, got %+v", got)
		}
	})

	t.Run("2025-03-26", func(t *testing.T) {
		got := For(mcp.Version20250326).Tool(tool)
		if got.Title != "" || got.OutputSchema != nil {
			t.Fatalf("expected no title/outputSchema, got %+v", got)
		}
		if got.Annotations == nil || got.Annotations.ReadOnlyHint == nil || got.Annotations.Title != "" {
			t.Fatalf("expected annotations without title, got %+v", got.Annotations)
		}
		if tool.Annotations.Title != "Echo" {
			t.Fatal("serializer mutated the input annotations")
		}
	})

	t.Run("2025-06-18", func(t *testing.T) {
		got := For(mcp.Version20250618).Tool(tool)
		if got.Title != "Echo" || got.OutputSchema == nil || got.Annotations == nil {
			t.Fatalf("expected full tool, got %+v", got)
		}
	})
}

func TestListDescriptorsPerVersion(t *testing.T) {
	ann := &mcp.Annotations{Priority: 0.5}
	tools := []mcp.Tool{{Name: "a", Title: "A", OutputSchema: json.RawMessage(`{"type":"object"}`)}}
	resources := []mcp.Resource{{URI: "https://foo", Name: "foo", Title: "Foo", Annotations: ann}}
	templates := []mcp.ResourceTemplate{{URITemplate: "https://foo/{id}", Name: "foo", Title: "Foo"}}

	old := For(mcp.Version20241105)
	if got := old.Tools(tools); len(got) != 1 || got[0].Title != "" || got[0].OutputSchema != nil {
		t.Fatalf("tools = %+v", got)
	}
	if got := old.Resources(resources); len(got) != 1 || got[0].Title != "" {
		t.Fatalf("resources = %+v", got)
	}
	if got := old.ResourceTemplates(templates); len(got) != 1 || got[0].Title != "" {
		t.Fatalf("templates = %+v", got)
	}

	cur := For(mcp.Version20250618)
	if got := cur.Resources(resources); got[0].Title != "Foo" || got[0].Annotations == nil {
		t.Fatalf("resources = %+v", got)
	}
	if got := cur.Tools(nil); got == nil || len(got) != 0 {
		t.Fatalf("empty tools should render as an empty slice, got %#v", got)
	}
	if tools[0].Title != "A" {
		t.Fatal("serializer mutated its input")
	}
}

func TestContentDowngrades(t *testing.T) {
	audio := content.Audio{Data: []byte{1, 2, 3}, MIMEType: "audio/wav"}
	link := content.ResourceLink{URI: "file:///a.txt", Name: "a"}

	if got := For(mcp.Version20241105).Content(audio); got.Type != mcp.ContentTypeText {
		t.Fatalf("audio under 2024-11-05 should downgrade to text, got %q", got.Type)
	}
	if got := For(mcp.Version20250326).Content(audio); got.Type != mcp.ContentTypeAudio || got.Data != "AQID" {
		t.Fatalf("audio under 2025-03-26 = %+v", got)
	}
	if got := For(mcp.Version20250326).Content(link); got.Type != mcp.ContentTypeText || got.Text != "file:///a.txt" {
		t.Fatalf("resource link under 2025-03-26 = %+v", got)
	}
	if got := For(mcp.Version20250618).Content(link); got.Type != mcp.ContentTypeResourceLink || got.Name != "a" {
		t.Fatalf("resource link under 2025-06-18 = %+v", got)
	}
}

func TestToolResultStructured(t *testing.T) {
	structured := map[string]any{"sum": 3}

	res, err := For(mcp.Version20250618).ToolResult(nil, structured, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.StructuredContent == nil {
		t.Fatal("expected structuredContent on 2025-06-18")
	}
	if len(res.Content) != 1 || !strings.Contains(res.Content[0].Text, `"sum":3`) {
		t.Fatalf("expected text fallback, got %+v", res.Content)
	}

	res, err = For(mcp.Version20250326).ToolResult([]content.Content{content.Text{Text: "3"}}, structured, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.StructuredContent != nil {
		t.Fatal("structuredContent must not be emitted before 2025-06-18")
	}
	if len(res.Content) != 1 || res.Content[0].Text != "3" {
		t.Fatalf("unexpected content %+v", res.Content)
	}
}

func TestToolResultEmptyContentIsArray(t *testing.T) {
	res, err := For(mcp.Version20250618).ToolResult(nil, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(res)
	if !strings.Contains(string(b), `"content":[]`) || !strings.Contains(string(b), `"isError":true`) {
		t.Fatalf("unexpected encoding %s", b)
	}
}

func TestUnknownVersionFallsBackToLatest(t *testing.T) {
	if got := For("1999-01-01").Version(); got != mcp.LatestVersion() {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeContent(t *testing.T) {
	c, err := DecodeContent(mcp.ContentBlock{Type: "image", Data: "AQID", MimeType: "image/png"})
	if err != nil {
		t.Fatal(err)
	}
	img, ok := c.(content.Image)
	if !ok || len(img.Data) != 3 || img.MIMEType != "image/png" {
		t.Fatalf("unexpected %#v", c)
	}
	if _, err := DecodeContent(mcp.ContentBlock{Type: "video"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
