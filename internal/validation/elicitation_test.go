package validation

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestElicitationSchema(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
		want    []string
	}{
		{name: "empty properties", in: `{"type":"object","properties":{}}`},
		{name: "no properties", in: `{"type":"object"}`},
		{name: "simple", in: `{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`, want: []string{"name"}},
		{name: "dedupes required", in: `{"type":"object","properties":{"a":{"type":"string"},"b":{"type":"number"}},"required":["b","a","b"]}`, want: []string{"b", "a"}},
		{name: "not an object", in: `[]`, wantErr: true},
		{name: "wrong root type", in: `{"type":"string"}`, wantErr: true},
		{name: "property without type", in: `{"type":"object","properties":{"x":{}}}`, wantErr: true},
		{name: "unknown required", in: `{"type":"object","properties":{"x":{"type":"string"}},"required":["y"]}`, wantErr: true},
		{name: "minimum above maximum", in: `{"type":"object","properties":{"n":{"type":"integer","minimum":5,"maximum":1}}}`, wantErr: true},
		{name: "zero bounds", in: `{"type":"object","properties":{"n":{"type":"integer","minimum":0,"maximum":0}}}`},
		{name: "minLength above maxLength", in: `{"type":"object","properties":{"s":{"type":"string","minLength":3,"maxLength":2}}}`, wantErr: true},
		{name: "duplicate enum", in: `{"type":"object","properties":{"c":{"type":"string","enum":["a","b","a"]}}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ElicitationSchema(json.RawMessage(tt.in))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSchema) {
					t.Fatalf("expected ErrInvalidSchema, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var doc struct {
				Required []string `json:"required"`
			}
			if err := json.Unmarshal(out, &doc); err != nil {
				t.Fatal(err)
			}
			if len(doc.Required) != len(tt.want) {
				t.Fatalf("required = %v, want %v", doc.Required, tt.want)
			}
			for i := range tt.want {
				if doc.Required[i] != tt.want[i] {
					t.Fatalf("required = %v, want %v", doc.Required, tt.want)
				}
			}
		})
	}
}

func TestElicitationSchemaKeepsUnknownKeywords(t *testing.T) {
	out, err := ElicitationSchema(json.RawMessage(`{"type":"object","additionalProperties":false,"properties":{"a":{"type":"string","description":"A"}},"required":["a","a"]}`))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["additionalProperties"] != false {
		t.Fatalf("additionalProperties dropped: %s", out)
	}
	props := doc["properties"].(map[string]any)
	if props["a"].(map[string]any)["description"] != "A" {
		t.Fatalf("description dropped: %s", out)
	}
}
