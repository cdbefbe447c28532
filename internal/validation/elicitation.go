// Package validation checks the schema documents servers send to clients
// before they leave the process.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidSchema wraps every problem reported by ElicitationSchema.
var ErrInvalidSchema = errors.New("invalid elicitation schema")

type property struct {
	Type    string   `json:"type"`
	Minimum *float64 `json:"minimum"`
	Maximum *float64 `json:"maximum"`
	MinLen  *int     `json:"minLength"`
	MaxLen  *int     `json:"maxLength"`
	Enum    []any    `json:"enum"`
}

// ElicitationSchema checks a requested schema and returns it normalized.
// The root must be an object schema whose properties each declare a type.
// Required names must refer to declared properties and are de-duplicated
// in first-occurrence order. Unknown keywords pass through untouched.
func ElicitationSchema(raw json.RawMessage) (json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidSchema)
	}

	var typ string
	if t, ok := doc["type"]; ok {
		_ = json.Unmarshal(t, &typ)
	}
	if typ != "object" {
		return nil, fmt.Errorf("%w: type must be object", ErrInvalidSchema)
	}

	props := map[string]property{}
	if p, ok := doc["properties"]; ok {
		if err := json.Unmarshal(p, &props); err != nil {
			return nil, fmt.Errorf("%w: properties: %v", ErrInvalidSchema, err)
		}
	}
	for name, p := range props {
		if err := checkProperty(p); err != nil {
			return nil, fmt.Errorf("%w: property %s: %v", ErrInvalidSchema, name, err)
		}
	}

	r, ok := doc["required"]
	if !ok {
		return raw, nil
	}
	var required []string
	if err := json.Unmarshal(r, &required); err != nil {
		return nil, fmt.Errorf("%w: required: %v", ErrInvalidSchema, err)
	}
	seen := make(map[string]struct{}, len(required))
	dedup := make([]string, 0, len(required))
	for _, name := range required {
		if _, ok := props[name]; !ok {
			return nil, fmt.Errorf("%w: required property missing: %s", ErrInvalidSchema, name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		dedup = append(dedup, name)
	}
	if len(dedup) == len(required) {
		return raw, nil
	}
	b, err := json.Marshal(dedup)
	if err != nil {
		return nil, err
	}
	doc["required"] = b
	return json.Marshal(doc)
}

func checkProperty(p property) error {
	if p.Type == "" {
		return errors.New("missing type")
	}
	if p.Minimum != nil && p.Maximum != nil && *p.Minimum > *p.Maximum {
		return errors.New("minimum greater than maximum")
	}
	if p.MinLen != nil && p.MaxLen != nil && *p.MinLen > *p.MaxLen {
		return errors.New("minLength greater than maxLength")
	}
	if len(p.Enum) > 1 {
		uniq := make(map[string]struct{}, len(p.Enum))
		for _, v := range p.Enum {
			b, _ := json.Marshal(v)
			uniq[string(b)] = struct{}{}
		}
		if len(uniq) != len(p.Enum) {
			return errors.New("duplicate enum values")
		}
	}
	return nil
}
