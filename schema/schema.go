// Package schema produces and holds the JSON Schema documents attached to
// tools (input and output) and elicitation requests. Schemas are opaque
// JSON strings to the rest of the server; this package only guarantees they
// parse as a JSON object.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

// ErrNotObject is returned when a schema document is not a JSON object.
var ErrNotObject = errors.New("schema must be a JSON object")

var (
	reflectMu    sync.Mutex
	reflectCache = map[reflect.Type]json.RawMessage{}
)

// For reflects T into a JSON Schema document. Results are cached per type.
func For[T any]() (json.RawMessage, error) {
	typ := reflect.TypeFor[T]()

	reflectMu.Lock()
	defer reflectMu.Unlock()

	if raw, ok := reflectCache[typ]; ok {
		return raw, nil
	}

	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(T))
	s.Version = ""
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", typ, err)
	}
	reflectCache[typ] = raw
	return raw, nil
}

// MustFor is like For but panics on error. Intended for package-level
// descriptor construction.
func MustFor[T any]() json.RawMessage {
	raw, err := For[T]()
	if err != nil {
		panic(err)
	}
	return raw
}

// Lazy holds a schema string supplied by the application and validates it
// the first time it is needed. It is safe for concurrent use.
type Lazy struct {
	src string

	once sync.Once
	raw  json.RawMessage
	err  error
}

// NewLazy wraps a schema string.
func NewLazy(src string) *Lazy { return &Lazy{src: src} }

// Raw returns the validated schema. An empty source yields an empty object
// schema.
func (l *Lazy) Raw() (json.RawMessage, error) {
	if l == nil {
		return nil, nil
	}
	l.once.Do(func() {
		l.raw, l.err = Parse(l.src)
	})
	return l.raw, l.err
}

// Parse validates that src is a JSON object and returns it compacted.
func Parse(src string) (json.RawMessage, error) {
	if src == "" {
		return json.RawMessage(`{"type":"object"}`), nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(src), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if obj == nil {
		return nil, ErrNotObject
	}
	return json.Marshal(obj)
}
