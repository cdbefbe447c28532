package mcpserver

import (
	"fmt"

	"github.com/ggoodman/mcp-engine-go/content"
)

// JSON-RPC error codes handlers may return through ProtocolError.
const (
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeResourceNotFound = -32002
)

// ProtocolError is returned by a handler to answer with a specific JSON-RPC
// error. A zero Code is sent as an internal error.
type ProtocolError struct {
	Code    int
	Message string
	Data    any
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.ErrorCode(), e.Message)
}

// ErrorCode is the code sent on the wire.
func (e *ProtocolError) ErrorCode() int {
	if e.Code == 0 {
		return CodeInternalError
	}
	return e.Code
}

// NewProtocolError builds a ProtocolError with a formatted message.
func NewProtocolError(code int, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ResourceNotFound is the error for reads of unknown URIs.
func ResourceNotFound(uri string) *ProtocolError {
	return &ProtocolError{Code: CodeResourceNotFound, Message: "Resource not found", Data: map[string]string{"uri": uri}}
}

// ToolError reports a failed tool invocation. It is delivered to the client
// as a tool result with isError set rather than as a JSON-RPC error, so the
// model can see what went wrong.
type ToolError struct {
	Message string
	Content []content.Content
}

func (e *ToolError) Error() string { return e.Message }

// Result renders the error as tool result content.
func (e *ToolError) Result() []content.Content {
	if len(e.Content) > 0 {
		return e.Content
	}
	return []content.Content{content.Text{Text: e.Message}}
}

// NewToolError wraps msg as a ToolError.
func NewToolError(msg string, extra ...content.Content) *ToolError {
	return &ToolError{Message: msg, Content: extra}
}

// Errorf is NewToolError with formatting.
func Errorf(format string, args ...any) error {
	return &ToolError{Message: fmt.Sprintf(format, args...)}
}
