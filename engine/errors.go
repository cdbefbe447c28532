package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/ggoodman/mcp-engine-go/features"
	"github.com/ggoodman/mcp-engine-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/mcpserver"
)

// invalidParams wraps a decode failure.
func invalidParams(err error) error {
	return mcpserver.NewProtocolError(mcpserver.CodeInvalidParams, "Invalid params: %v", err)
}

// decodeParams unmarshals raw into dst, leaving dst untouched when raw is
// absent or null.
func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams(err)
	}
	return nil
}

// isClientFailure reports errors raised by nested client calls.
func isClientFailure(err error) bool {
	var ce *features.ClientError
	return errors.Is(err, features.ErrNotSupported) || errors.Is(err, features.ErrTimeout) || errors.As(err, &ce)
}

// errorResponse translates a handler error. Protocol errors keep their code;
// everything else becomes an internal error carrying only the message.
func (e *Engine) errorResponse(ctx context.Context, log *slog.Logger, id *jsonrpc.RequestID, err error) *jsonrpc.Response {
	var pe *mcpserver.ProtocolError
	switch {
	case errors.As(err, &pe):
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.Int("code", pe.ErrorCode()), slog.String("err", pe.Message))
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCode(pe.ErrorCode()), pe.Message, pe.Data)
	case errors.Is(err, context.Canceled):
		log.InfoContext(ctx, "engine.handle_request.cancelled")
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "Request cancelled", nil)
	case isClientFailure(err):
		log.InfoContext(ctx, "engine.handle_request.client_fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	default:
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
	}
}
