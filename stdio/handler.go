package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/mcp-engine-go/engine"
	"github.com/ggoodman/mcp-engine-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/internal/logctx"
	"github.com/ggoodman/mcp-engine-go/session"
	"github.com/ggoodman/mcp-engine-go/transport"
)

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes them to an io.Writer. By default, it uses
// os.Stdin and os.Stdout. The peer is identified by a UserProvider, which
// defaults to the current OS user.
type Handler struct {
	eng          *engine.Engine
	r            io.Reader
	w            io.Writer
	l            *slog.Logger
	userProvider UserProvider
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(eng *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		eng:          eng,
		r:            os.Stdin,
		w:            os.Stdout,
		l:            slog.Default(),
		userProvider: OSUserProvider{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the stdio event loop until EOF on the reader, the session is
// disconnected or ctx is canceled. It is safe to call at most once per
// Handler. Requests are handled concurrently so that a handler waiting on
// the client (sampling, elicitation, roots) does not stall the read loop.
func (h *Handler) Serve(ctx context.Context) error {
	userID, err := h.userProvider.CurrentUserID()
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	sess := h.eng.Registry().Create(transport.KindStdio, session.WithUserID(userID))
	tr := transport.NewStdio(h.w)
	sess.SetPushTransport(tr)
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: sess.ID(),
		UserID:    userID,
		Transport: string(transport.KindStdio),
	})
	h.l.InfoContext(ctx, "stdio.serve.start")

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(h.r)
		for {
			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				select {
				case lines <- line:
				case <-tr.Closed():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var wg sync.WaitGroup
	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			serveErr = ctx.Err()
			break loop
		case <-tr.Closed():
			break loop
		case err := <-readErr:
			if !errors.Is(err, io.EOF) {
				serveErr = fmt.Errorf("read: %w", err)
			}
			break loop
		case line := <-lines:
			h.dispatch(ctx, sess, tr, line, &wg)
		}
	}

	// Disconnecting fails every pending client call so in-flight handlers
	// can finish.
	h.eng.Disconnect(context.WithoutCancel(ctx), sess)
	wg.Wait()
	h.l.InfoContext(ctx, "stdio.serve.end")
	return serveErr
}

func (h *Handler) dispatch(ctx context.Context, sess *session.Session, tr *transport.Stdio, line []byte, wg *sync.WaitGroup) {
	if trimmed := bytes.TrimSpace(line); trimmed[0] == '[' {
		h.reject(ctx, tr, jsonrpc.ErrorCodeInvalidRequest, "Batch requests are not supported")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		h.l.WarnContext(ctx, "stdio.decode.fail", slog.String("err", err.Error()))
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			h.reject(ctx, tr, jsonrpc.ErrorCodeParseError, "Parse error")
		} else {
			h.reject(ctx, tr, jsonrpc.ErrorCodeInvalidRequest, "Invalid request: "+err.Error())
		}
		return
	}

	switch msg.Type() {
	case jsonrpc.TypeRequest:
		req := msg.AsRequest()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.eng.HandleRequest(ctx, sess, tr, req); err != nil {
				h.l.WarnContext(ctx, "stdio.reply.fail", slog.String("err", err.Error()))
			}
		}()
	case jsonrpc.TypeNotification:
		h.eng.HandleNotification(ctx, sess, msg.AsRequest())
	case jsonrpc.TypeResponse:
		h.eng.HandleResponse(ctx, sess, msg.AsResponse())
	}
}

func (h *Handler) reject(ctx context.Context, tr *transport.Stdio, code jsonrpc.ErrorCode, message string) {
	b, err := json.Marshal(jsonrpc.NewErrorResponse(nil, code, message, nil))
	if err != nil {
		return
	}
	if err := tr.Send(ctx, b); err != nil {
		h.l.WarnContext(ctx, "stdio.reject.fail", slog.String("err", err.Error()))
	}
}
