package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-engine-go/auth"
	"github.com/ggoodman/mcp-engine-go/engine"
	"github.com/ggoodman/mcp-engine-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-engine-go/internal/logctx"
	"github.com/ggoodman/mcp-engine-go/mcp"
	"github.com/ggoodman/mcp-engine-go/session"
	"github.com/ggoodman/mcp-engine-go/transport"
	"github.com/google/uuid"
)

var (
	_ http.Handler = (*Handler)(nil)
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
	postAcceptMediaTypes = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
	getAcceptMediaTypes  = []contenttype.MediaType{eventStreamMediaType}
)

const (
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"
	authorizationHeader      = "Authorization"
	wwwAuthenticateHeader    = "WWW-Authenticate"

	sessionIDQuery = "sessionId"
	maxBodyBytes   = 4 << 20
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections before a JSON-RPC
// message exchange is possible. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// writeRPCError emits a JSON-RPC error envelope with a null id. It is used
// when a message was received but could not be routed to a session.
func writeRPCError(w http.ResponseWriter, status int, code jsonrpc.ErrorCode, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonrpc.NewErrorResponse(nil, code, msg, nil))
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	serverName    string
	logger        *slog.Logger
	authenticator auth.Authenticator
	realm         string
	sseQueueSize  int
}

// WithServerName sets a human-readable server name surfaced in PRM.
func WithServerName(name string) Option {
	return func(c *newConfig) { c.serverName = name }
}

// WithLogger sets the logger used by the handler. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithAuthenticator requires a bearer token on every MCP request. When a
// also implements auth.MetadataProvider, the handler serves Protected
// Resource Metadata and links it from its challenges.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *newConfig) { c.authenticator = a }
}

// WithRealm sets the HTTP authentication realm advertised in WWW-Authenticate
// challenges. If empty (default), the realm attribute is omitted entirely per
// RFC 6750 (it is optional).
func WithRealm(realm string) Option {
	return func(c *newConfig) { c.realm = strings.TrimSpace(realm) }
}

// WithSSEQueueSize bounds the number of messages buffered per SSE session.
func WithSSEQueueSize(n int) Option {
	return func(c *newConfig) { c.sseQueueSize = n }
}

// buildBearerChallenge builds a standardized Bearer challenge header value.
// Format:
//
//	Bearer realm="<realm>", resource_metadata="<url>", error="...", error_description="..."
//
// Realm and resource_metadata are omitted if empty.
func buildBearerChallenge(realm string, resourceMetadata string, params map[string]string) string {
	pieces := make([]string, 0, 2+len(params))
	esc := func(v string) string { return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) }
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if resourceMetadata != "" {
		pieces = append(pieces, fmt.Sprintf(`resource_metadata="%s"`, esc(resourceMetadata)))
	}
	for _, k := range []string{"error", "error_description", "scope"} {
		if v, ok := params[k]; ok {
			pieces = append(pieces, fmt.Sprintf(`%s="%s"`, k, esc(v)))
		}
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

// Handler serves both MCP HTTP transports from a single endpoint:
//
//	GET    <path>            open an SSE session
//	POST   <path>/message    SSE message endpoint (?sessionId=...)
//	POST   <path>            Streamable HTTP (or SSE when ?sessionId= is present)
//	DELETE <path>            terminate a session
type Handler struct {
	mux      *http.ServeMux
	log      *slog.Logger
	eng      *engine.Engine
	reg      *session.Registry
	endpoint *url.URL

	auth     auth.Authenticator
	prm      *auth.ResourceMetadata
	prmURL   *url.URL
	realm    string
	sseQueue int
}

// New constructs a Handler mounted at the path of publicEndpoint, the
// externally visible URL of the MCP endpoint (scheme, host, path).
func New(publicEndpoint string, eng *engine.Engine, opts ...Option) (*Handler, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	mcpURL, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", publicEndpoint, err)
	}
	if mcpURL.Scheme != "https" && mcpURL.Scheme != "http" {
		return nil, fmt.Errorf("server URL must use HTTP or HTTPS scheme, got %q", mcpURL.Scheme)
	}

	cfg := &newConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &Handler{
		log:      slog.New(logctx.New(cfg.logger.Handler())),
		eng:      eng,
		reg:      eng.Registry(),
		endpoint: mcpURL,
		auth:     cfg.authenticator,
		realm:    cfg.realm,
		sseQueue: cfg.sseQueueSize,
	}

	path := pathOnly(mcpURL)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, h.handleGet)
	mux.HandleFunc("POST "+path, h.handlePost)
	mux.HandleFunc("DELETE "+path, h.handleDelete)
	mux.HandleFunc("POST "+messagePath(path), h.handleSSEPost)

	if mp, ok := cfg.authenticator.(auth.MetadataProvider); ok {
		md := mp.ResourceMetadata(mcpURL.String())
		if md.ResourceName == "" {
			md.ResourceName = cfg.serverName
		}
		h.prm = &md
		h.prmURL = &url.URL{Scheme: mcpURL.Scheme, Host: mcpURL.Host, Path: "/.well-known/oauth-protected-resource" + strings.TrimSuffix(path, "/")}
		prmPath := h.prmURL.Path
		mux.HandleFunc("GET "+prmPath, h.handleGetProtectedResourceMetadata)
		mux.HandleFunc("OPTIONS "+prmPath, h.handleOptionsProtectedResourceMetadata)
	}

	h.mux = mux
	return h, nil
}

// pathOnly returns just the URL path or "/" if empty.
func pathOnly(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func messagePath(path string) string {
	return strings.TrimSuffix(path, "/") + "/message"
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

func withSession(ctx context.Context, sess *session.Session) context.Context {
	sd := &logctx.SessionData{
		SessionID: sess.ID(),
		UserID:    sess.UserID(),
		Transport: string(sess.Kind()),
		State:     sess.State().String(),
	}
	if sess.State() != session.StateUninitialized {
		sd.ProtocolVersion = string(sess.Version())
	}
	return logctx.WithSessionData(ctx, sd)
}

// lookup resolves id to a live session owned by userID.
func (h *Handler) lookup(id, userID string) (*session.Session, bool) {
	sess, ok := h.reg.Get(id)
	if !ok || sess.UserID() != userID {
		return nil, false
	}
	return sess, true
}

// handleGet opens a legacy SSE session. The first event names the endpoint
// the client POSTs its messages to; every later event carries one JSON-RPC
// message. The session ends when the stream does.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if r.Header.Get("Accept") != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, getAcceptMediaTypes); err != nil {
			writeJSONError(w, http.StatusNotAcceptable, "client must accept text/event-stream")
			h.log.WarnContext(ctx, "http.get.not_acceptable")
			return
		}
	}

	userID, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return
	}

	if sid := r.Header.Get(mcpSessionIDHeader); sid != "" {
		if sess, found := h.lookup(sid, userID); found && sess.Kind() == transport.KindStreamable {
			w.Header().Set("Allow", "POST, DELETE")
			writeJSONError(w, http.StatusMethodNotAllowed, "streamable sessions do not support a standalone event stream")
			h.log.InfoContext(withSession(ctx, sess), "http.get.streamable_rejected")
			return
		}
	}

	ex := newExchange(w, r)
	stream, err := ex.OpenStream()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "sse.upgrade.fail", slog.String("err", err.Error()))
		return
	}

	sess := h.reg.Create(transport.KindSSE, session.WithUserID(userID))
	ctx = withSession(ctx, sess)

	endpoint := messagePath(pathOnly(h.endpoint)) + "?" + sessionIDQuery + "=" + url.QueryEscape(sess.ID())
	sseOpts := []transport.SSEOption{transport.WithSSELogger(h.log)}
	if h.sseQueue > 0 {
		sseOpts = append(sseOpts, transport.WithSSEQueueSize(h.sseQueue))
	}
	tr := transport.NewSSE(stream, endpoint, sseOpts...)
	sess.SetPushTransport(tr)

	h.log.InfoContext(ctx, "sse.stream.start")
	if err := tr.OnConnect(ctx); err != nil && !errors.Is(err, context.Canceled) {
		h.log.WarnContext(ctx, "sse.stream.fail", slog.String("err", err.Error()))
	}

	h.eng.Disconnect(context.WithoutCancel(ctx), sess)
	h.log.InfoContext(ctx, "sse.stream.end", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

// readMessage enforces the JSON content type and decodes a single JSON-RPC
// message. Batches are rejected.
func (h *Handler) readMessage(ctx context.Context, w http.ResponseWriter, r *http.Request) (*jsonrpc.AnyMessage, bool) {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "unable to read body")
		h.log.WarnContext(ctx, "body.read.fail", slog.String("err", err.Error()))
		return nil, false
	}
	if trimmed := strings.TrimSpace(string(body)); strings.HasPrefix(trimmed, "[") {
		writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeInvalidRequest, "Batch requests are not supported")
		h.log.WarnContext(ctx, "jsonrpc.batch.rejected")
		return nil, false
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeParseError, "Parse error")
		} else {
			writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeInvalidRequest, "Invalid request: "+err.Error())
		}
		h.log.WarnContext(ctx, "jsonrpc.decode.fail", slog.String("err", err.Error()))
		return nil, false
	}
	return &msg, true
}

// checkProtocolVersion rejects requests whose Mcp-Protocol-Version header
// disagrees with the version negotiated for sess.
func (h *Handler) checkProtocolVersion(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	pv := r.Header.Get(mcpProtocolVersionHeader)
	if pv == "" || sess.State() == session.StateUninitialized {
		return true
	}
	if pv == string(sess.Version()) {
		return true
	}
	msg := fmt.Sprintf("Unsupported protocol version %q: session negotiated %q", pv, sess.Version())
	if !mcp.IsSupported(pv) {
		msg = fmt.Sprintf("Unsupported protocol version %q", pv)
	}
	writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeInvalidRequest, msg)
	h.log.WarnContext(ctx, "protocol.version.mismatch", slog.String("client_version", pv))
	return false
}

// handlePost serves the Streamable HTTP transport. A POST carrying a
// sessionId query parameter is an SSE client using the base path and is
// routed to handleSSEPost.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get(sessionIDQuery) != "" {
		h.handleSSEPost(w, r)
		return
	}

	start := time.Now()
	ctx := r.Context()
	h.log.DebugContext(ctx, "http.post.start")

	if r.Header.Get("Accept") != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, postAcceptMediaTypes); err != nil {
			writeJSONError(w, http.StatusNotAcceptable, "client must accept application/json or text/event-stream")
			h.log.WarnContext(ctx, "http.post.not_acceptable")
			return
		}
	}

	userID, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return
	}

	msg, ok := h.readMessage(ctx, w, r)
	if !ok {
		return
	}

	var sess *session.Session
	created := false
	if sid := r.Header.Get(mcpSessionIDHeader); sid == "" {
		if msg.Type() != jsonrpc.TypeRequest || msg.Method != string(mcp.InitializeMethod) {
			writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeInvalidRequest, "Bad Request: missing Mcp-Session-Id header")
			h.log.WarnContext(ctx, "session.id.missing", slog.String("method", msg.Method))
			return
		}
		sess = h.reg.Create(transport.KindStreamable, session.WithUserID(userID))
		created = true
		w.Header().Set(mcpSessionIDHeader, sess.ID())
	} else {
		found := false
		sess, found = h.lookup(sid, userID)
		if !found {
			writeRPCError(w, http.StatusNotFound, jsonrpc.ErrorCodeInvalidRequest, "Session not found")
			h.log.InfoContext(ctx, "session.load.miss")
			return
		}
		if sess.Kind() != transport.KindStreamable {
			writeRPCError(w, http.StatusBadRequest, jsonrpc.ErrorCodeInvalidRequest, "Session uses the SSE transport")
			h.log.WarnContext(withSession(ctx, sess), "session.kind.mismatch")
			return
		}
	}
	ctx = withSession(ctx, sess)

	if !h.checkProtocolVersion(ctx, w, r, sess) {
		return
	}
	if sess.State() != session.StateUninitialized {
		w.Header().Set(mcpProtocolVersionHeader, string(sess.Version()))
	}

	switch msg.Type() {
	case jsonrpc.TypeRequest:
		req := msg.AsRequest()
		ex := newExchange(w, r)
		tr := transport.NewStreamable(ex, req.ID.String(), h.log)
		if err := h.eng.HandleRequest(ctx, sess, tr, req); err != nil {
			h.log.WarnContext(ctx, "http.post.reply.fail", slog.String("err", err.Error()))
		}
		tr.OnDisconnect()
		if created && sess.State() == session.StateUninitialized {
			h.reg.Remove(sess.ID())
			h.log.InfoContext(ctx, "session.initialize.abandoned")
		}
		h.log.InfoContext(ctx, "http.post.ok",
			slog.Bool("streamed", tr.Upgraded()),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	case jsonrpc.TypeNotification:
		h.eng.HandleNotification(ctx, sess, msg.AsRequest())
		w.WriteHeader(http.StatusAccepted)
	case jsonrpc.TypeResponse:
		h.eng.HandleResponse(ctx, sess, msg.AsResponse())
		w.WriteHeader(http.StatusAccepted)
	}
}

// handleSSEPost accepts a message for an SSE session. The POST is
// acknowledged with 202 straight away; replies travel over the session's
// event stream.
func (h *Handler) handleSSEPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return
	}

	sid := r.URL.Query().Get(sessionIDQuery)
	if sid == "" {
		writeJSONError(w, http.StatusBadRequest, "missing sessionId")
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}
	sess, found := h.lookup(sid, userID)
	if !found {
		writeJSONError(w, http.StatusNotFound, "session not found")
		h.log.InfoContext(ctx, "session.load.miss")
		return
	}
	ctx = withSession(ctx, sess)
	tr := sess.PushTransport()
	if sess.Kind() != transport.KindSSE || tr == nil {
		writeJSONError(w, http.StatusBadRequest, "session has no event stream")
		h.log.WarnContext(ctx, "session.kind.mismatch")
		return
	}

	msg, ok := h.readMessage(ctx, w, r)
	if !ok {
		return
	}
	if !h.checkProtocolVersion(ctx, w, r, sess) {
		return
	}

	w.WriteHeader(http.StatusAccepted)

	// The dispatch outlives the POST: nested requests are answered by later
	// POSTs to this same endpoint.
	dctx := context.WithoutCancel(ctx)
	switch msg.Type() {
	case jsonrpc.TypeRequest:
		req := msg.AsRequest()
		go func() {
			if err := h.eng.HandleRequest(dctx, sess, tr, req); err != nil {
				h.log.WarnContext(dctx, "sse.reply.fail", slog.String("err", err.Error()))
			}
		}()
	case jsonrpc.TypeNotification:
		h.eng.HandleNotification(dctx, sess, msg.AsRequest())
	case jsonrpc.TypeResponse:
		h.eng.HandleResponse(dctx, sess, msg.AsResponse())
	}
}

// handleDelete terminates a session named by the Mcp-Session-Id header or
// the sessionId query parameter.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.checkAuthentication(ctx, r, w)
	if !ok {
		return
	}

	sid := r.Header.Get(mcpSessionIDHeader)
	if sid == "" {
		sid = r.URL.Query().Get(sessionIDQuery)
	}
	if sid == "" {
		writeJSONError(w, http.StatusBadRequest, "missing Mcp-Session-Id header")
		h.log.WarnContext(ctx, "delete.missing_session_id")
		return
	}

	sess, found := h.lookup(sid, userID)
	if !found {
		w.WriteHeader(http.StatusNotFound)
		h.log.InfoContext(ctx, "session.delete.miss")
		return
	}
	ctx = withSession(ctx, sess)
	if !h.checkProtocolVersion(ctx, w, r, sess) {
		return
	}

	h.eng.Disconnect(ctx, sess)
	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "http.delete.ok")
}

func (h *Handler) handleOptionsProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

// handleGetProtectedResourceMetadata serves the OAuth2 Protected Resource Metadata document.
func (h *Handler) handleGetProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Vary", "Origin")
	w.Header().Set("Content-Type", jsonMediaType.String())
	if err := json.NewEncoder(w).Encode(h.prm); err != nil {
		h.log.ErrorContext(r.Context(), "prm.encode.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) prmLink() string {
	if h.prmURL == nil {
		return ""
	}
	return h.prmURL.String()
}

// checkAuthentication resolves the caller's user id. Without an
// authenticator every caller is anonymous and shares the empty user id.
// On failure the response has already been written.
func (h *Handler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) (string, bool) {
	if h.auth == nil {
		return "", true
	}

	authHeader := r.Header.Get(authorizationHeader)
	if authHeader == "" {
		// RFC 6750 §3.1: no error code when the request carried no credentials.
		h.log.InfoContext(ctx, "auth.check.missing")
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, h.prmLink(), nil))
		w.WriteHeader(http.StatusUnauthorized)
		return "", false
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) <= len(bearerPrefix) || !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, h.prmLink(), map[string]string{"error": "invalid_request", "error_description": "malformed bearer authorization header"}))
		w.WriteHeader(http.StatusBadRequest)
		return "", false
	}
	tok := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if tok == "" {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "empty bearer token"))
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, h.prmLink(), map[string]string{"error": "invalid_request", "error_description": "empty bearer token"}))
		w.WriteHeader(http.StatusBadRequest)
		return "", false
	}

	userInfo, err := h.auth.CheckAuthentication(ctx, tok)
	switch {
	case err == nil:
		return userInfo.UserID(), true
	case errors.Is(err, auth.ErrInsufficientScope):
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, h.prmLink(), map[string]string{"error": "insufficient_scope", "error_description": err.Error()}))
		w.WriteHeader(http.StatusForbidden)
	case errors.Is(err, auth.ErrUnauthorized):
		h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(h.realm, h.prmLink(), map[string]string{"error": "invalid_token", "error_description": err.Error()}))
		w.WriteHeader(http.StatusUnauthorized)
	default:
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
	return "", false
}
