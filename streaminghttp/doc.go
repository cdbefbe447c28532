// Package streaminghttp mounts an MCP engine as a net/http handler. A single
// endpoint speaks both HTTP transports:
//
//   - Streamable HTTP: every client message is a POST. An initialize POST
//     without an Mcp-Session-Id header creates a session and returns its id
//     in that header. A request is answered with a plain JSON body unless the
//     server needs to talk to the client first, in which case that single
//     response becomes a text/event-stream that ends with the final reply.
//   - SSE (legacy): a GET opens a long-lived event stream. Its first event,
//     "endpoint", names the URL the client POSTs messages to. Those POSTs
//     are acknowledged with 202 and every reply arrives as a "message" event.
//
// DELETE terminates a session of either kind.
//
// Construction
//
//	h, err := streaminghttp.New("https://api.example/mcp", eng,
//	    streaminghttp.WithAuthenticator(authenticator),
//	    streaminghttp.WithLogger(log),
//	)
//
// # Authentication
//
// Without WithAuthenticator every caller is anonymous. With one, requests
// must carry a bearer token and failures are answered with RFC 6750
// challenges. Sessions are bound to the authenticated user id and are
// invisible to other users.
//
// # Protected Resource Metadata (PRM)
//
// When the authenticator implements auth.MetadataProvider the handler serves
// the RFC 9728 document at /.well-known/oauth-protected-resource<path> and
// links it from every WWW-Authenticate challenge via resource_metadata.
package streaminghttp
