// Package stdio implements a single-connection MCP transport over
// stdin/stdout. It is intended for embedding servers as subprocesses, local
// development, and environments where spawning a child process and piping JSON
// is simpler than running an HTTP server.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : OS user (lightweight implicit principal)
//	Sessions         : one per Serve call, registered with the engine
//	Transport        : newline-delimited JSON-RPC
//
// Options allow supplying alternate io.Reader / io.Writer or a custom logger.
//
// Example:
//
//	reg := session.NewRegistry()
//	srv := mcpserver.New(mcpserver.WithTools(tools...))
//	h := stdio.NewHandler(engine.New(reg, srv))
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
//
// For multi-session deployments prefer the streaminghttp transport, which
// adds authentication and serves many clients from one process.
package stdio
