// Package mcpserver holds what a server offers: tool, prompt, resource,
// resource template and completion descriptors, the cursor pagination used
// to list them, and the error types handlers return.
//
// Descriptors pair metadata with a handler that receives the request's
// *features.Set, through which it can report progress, check for
// cancellation or make nested requests to the client:
//
//	type EchoArgs struct {
//	    Message string `json:"message"`
//	}
//
//	echo := mcpserver.TypedTool("echo", func(ctx context.Context, f *features.Set, a EchoArgs) (*mcpserver.ToolResult, error) {
//	    return mcpserver.TextResult("you said: " + a.Message), nil
//	}, mcpserver.WithToolDescription("Echo a message back to the caller"))
//
//	srv := mcpserver.New(
//	    mcpserver.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//	    mcpserver.WithTools(echo),
//	)
//
// Schemas are JSON documents. They are parsed once, on first listing.
package mcpserver
