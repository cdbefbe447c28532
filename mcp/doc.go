// Package mcp contains protocol data types and constants shared across
// transports and the dispatch engine. It mirrors the wire representation of
// the Model Context Protocol while keeping the surface Go-friendly (exported
// structs with json tags, string constants for method names and
// enumerations, helper validation functions).
//
// The package is free of transport logic. Wire structs describe the newest
// protocol revision; fields introduced by later revisions are optional
// (omitzero/omitempty) so that the version-aware serializer in
// internal/wire can leave them unset when a session negotiated an older
// revision.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod).
//
// # Versions
//
// ProtocolVersion enumerates the supported revisions. FindVersion maps the
// string a client proposes during initialize to a revision, falling back to
// LatestVersion for empty or unknown input.
//
// # Logging Levels
//
// LoggingLevel values mirror syslog severities. Use IsValidLoggingLevel to
// validate user-provided values and Severity to compare them.
package mcp
