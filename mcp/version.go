package mcp

// ProtocolVersion is a dated MCP protocol revision.
type ProtocolVersion string

const (
	// Version20241105 is the original protocol revision.
	Version20241105 ProtocolVersion = "2024-11-05"
	// Version20250326 adds audio content and tool annotations.
	Version20250326 ProtocolVersion = "2025-03-26"
	// Version20250618 adds titles, structured tool output and resource links.
	Version20250618 ProtocolVersion = LatestProtocolVersion
)

// SupportedVersions lists every revision the server can speak, oldest first.
var SupportedVersions = []ProtocolVersion{Version20241105, Version20250326, Version20250618}

// LatestVersion returns the newest supported revision.
func LatestVersion() ProtocolVersion { return Version20250618 }

// FindVersion maps a requested version string to a supported revision.
// Empty or unknown strings fall back to the latest revision.
func FindVersion(s string) ProtocolVersion {
	for _, v := range SupportedVersions {
		if string(v) == s {
			return v
		}
	}
	return LatestVersion()
}

// IsSupported reports whether s names a supported revision exactly.
func IsSupported(s string) bool {
	for _, v := range SupportedVersions {
		if string(v) == s {
			return true
		}
	}
	return false
}

// AtLeast reports whether v is the same as or newer than o. Revisions are
// ISO dates so lexical order matches chronological order.
func (v ProtocolVersion) AtLeast(o ProtocolVersion) bool { return v >= o }

func (v ProtocolVersion) String() string { return string(v) }
