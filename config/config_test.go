package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Transport != "http" || cfg.ListenAddr != "127.0.0.1:8080" || cfg.PublicEndpoint != "http://127.0.0.1:8080/mcp" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.MaxSessions != 1000 || cfg.SessionIdleTTL != time.Hour || cfg.PageSize != 50 {
		t.Fatalf("cfg = %+v", cfg)
	}
	f := cfg.Features()
	if f.ElicitationTimeout != 5*time.Second || f.SubscribeTimeout != 5*time.Minute {
		t.Fatalf("features = %+v", f)
	}
	if cfg.RedisAddr != "" || cfg.OIDCIssuer != "" {
		t.Fatalf("optional settings should be empty: %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MCP_PUBLIC_ENDPOINT", "https://mcp.example.com/mcp")
	t.Setenv("MCP_LOG_LEVEL", "debug")
	t.Setenv("MCP_ELICITATION_TIMEOUT", "2s")
	t.Setenv("MCP_REQUIRED_SCOPES", "mcp:read;mcp:write")
	t.Setenv("MCP_STATIC_TOKENS", "t1=alice;t2=bob")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if lvl, _ := cfg.SlogLevel(); lvl != slog.LevelDebug {
		t.Fatalf("level = %v", lvl)
	}
	if cfg.Features().ElicitationTimeout != 2*time.Second {
		t.Fatalf("elicitation timeout = %v", cfg.ElicitationTimeout)
	}
	if len(cfg.RequiredScopes) != 2 || cfg.RequiredScopes[1] != "mcp:write" {
		t.Fatalf("scopes = %v", cfg.RequiredScopes)
	}
	toks, err := cfg.Tokens()
	if err != nil || toks["t1"] != "alice" || toks["t2"] != "bob" {
		t.Fatalf("tokens = %v, %v", toks, err)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("redis = %q", cfg.RedisAddr)
	}
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"transport", "MCP_TRANSPORT", "carrier-pigeon"},
		{"endpoint scheme", "MCP_PUBLIC_ENDPOINT", "ftp://example.com/mcp"},
		{"log level", "MCP_LOG_LEVEL", "loud"},
		{"log format", "MCP_LOG_FORMAT", "xml"},
		{"max sessions", "MCP_MAX_SESSIONS", "0"},
		{"token pair", "MCP_STATIC_TOKENS", "missing-user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
