// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ggoodman/mcp-engine-go/features"
	"github.com/joeshaw/envdecode"
)

// Config holds every setting the example server reads at startup. Defaults
// are provided via struct tags.
type Config struct {
	// Transport selects "http" (SSE and Streamable HTTP) or "stdio".
	// ENV: MCP_TRANSPORT
	Transport string `env:"MCP_TRANSPORT,default=http"`
	// ListenAddr like "127.0.0.1:8080". ENV: MCP_LISTEN_ADDR
	ListenAddr string `env:"MCP_LISTEN_ADDR,default=127.0.0.1:8080"`
	// PublicEndpoint is the externally visible URL of the MCP endpoint and
	// the audience expected in access tokens. ENV: MCP_PUBLIC_ENDPOINT
	PublicEndpoint string `env:"MCP_PUBLIC_ENDPOINT,default=http://127.0.0.1:8080/mcp"`
	ServerName     string `env:"MCP_SERVER_NAME,default=mcp-engine-go"`
	ServerVersion  string `env:"MCP_SERVER_VERSION,default=dev"`
	Instructions   string `env:"MCP_INSTRUCTIONS"`

	LogLevel  string `env:"MCP_LOG_LEVEL,default=info"`
	LogFormat string `env:"MCP_LOG_FORMAT,default=text"`

	MaxSessions    int           `env:"MCP_MAX_SESSIONS,default=1000"`
	SessionIdleTTL time.Duration `env:"MCP_SESSION_IDLE_TTL,default=1h"`
	PageSize       int           `env:"MCP_PAGE_SIZE,default=50"`
	SSEQueueSize   int           `env:"MCP_SSE_QUEUE_SIZE,default=64"`

	ElicitationTimeout time.Duration `env:"MCP_ELICITATION_TIMEOUT,default=5s"`
	RootsTimeout       time.Duration `env:"MCP_ROOTS_TIMEOUT,default=30s"`
	SamplingTimeout    time.Duration `env:"MCP_SAMPLING_TIMEOUT,default=60s"`
	SubscribeTimeout   time.Duration `env:"MCP_SUBSCRIBE_TIMEOUT,default=5m"`

	// RedisAddr enables the Redis broker for cross-instance resource
	// updates. Empty selects the in-process broker. ENV: REDIS_ADDR
	RedisAddr       string `env:"REDIS_ADDR"`
	BrokerKeyPrefix string `env:"MCP_BROKER_KEY_PREFIX,default=mcp:broker:"`

	// ResourcesDir, when set, is exposed as resources and watched for
	// changes. ENV: MCP_RESOURCES_DIR
	ResourcesDir    string `env:"MCP_RESOURCES_DIR"`
	ResourcesPrefix string `env:"MCP_RESOURCES_PREFIX,default=file:///"`

	// OIDCIssuer enables JWT bearer authentication. ENV: OIDC_ISSUER
	OIDCIssuer     string        `env:"OIDC_ISSUER"`
	OIDCJWKSURL    string        `env:"OIDC_JWKS_URL"`
	RequiredScopes []string      `env:"MCP_REQUIRED_SCOPES"`
	TokenLeeway    time.Duration `env:"MCP_TOKEN_LEEWAY,default=60s"`
	// StaticTokens is a semicolon separated list of token=user pairs.
	// Ignored when OIDCIssuer is set. ENV: MCP_STATIC_TOKENS
	StaticTokens []string `env:"MCP_STATIC_TOKENS"`
	AuthRealm    string   `env:"MCP_AUTH_REALM"`
}

// FromEnv decodes a Config from the environment and validates it.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that cannot be caught by decoding alone.
func (c *Config) Validate() error {
	switch c.Transport {
	case "http", "stdio":
	default:
		return fmt.Errorf("MCP_TRANSPORT: must be http or stdio, got %q", c.Transport)
	}
	u, err := url.Parse(c.PublicEndpoint)
	if err != nil {
		return fmt.Errorf("MCP_PUBLIC_ENDPOINT: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("MCP_PUBLIC_ENDPOINT: scheme must be http or https, got %q", u.Scheme)
	}
	if _, err := c.SlogLevel(); err != nil {
		return fmt.Errorf("MCP_LOG_LEVEL: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("MCP_LOG_FORMAT: must be text or json, got %q", c.LogFormat)
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("MCP_MAX_SESSIONS: must be positive")
	}
	if _, err := c.Tokens(); err != nil {
		return fmt.Errorf("MCP_STATIC_TOKENS: %w", err)
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

// Tokens parses StaticTokens into a token to user id map. Nil when unset.
func (c *Config) Tokens() (map[string]string, error) {
	if len(c.StaticTokens) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(c.StaticTokens))
	for _, pair := range c.StaticTokens {
		tok, user, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || tok == "" || user == "" {
			return nil, fmt.Errorf("malformed pair %q, want token=user", pair)
		}
		out[tok] = user
	}
	return out, nil
}

// Features returns the client-call timeouts.
func (c *Config) Features() features.Config {
	return features.Config{
		ElicitationTimeout: c.ElicitationTimeout,
		RootsTimeout:       c.RootsTimeout,
		SamplingTimeout:    c.SamplingTimeout,
		SubscribeTimeout:   c.SubscribeTimeout,
	}
}
