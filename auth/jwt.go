package auth

import (
	"context"
	"errors"
	"time"

	"github.com/ggoodman/mcp-engine-go/internal/jwtauth"
)

// ResourceMetadata is the OAuth 2.0 Protected Resource Metadata document
// (RFC 9728) served under /.well-known/oauth-protected-resource.
type ResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	JWKSURI                string   `json:"jwks_uri,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
	ResourceDocumentation  string   `json:"resource_documentation,omitempty"`
}

// MetadataProvider is implemented by authenticators that can describe the
// authorization server protecting a resource.
type MetadataProvider interface {
	ResourceMetadata(resource string) ResourceMetadata
}

// JWTOption configures NewJWT.
type JWTOption func(*jwtauth.Config)

// WithRequiredScopes requires all of the provided scopes to be present in the
// space-delimited "scope" claim.
func WithRequiredScopes(scopes ...string) JWTOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.AnyScope = false
	}
}

// WithAnyRequiredScope requires at least one of the provided scopes.
func WithAnyRequiredScope(scopes ...string) JWTOption {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.AnyScope = true
	}
}

// WithAllowedAlgs restricts allowed JWS algorithms. Defaults to RS256.
func WithAllowedAlgs(algs ...string) JWTOption {
	return func(c *jwtauth.Config) { c.AllowedAlgs = append([]string(nil), algs...) }
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) JWTOption {
	return func(c *jwtauth.Config) { c.Leeway = d }
}

// WithJWKSURL skips OIDC discovery and verifies against the given key set.
func WithJWKSURL(url string) JWTOption {
	return func(c *jwtauth.Config) { c.JWKSURL = url }
}

// WithExtraAudiences accepts additional aud values besides the primary one.
func WithExtraAudiences(aud ...string) JWTOption {
	return func(c *jwtauth.Config) { c.Audiences = append(c.Audiences, aud...) }
}

// WithAccessTokenType requires the RFC 9068 at+jwt typ header.
func WithAccessTokenType() JWTOption {
	return func(c *jwtauth.Config) { c.RequireATType = true }
}

// JWT authenticates RFC 9068 access tokens issued by one authorization
// server.
type JWT struct {
	v      *jwtauth.Verifier
	issuer string
	jwks   string
	scopes []string
}

var (
	_ Authenticator    = (*JWT)(nil)
	_ MetadataProvider = (*JWT)(nil)
)

// NewJWT builds a JWT authenticator for tokens issued by issuer to audience.
// Unless WithJWKSURL is given, the key set location is discovered through
// the issuer's openid-configuration. Keys refresh until ctx ends.
func NewJWT(ctx context.Context, issuer, audience string, opts ...JWTOption) (*JWT, error) {
	if audience == "" {
		return nil, errors.New("audience is required")
	}
	cfg := jwtauth.Config{Issuer: issuer, Audiences: []string{audience}}
	for _, opt := range opts {
		opt(&cfg)
	}

	j := &JWT{issuer: issuer, scopes: cfg.RequiredScopes}
	if cfg.JWKSURL == "" {
		d, err := jwtauth.Discover(ctx, issuer)
		if err != nil {
			return nil, err
		}
		cfg.JWKSURL = d.JWKSURI
		if len(j.scopes) == 0 {
			j.scopes = d.ScopesSupported
		}
	}
	j.jwks = cfg.JWKSURL

	v, err := jwtauth.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	j.v = v
	return j, nil
}

func (j *JWT) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	claims, err := j.v.Verify(tok)
	if err != nil {
		if errors.Is(err, jwtauth.ErrInsufficientScope) {
			return nil, errors.Join(ErrInsufficientScope, err)
		}
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return jwtUser{claims}, nil
}

// ResourceMetadata describes the issuer protecting resource.
func (j *JWT) ResourceMetadata(resource string) ResourceMetadata {
	return ResourceMetadata{
		Resource:               resource,
		AuthorizationServers:   []string{j.issuer},
		JWKSURI:                j.jwks,
		ScopesSupported:        append([]string(nil), j.scopes...),
		BearerMethodsSupported: []string{"header"},
	}
}

type jwtUser struct{ c *jwtauth.Claims }

func (u jwtUser) UserID() string       { return u.c.Subject }
func (u jwtUser) Claims(ref any) error { return u.c.Decode(ref) }
