// Package jwtauth verifies RFC 9068 JWT access tokens against a JWKS that is
// fetched and refreshed in the background.
package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthorized is returned for tokens that fail signature, issuer,
	// audience or time validation.
	ErrUnauthorized = errors.New("jwtauth: unauthorized")
	// ErrInsufficientScope is returned for valid tokens that lack the
	// required scopes.
	ErrInsufficientScope = errors.New("jwtauth: insufficient_scope")
)

// Config controls token validation.
type Config struct {
	Issuer string
	// Audiences accepted in the aud claim. The first entry is the primary
	// audience; the rest exist for local setups whose public URL differs.
	Audiences []string
	JWKSURL   string

	AllowedAlgs    []string
	Leeway         time.Duration
	RequiredScopes []string
	// AnyScope accepts a token carrying any one of RequiredScopes instead of
	// all of them.
	AnyScope bool
	// RequireATType rejects tokens whose typ header is not at+jwt.
	RequireATType bool
}

func (c Config) withDefaults() Config {
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	if c.Leeway == 0 {
		c.Leeway = 60 * time.Second
	}
	return c
}

// Discovery is the subset of OpenID provider metadata the server uses.
type Discovery struct {
	Issuer                string   `json:"issuer"`
	JWKSURI               string   `json:"jwks_uri"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	RegistrationEndpoint  string   `json:"registration_endpoint"`
	ScopesSupported       []string `json:"scopes_supported"`
	ServiceDocumentation  string   `json:"service_documentation"`
}

// Discover fetches the issuer's openid-configuration document.
func Discover(ctx context.Context, issuer string) (*Discovery, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var d Discovery
	if err := provider.Claims(&d); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if d.JWKSURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}
	return &d, nil
}

// Claims is a verified token.
type Claims struct {
	Subject string
	Scopes  []string
	raw     jwt.MapClaims
}

// Decode unmarshals the raw claims into ref.
func (c *Claims) Decode(ref any) error {
	b, err := json.Marshal(c.raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Verifier validates tokens against one issuer.
type Verifier struct {
	cfg     Config
	keyfunc jwt.Keyfunc
}

// New builds a Verifier. The JWKS is fetched from cfg.JWKSURL and refreshed
// until ctx ends.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	cfg = cfg.withDefaults()
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if len(cfg.Audiences) == 0 {
		return nil, errors.New("at least one audience is required")
	}
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwks uri is required")
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return &Verifier{cfg: cfg, keyfunc: func(t *jwt.Token) (any, error) {
		if alg := t.Method.Alg(); !slices.Contains(cfg.AllowedAlgs, alg) {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return kf.Keyfunc(t)
	}}, nil
}

// Verify checks tok and returns its claims.
func (v *Verifier) Verify(tok string) (*Claims, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithIssuedAt(),
	)
	parsed, err := parser.Parse(tok, v.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}
	if v.cfg.RequireATType {
		if typ, _ := parsed.Header["typ"].(string); typ != "at+jwt" && typ != "application/at+jwt" {
			return nil, fmt.Errorf("%w: invalid typ; want at+jwt", ErrUnauthorized)
		}
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}
	aud, err := claims.GetAudience()
	if err != nil || !slices.ContainsFunc(aud, func(a string) bool { return slices.Contains(v.cfg.Audiences, a) }) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}

	scopeStr, _ := claims["scope"].(string)
	scopes := strings.Fields(scopeStr)
	if !v.scopesSatisfied(scopes) {
		return nil, ErrInsufficientScope
	}
	return &Claims{Subject: sub, Scopes: scopes, raw: claims}, nil
}

func (v *Verifier) scopesSatisfied(have []string) bool {
	if len(v.cfg.RequiredScopes) == 0 {
		return true
	}
	if v.cfg.AnyScope {
		return slices.ContainsFunc(v.cfg.RequiredScopes, func(s string) bool { return slices.Contains(have, s) })
	}
	for _, want := range v.cfg.RequiredScopes {
		if !slices.Contains(have, want) {
			return false
		}
	}
	return true
}
