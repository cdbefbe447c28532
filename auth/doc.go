// Package auth provides the bearer-token gate in front of the HTTP surface.
//
// An Authenticator validates an incoming bearer token string and returns a
// UserInfo (or an error). The HTTP handler extracts the token, maps the
// sentinel errors to RFC 6750 challenges and binds every session to the
// authenticated user id.
//
// NewJWT validates RFC 9068 access tokens against an issuer's JWKS, found
// through OpenID Connect discovery unless WithJWKSURL is given:
//
//	authn, err := auth.NewJWT(ctx, "https://issuer.example", "https://mcp.example/mcp",
//	    auth.WithRequiredScopes("mcp:read"),
//	)
//
// StaticTokens maps opaque tokens to user ids for development.
//
// ErrUnauthorized signals an invalid token (signature, expiry, audience).
// ErrInsufficientScope signals a valid token missing required scopes.
package auth
