package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

func TestStaticTokens(t *testing.T) {
	a := StaticTokens{"s3cret": "alice"}

	ui, err := a.CheckAuthentication(t.Context(), "s3cret")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "alice" {
		t.Fatalf("user = %q", ui.UserID())
	}
	if _, err := a.CheckAuthentication(t.Context(), "nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

func TestUserClaims(t *testing.T) {
	u := User{ID: "bob", ClaimsData: map[string]any{"email": "bob@example.com"}}
	var out struct {
		Email string `json:"email"`
	}
	if err := u.Claims(&out); err != nil {
		t.Fatal(err)
	}
	if out.Email != "bob@example.com" {
		t.Fatalf("email = %q", out.Email)
	}
}

func TestJWTWithDiscovery(t *testing.T) {
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	jwks, _ := json.Marshal(struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{{Key: &pk.PublicKey, KeyID: "k1", Algorithm: "RS256", Use: "sig"}}})

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":           srv.URL,
			"jwks_uri":         srv.URL + "/keys",
			"scopes_supported": []string{"mcp"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(jwks) })
	srv = httptest.NewServer(mux)
	defer srv.Close()

	const aud = "https://mcp.example/mcp"
	a, err := NewJWT(t.Context(), srv.URL, aud, WithRequiredScopes("mcp"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	md := a.ResourceMetadata(aud)
	if md.Resource != aud || md.JWKSURI != srv.URL+"/keys" || len(md.AuthorizationServers) != 1 || md.AuthorizationServers[0] != srv.URL {
		t.Fatalf("metadata = %+v", md)
	}

	sign := func(scope string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss":   srv.URL,
			"sub":   "user-1",
			"aud":   aud,
			"exp":   time.Now().Add(time.Hour).Unix(),
			"scope": scope,
		})
		tok.Header["kid"] = "k1"
		s, err := tok.SignedString(pk)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	ui, err := a.CheckAuthentication(t.Context(), sign("mcp"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "user-1" {
		t.Fatalf("user = %q", ui.UserID())
	}
	if _, err := a.CheckAuthentication(t.Context(), sign("other")); !errors.Is(err, ErrInsufficientScope) {
		t.Fatalf("want ErrInsufficientScope, got %v", err)
	}
	if _, err := a.CheckAuthentication(t.Context(), "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}
