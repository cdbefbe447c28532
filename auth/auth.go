package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInsufficientScope indicates the caller authenticated but lacks required scope.
var ErrInsufficientScope = errors.New("insufficient scope")

// UserInfo represents an authenticated principal.
// Implementations should be lightweight and safe for concurrent use.
type UserInfo interface {
	// UserID returns the unique identifier for the user. Sessions are bound
	// to it.
	UserID() string
	// Claims unmarshalls the user's claims into the provided struct reference.
	Claims(ref any) error
}

// Authenticator validates bearer tokens and returns associated user info.
// It should return ErrUnauthorized for invalid credentials.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, tok string) (UserInfo, error)

func (f AuthenticatorFunc) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	return f(ctx, tok)
}

// User is a UserInfo with a fixed id and claim set.
type User struct {
	ID         string
	ClaimsData map[string]any
}

func (u User) UserID() string { return u.ID }

func (u User) Claims(ref any) error {
	b, err := json.Marshal(u.ClaimsData)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// StaticTokens authenticates a fixed set of opaque tokens, each mapped to a
// user id. It suits development setups and tests.
type StaticTokens map[string]string

var _ Authenticator = StaticTokens(nil)

func (s StaticTokens) CheckAuthentication(_ context.Context, tok string) (UserInfo, error) {
	for known, user := range s {
		if subtle.ConstantTimeCompare([]byte(known), []byte(tok)) == 1 {
			return User{ID: user}, nil
		}
	}
	return nil, ErrUnauthorized
}
