package stdio

import (
	"os/user"
)

// UserProvider names the peer on the other end of the pipe. The id becomes
// the session's user id, the same slot an HTTP bearer token fills.
type UserProvider interface {
	CurrentUserID() (string, error)
}

// OSUserProvider reports the user running the process: the username when
// the platform has one, the uid otherwise.
type OSUserProvider struct{}

func (OSUserProvider) CurrentUserID() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	if u.Username != "" {
		return u.Username, nil
	}
	return u.Uid, nil
}

// StaticUser always reports the same id.
type StaticUser string

func (s StaticUser) CurrentUserID() (string, error) { return string(s), nil }
