package model

import "errors"

// Credential validation errors.
//
// Package-level sentinels rather than ad-hoc error values so that
// callers can branch with errors.Is while still getting readable
// messages.
var (
	// ErrMissingUsername is returned when credentials lack a username.
	ErrMissingUsername = errors.New("credentials: username is empty")

	// ErrMissingPassword is returned when credentials lack a password.
	ErrMissingPassword = errors.New("credentials: password is empty")
)

// Credentials are the stored annotation-service login. They are written
// to persistent local storage on login and removed entirely on logout.
//
// The annotation service authenticates every request with these values
// in the request body; there is no session token. The values therefore
// transit only through the storage layer and the remote client, and
// must never be logged (the log package masks them as a second line of
// defense).
type Credentials struct {
	// Username is the account name.
	Username string `json:"username"`

	// Password is the account password, stored as entered.
	Password string `json:"password"`
}

// Validate checks that both fields are present.
func (c Credentials) Validate() error {
	if c.Username == "" {
		return ErrMissingUsername
	}
	if c.Password == "" {
		return ErrMissingPassword
	}
	return nil
}

// Empty reports whether no credentials are stored.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == ""
}
