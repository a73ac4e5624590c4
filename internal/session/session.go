// Package session derives the per-request identity used by the access gate.
//
// A Source supplies the raw session token of a request and, given a token,
// the user record it belongs to. Lookups never fail loudly: anything that
// goes wrong is reported as an absent value.
package session

import (
	"context"
	"net/http"

	"github.com/givebridge/givebridge/internal/auth"
)

// User is the resolved user record of a session
type User struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  auth.Role `json:"-"`
}

// Session is the identity derived for a single request
type Session struct {
	Token string
	User  *User
}

// Authenticated reports whether the request carried a token
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Resolved reports whether the token's user record was found
func (s Session) Resolved() bool {
	return s.User != nil
}

// Source is the session collaborator consumed by the gate
type Source interface {
	Token(r *http.Request) (string, bool)
	UserData(ctx context.Context, token string) (*User, bool)
}

// Resolve derives the session of a request. The user lookup only runs
// when a token is present.
func Resolve(ctx context.Context, src Source, r *http.Request) Session {
	token, ok := src.Token(r)
	if !ok || token == "" {
		return Session{}
	}

	sess := Session{Token: token}
	if user, ok := src.UserData(ctx, token); ok {
		sess.User = user
	}
	return sess
}
