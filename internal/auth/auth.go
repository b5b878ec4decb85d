// Package auth resolves the caller's session for inbound requests.
//
// Session minting lives with the identity provider; this package only
// validates what the caller presents. An error and a nil session mean the
// same thing: the request is unauthenticated. A session whose UserID is empty
// is valid but anonymous, and nothing is persisted for it.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// ErrUnauthenticated is returned when no usable session accompanies a request.
var ErrUnauthenticated = errors.New("unauthenticated")

// Session is the identity resolved for a request.
type Session struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Anonymous reports whether the session lacks a stable user identity.
func (s *Session) Anonymous() bool {
	return s == nil || strings.TrimSpace(s.UserID) == ""
}

// Authenticator validates an inbound request.
type Authenticator interface {
	Authenticate(r *http.Request) (*Session, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (*Session, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (*Session, error) { return f(r) }

// AnonymousAuthenticator admits every request without an identity.
type AnonymousAuthenticator struct{}

func (AnonymousAuthenticator) Authenticate(*http.Request) (*Session, error) {
	return &Session{}, nil
}

type contextKey struct{}

// WithSession stores a session on the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// SessionFrom returns the session stored by RequireSession.
func SessionFrom(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}

// RequireSession rejects unauthenticated requests with a plain-text 401
// before any downstream work happens.
func RequireSession(a Authenticator, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := a.Authenticate(r)
			if err != nil || s == nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejecting unauthenticated request")
				Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// Unauthorized writes the bare 401 response.
func Unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte("Unauthorized"))
}
