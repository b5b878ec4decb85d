package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func newTestAuthenticator(t *testing.T) *JWTAuthenticator {
	t.Helper()
	a, err := NewJWTAuthenticator(JWTConfig{Secret: testSecret, CookieName: "session_token"})
	require.NoError(t, err)
	return a
}

func TestJWTAuthenticatorBearerToken(t *testing.T) {
	a := newTestAuthenticator(t)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{
		"sub":   "u1",
		"email": "u1@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}))

	s, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "u1@example.com", s.Email)
	assert.False(t, s.Anonymous())
}

func TestJWTAuthenticatorCookie(t *testing.T) {
	a := newTestAuthenticator(t)
	req := httptest.NewRequest(http.MethodGet, "/api/chat/ws", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: signToken(t, testSecret, jwt.MapClaims{"sub": "u2"})})

	s, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "u2", s.UserID)
}

func TestJWTAuthenticatorWithoutSubjectIsAnonymous(t *testing.T) {
	a := newTestAuthenticator(t)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"name": "guest"}))

	s, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.True(t, s.Anonymous())
}

func TestJWTAuthenticatorRejects(t *testing.T) {
	a := newTestAuthenticator(t)
	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"basic scheme", "Basic abc"},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": "u1"})},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			s, err := a.Authenticate(req)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestJWTAuthenticatorIssuerAndAudience(t *testing.T) {
	a, err := NewJWTAuthenticator(JWTConfig{Secret: testSecret, Issuer: "summit", Audience: "chat"})
	require.NoError(t, err)

	good := httptest.NewRequest(http.MethodPost, "/", nil)
	good.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "iss": "summit", "aud": "chat"}))
	_, err = a.Authenticate(good)
	require.NoError(t, err)

	bad := httptest.NewRequest(http.MethodPost, "/", nil)
	bad.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "iss": "elsewhere", "aud": "chat"}))
	_, err = a.Authenticate(bad)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNewJWTAuthenticatorRequiresSecret(t *testing.T) {
	_, err := NewJWTAuthenticator(JWTConfig{})
	assert.Error(t, err)
}

func TestRequireSession(t *testing.T) {
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		s, ok := SessionFrom(r.Context())
		require.True(t, ok)
		assert.Equal(t, "u1", s.UserID)
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireSession(newTestAuthenticator(t), zerolog.Nop())(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "Unauthorized", string(body))
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"sub": "u1"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.True(t, reached)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAnonymousAuthenticator(t *testing.T) {
	s, err := AnonymousAuthenticator{}.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.True(t, s.Anonymous())
}
