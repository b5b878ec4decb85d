package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig controls HMAC token validation.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	CookieName string
}

// JWTAuthenticator validates HMAC-signed session tokens presented as a bearer
// token or, for browsers and websocket upgrades, as a cookie.
type JWTAuthenticator struct {
	secret     []byte
	cookieName string
	opts       []jwt.ParserOption
}

func NewJWTAuthenticator(cfg JWTConfig) (*JWTAuthenticator, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if iss := strings.TrimSpace(cfg.Issuer); iss != "" {
		opts = append(opts, jwt.WithIssuer(iss))
	}
	if aud := strings.TrimSpace(cfg.Audience); aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}
	return &JWTAuthenticator{
		secret:     []byte(cfg.Secret),
		cookieName: strings.TrimSpace(cfg.CookieName),
		opts:       opts,
	}, nil
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (*Session, error) {
	raw := a.tokenFrom(r)
	if raw == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, a.opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}

	sub, _ := claims.GetSubject()
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	return &Session{
		UserID: strings.TrimSpace(sub),
		Name:   name,
		Email:  email,
	}, nil
}

func (a *JWTAuthenticator) tokenFrom(r *http.Request) string {
	if tok := bearerToken(r.Header.Get("Authorization")); tok != "" {
		return tok
	}
	if a.cookieName == "" {
		return ""
	}
	c, err := r.Cookie(a.cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
