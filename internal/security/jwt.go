// Package security issues and checks the bearer tokens that guard the HTTP
// API.
package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "tenx"

var (
	ErrMissingToken = errors.New("security: missing authorization token")
	ErrInvalidToken = errors.New("security: invalid token")
	ErrExpiredToken = errors.New("security: token expired")
	ErrScope        = errors.New("security: token lacks scope")
)

// Scopes a token may carry. ScopeChat implies ScopeRead.
const (
	ScopeRead = "read"
	ScopeChat = "chat"
)

type contextKey struct{}

// Claims describes an authenticated API client.
type Claims struct {
	Subject   string    `json:"sub"`
	Scopes    []string  `json:"scopes"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Allows reports whether the claims grant scope.
func (c *Claims) Allows(scope string) bool {
	if c == nil {
		return false
	}
	if slices.Contains(c.Scopes, scope) {
		return true
	}
	return scope == ScopeRead && slices.Contains(c.Scopes, ScopeChat)
}

type tokenClaims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies HS256 tokens. An empty secret puts it in
// dev mode: every request passes as an anonymous chat client.
type Authenticator struct {
	secret []byte
	logger *slog.Logger
	now    func() time.Time
	warn   sync.Once
}

func NewAuthenticator(secret string, logger *slog.Logger) *Authenticator {
	a := &Authenticator{logger: logger.With("component", "auth"), now: time.Now}
	if secret != "" {
		a.secret = []byte(secret)
	}
	return a
}

// DevMode reports whether authentication is disabled.
func (a *Authenticator) DevMode() bool { return len(a.secret) == 0 }

// Issue signs a token for subject valid for ttl.
func (a *Authenticator) Issue(subject string, ttl time.Duration, scopes ...string) (string, error) {
	if a.DevMode() {
		return "", errors.New("security: no signing secret configured")
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeChat}
	}
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(a.secret)
}

// Verify parses tokenStr and returns its claims.
func (a *Authenticator) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || tc.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Claims{
		Subject:   tc.Subject,
		Scopes:    tc.Scopes,
		IssuedAt:  tc.IssuedAt.Time,
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}

// FromContext returns the claims stored by Middleware.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok && c != nil
}

func withClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// bearer extracts the token from the Authorization header, falling back to
// the access_token query parameter used by websocket clients.
func bearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if tok := r.URL.Query().Get("access_token"); tok != "" {
			return tok, nil
		}
		return "", ErrMissingToken
	}
	scheme, tok, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || tok == "" {
		return "", ErrInvalidToken
	}
	return tok, nil
}

// Require returns middleware admitting only requests whose token grants
// scope.
func (a *Authenticator) Require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.DevMode() {
				a.warn.Do(func() {
					a.logger.Warn("API authentication disabled: no jwt secret configured")
				})
				anon := &Claims{Subject: "anonymous", Scopes: []string{ScopeChat}}
				next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), anon)))
				return
			}

			tok, err := bearer(r)
			if err == nil {
				var claims *Claims
				if claims, err = a.Verify(tok); err == nil {
					if !claims.Allows(scope) {
						deny(w, http.StatusForbidden, fmt.Errorf("%w %q", ErrScope, scope))
						return
					}
					next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
					return
				}
			}
			a.logger.Debug("request rejected", "path", r.URL.Path, "error", err)
			deny(w, http.StatusUnauthorized, err)
		})
	}
}

func deny(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
