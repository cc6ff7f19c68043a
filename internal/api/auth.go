package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for a token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Tokens issues and verifies HS256 player tokens. The subject claim is the
// player id.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokens returns a token service for secret and issuer.
func NewTokens(secret, issuer string) *Tokens {
	return &Tokens{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for playerID valid for ttl.
func (t *Tokens) Issue(playerID string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(playerID) == "" {
		return "", errors.New("player id is required")
	}
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   playerID,
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks signature, issuer and expiry and returns the player id.
func (t *Tokens) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

type playerKey struct{}

// PlayerID returns the authenticated player for a request context.
func PlayerID(ctx context.Context) string {
	id, _ := ctx.Value(playerKey{}).(string)
	return id
}

// WithPlayerID stores playerID in ctx.
func WithPlayerID(ctx context.Context, playerID string) context.Context {
	return context.WithValue(ctx, playerKey{}, playerID)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(tokens *Tokens, eh *ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r)
			if !ok {
				eh.HandleTyped(w, r, http.StatusUnauthorized, ErrTypeUnauthorized, "missing bearer token")
				return
			}
			playerID, err := tokens.Verify(raw)
			if err != nil {
				eh.HandleTyped(w, r, http.StatusUnauthorized, ErrTypeUnauthorized, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPlayerID(r.Context(), playerID)))
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
