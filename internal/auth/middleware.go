// Package auth verifies owner bearer tokens on the controller backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Claims identify the owner behind a token. The subject is the user ID.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the token subject
func (c *Claims) UserID() string {
	return c.Subject
}

type contextKey string

const UserContextKey contextKey = "user"

var ErrNoVerifier = errors.New("neither JWT_SECRET nor OIDC_ISSUER configured")

// Verifier checks token signatures either against a shared HS256 secret or
// against the signing keys published by an OIDC issuer
type Verifier struct {
	keyfunc jwt.Keyfunc
	methods []string
}

// NewVerifier prefers the OIDC issuer when both are configured
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if issuer != "" {
		// Keycloak layout
		jwksURL := strings.TrimSuffix(issuer, "/") + "/protocol/openid-connect/certs"
		k, err := keyfunc.NewDefault([]string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create keyfunc: %w", err)
		}
		return &Verifier{
			keyfunc: k.Keyfunc,
			methods: []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"},
		}, nil
	}

	if secret == "" {
		return nil, ErrNoVerifier
	}
	key := []byte(secret)
	return &Verifier{
		keyfunc: func(*jwt.Token) (interface{}, error) { return key, nil },
		methods: []string{"HS256"},
	}, nil
}

// Verify parses tokenString and returns its claims. Tokens without a
// subject are rejected since every owner operation is keyed by user ID.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc, jwt.WithValidMethods(v.methods))
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// claims in the request context
func Middleware(v *Verifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "auth").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				logger.Debug().Str("path", r.URL.Path).Msg("missing authorization token")
				http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
				return
			}

			claims, err := v.Verify(tokenString)
			if err != nil {
				logger.Warn().Err(err).Str("path", r.URL.Path).Msg("token validation failed")
				http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			logger.Debug().Str("user", claims.UserID()).Msg("user authenticated")

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken gets the token from Authorization header or query parameter
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString != authHeader {
			return tokenString
		}
	}

	// Query parameter for WebSocket connections
	return r.URL.Query().Get("token")
}

// GetUserFromContext retrieves user claims from request context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}

// WithUser returns a copy of ctx carrying claims
func WithUser(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}
