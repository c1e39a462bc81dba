// Package auth provides bearer-token authentication and per-client rate
// limiting for the HTTP surface. Authentication of the transport is outside
// the protocol core; this layer is optional and config-driven.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hamidra/a2alite/internal/logger"
)

type contextKey string

const contextKeyToken contextKey = "auth_token"

// TokenFromContext returns the authenticated bearer token, or "" when the
// request was not authenticated.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyToken).(string); ok {
		return v
	}
	return ""
}

// Middleware creates HTTP middleware validating a static bearer token set.
// An empty token set disables authentication.
func Middleware(tokens []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		allowed[t] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				jsonError(w, "Authentication required (Bearer token)", http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			if !tokenAllowed(allowed, token) {
				logger.Slog().Info("token validation failed", "token", maskToken(token))
				jsonError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tokenAllowed compares in constant time against every configured token.
func tokenAllowed(allowed map[string]struct{}, token string) bool {
	for t := range allowed {
		if len(t) == len(token) && subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    -32000,
			"message": message,
		},
		"id": nil,
	})
}

func maskToken(token string) string {
	if len(token) <= 12 {
		return "***"
	}
	return token[:8] + "..." + token[len(token)-4:]
}
