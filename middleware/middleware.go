// Package middleware exposes an HTTP adapter for access-token enforcement
// built on Engine.ValidateAccess.
//
// Guard reads the Authorization header, validates the bearer token offline
// against the engine's published key set, and injects the token claims into
// the request context. It translates HTTP semantics into Engine calls and
// makes no authorization decisions of its own.
package middleware

import (
	"context"
	"net/http"
	"strings"

	authcore "github.com/nextrealm/authcore"
	"github.com/nextrealm/authcore/token"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the validated access-token claims injected by
// Guard.
func ClaimsFromContext(ctx context.Context) (token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(token.Claims)
	return claims, ok
}

// Guard rejects requests without a valid bearer access token and passes the
// claims downstream via the request context.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			bearer, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.ValidateAccess(r.Context(), bearer)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	tok := value[len(bearer):]
	if tok == "" {
		return "", false
	}

	return tok, true
}
