package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/authcore-io/authcore"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the validated token claims stored by
// [RequireAuth], if any.
func ClaimsFromContext(ctx context.Context) (*authcore.TokenClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authcore.TokenClaims)
	return claims, ok
}

// RequireAuth returns middleware that rejects requests without a valid
// bearer access token. On success the validated claims are attached to the
// request context for [ClaimsFromContext].
func RequireAuth(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.ValidateAccessToken(r.Context(), token)
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

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
