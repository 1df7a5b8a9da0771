// Package middleware holds HTTP middleware shared by the API routes.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/service/session"
	"github.com/ItsSitanshu/dhyan.ai/backend/pkg/utils"
)

type contextKey struct{ name string }

var (
	resultKey = contextKey{"session-result"}
	tokenKey  = contextKey{"session-token"}
)

// Resolver is the part of the session gate the middleware needs.
type Resolver interface {
	Resolve(ctx context.Context, token string) session.Result
}

// Token extracts the access token from the Authorization bearer header or,
// for EventSource and websocket clients, the token query parameter.
func Token(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// ResolveSession resolves the gate for every request and stores the result
// in the request context.
func ResolveSession(gate Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := Token(r)
			result := gate.Resolve(r.Context(), token)

			ctx := context.WithValue(r.Context(), resultKey, result)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireReady rejects requests whose gate state is not ready: 401 when
// unauthenticated, 403 when the profile row is missing.
func RequireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, _ := SessionResult(r.Context())
		switch result.State {
		case session.StateReady:
			next.ServeHTTP(w, r)
		case session.StateNoProfile:
			utils.RespondJSON(w, http.StatusForbidden, map[string]string{
				"error": "profile required",
				"state": string(result.State),
			})
		default:
			utils.RespondJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "sign in required",
				"state": string(session.StateUnauthenticated),
			})
		}
	})
}

// SessionResult returns the gate result stored by ResolveSession.
func SessionResult(ctx context.Context) (session.Result, bool) {
	result, ok := ctx.Value(resultKey).(session.Result)
	return result, ok
}

// SessionToken returns the access token stored by ResolveSession.
func SessionToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}
