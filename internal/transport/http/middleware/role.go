package middleware

import (
	"net/http"
	"slices"
)

// RequireRole admits requests whose token carries one of roles. It must run
// after Auth or OptionalAuth so the claims are already in the context.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			switch {
			case !ok:
				writeJSONError(w, http.StatusUnauthorized, "missing credentials")
			case !slices.Contains(roles, claims.Role):
				writeJSONError(w, http.StatusForbidden, "role may not access this resource")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
