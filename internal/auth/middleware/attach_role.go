package auth

import (
	"net/http"

	"github.com/mind-engage/mindengage-results/internal/rbac"
)

// AttachRoleFromDB replaces the token's role with the stored one, so a demotion takes effect
// before the token expires. Subjects that no longer exist are refused.
func AttachRoleFromDB(users *Users) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role, ok, err := users.Role(ctx, SubjectFromContext(ctx))
			switch {
			case err != nil:
				http.Error(w, "role lookup failed", http.StatusInternalServerError)
			case !ok:
				http.Error(w, "forbidden", http.StatusForbidden)
			default:
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			}
		})
	}
}
