package middleware

import (
	"net/http"
	"slices"

	"github.com/technosupport/ts-vms/internal/data"
)

// RequireRole returns a middleware that rejects requests whose session
// role is not one of allowed (spec.md §3 User.role ∈
// {admin,manager,operator,viewer}). It expects SessionAuth.Middleware to
// have run first; a request with no UserCtx is rejected with 401.
func RequireRole(allowed ...data.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uc, ok := GetAuthContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !slices.Contains(allowed, uc.Role) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission returns a middleware that rejects requests whose
// session's permission list (spec.md §3 User.permissions:[string]) does
// not contain slug. Permissions are flat, company-scoped strings; there is
// no per-site/per-camera grant hierarchy in this spec (contrast the
// teacher's internal/middleware/permissions.go, which layered tenant/site/
// camera scopes over internal/data/permissions.go — that data model has no
// counterpart here, see DESIGN.md).
func RequirePermission(slug string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uc, ok := GetAuthContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if uc.Role != data.RoleAdmin && !slices.Contains(uc.Permissions, slug) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireCompanyMatch enforces spec.md §4.7's invariant that every
// authenticated handler checks user_ctx.company_id == path.company_id
// before any store access. companyIDFromPath extracts the path's company
// id as a string (e.g. chi.URLParam); an empty or non-matching string fails
// the check closed with 403.
func RequireCompanyMatch(companyIDFromPath func(*http.Request) (companyIDString string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uc, ok := GetAuthContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if companyIDFromPath(r) != uc.CompanyID.String() {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
