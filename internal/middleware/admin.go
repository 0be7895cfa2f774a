package middleware

import (
	"context"
	"net/http"
)

// Admin roles. A super admin holds every role implicitly; other admins are
// granted roles one at a time.
const (
	RoleManageCurrencies = "CanManageCurrencies"
	RoleManageItems      = "CanManageItems"
	RoleManageNFTs       = "CanManageNFTs"
	RoleManageUsers      = "CanManageUsers"
	RoleViewAudit        = "CanViewAudit"

	// AnyAdmin passed to RequireAdmin admits every admin.
	AnyAdmin = ""
)

var grantableRoles = map[string]bool{
	RoleManageCurrencies: true,
	RoleManageItems:      true,
	RoleManageNFTs:       true,
	RoleManageUsers:      true,
	RoleViewAudit:        true,
}

// KnownRole reports whether role can be granted to an admin.
func KnownRole(role string) bool {
	return grantableRoles[role]
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID int64) (bool, bool, error)
	HasRole(ctx context.Context, userID int64, role string) (bool, error)
}

// RequireAdmin guards the inventory admin surface: currency and item
// management, NFT minting, user blocking and the audit views. It must run
// after Auth. Super admins pass every check; other admins need role.
func RequireAdmin(adminStore AdminStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			isAdmin, isSuper, err := adminStore.IsAdmin(r.Context(), userID)
			if err != nil {
				http.Error(w, "unable to verify admin", http.StatusInternalServerError)
				return
			}
			if !isAdmin {
				http.Error(w, "admin privileges required", http.StatusForbidden)
				return
			}
			if isSuper || role == AnyAdmin {
				next.ServeHTTP(w, r)
				return
			}
			if !KnownRole(role) {
				http.Error(w, "unknown admin role", http.StatusInternalServerError)
				return
			}
			hasRole, err := adminStore.HasRole(r.Context(), userID, role)
			if err != nil {
				http.Error(w, "unable to verify role", http.StatusInternalServerError)
				return
			}
			if !hasRole {
				http.Error(w, "missing "+role, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
