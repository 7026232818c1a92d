package middleware

import (
	"context"
	"net/http"

	"gigtasks/models"
	"gigtasks/utils"
)

type adminKey struct{}

// Admin verifies that the request is from an authenticated, active admin.
func (a *Auth) Admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := a.authenticate(w, r)
		if !ok {
			return
		}
		if claims.Role != utils.RoleAdmin {
			utils.WriteError(w, http.StatusForbidden, "Forbidden: Admin access required")
			return
		}

		var admin models.Admin
		if err := a.db.WithContext(r.Context()).First(&admin, "id = ?", claims.Subject).Error; err != nil {
			utils.WriteError(w, http.StatusUnauthorized, "Unauthorized: Admin not found")
			return
		}
		if !admin.IsActive {
			utils.WriteError(w, http.StatusForbidden, "Forbidden")
			return
		}

		ctx := context.WithValue(r.Context(), utils.ClaimsKey, claims)
		ctx = context.WithValue(ctx, adminKey{}, &admin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminFromContext returns the admin loaded by Admin.
func AdminFromContext(ctx context.Context) (*models.Admin, bool) {
	admin, ok := ctx.Value(adminKey{}).(*models.Admin)
	return admin, ok
}

// CronKey protects scheduler endpoints with the shared X-CRON-KEY header.
func CronKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-CRON-KEY")
			if key == "" || got != key {
				utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
