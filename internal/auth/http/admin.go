package http

import (
	"errors"
	"net/http"

	"github.com/quayside/supplygate/internal/auth/store"
	"github.com/quayside/supplygate/pkg/httpx"
	"github.com/quayside/supplygate/pkg/slogx"
)

// RequireAdmin loads the authenticated account and rejects non-admin users.
// Runs after AuthnMiddleware. Supplier tokens never pass: suppliers are not
// users, so the lookup misses.
func RequireAdmin(st store.Store) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			accountID := httpx.AccountIDFromCtx(ctx)
			if accountID == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
				return
			}

			u, err := st.Users().GetUserByID(ctx, accountID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					httpx.WriteError(w, http.StatusForbidden, "forbidden", "admin access required")
					return
				}
				slogx.FromContext(ctx).Error("admin check failed", "err", err)
				httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
				return
			}
			if !u.Admin {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
