package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/quayside/supplygate/pkg/jwtx"
	"github.com/quayside/supplygate/pkg/slogx"
)

// TokenVerifier is the part of jwtx the middleware needs.
type TokenVerifier interface {
	Verify(raw string, want jwtx.Kind) (jwtx.Claims, error)
}

// AuthnMiddleware validates the bearer access token on inbound requests and
// attaches the resolved account identity to the request context. Requests
// with a missing, malformed, expired or wrong-kind token are rejected before
// any handler logic runs.
func AuthnMiddleware(v TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := v.Verify(raw, jwtx.KindAccess)
			if err != nil {
				switch {
				case errors.Is(err, jwtx.ErrExpired):
					writeBearerError(w, "token expired")
				case errors.Is(err, jwtx.ErrKindMismatch):
					writeBearerError(w, "not an access token")
				default:
					writeBearerError(w, "token verification failed")
				}
				log.Warn("bearer token rejected", "err", err)
				return
			}

			ctx = contextWithAuth(ctx, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func contextWithAuth(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyAccountID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
