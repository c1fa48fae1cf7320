package http

import (
	"net/http"

	"github.com/quayside/supplygate/pkg/httpx"
)

// WhoamiHandler serves GET /v1/whoami. It echoes back the identity from the
// verified access token, which is how terminals confirm a stored token is
// still usable.
type WhoamiHandler struct{}

type whoamiResponse struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	ExpiresAt int64  `json:"expires_at"`
}

func (h *WhoamiHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromCtx(r.Context())
	if !ok {
		// AuthnMiddleware guarantees claims; missing ones mean a wiring bug.
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	resp := whoamiResponse{
		AccountID: claims.Subject,
		Name:      claims.Name,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}
