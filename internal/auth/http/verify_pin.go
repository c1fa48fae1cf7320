package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/quayside/supplygate/internal/auth/service"
	"github.com/quayside/supplygate/pkg/httpx"
	"github.com/quayside/supplygate/pkg/slogx"
)

// VerifyPINHandler serves POST /v1/verify-pin, the terminal-facing entry
// point. A request carries only the PIN; supplier_id is an optional hint
// that lets lockout accounting attribute the attempt.
type VerifyPINHandler struct {
	VerifyService *service.VerifyService
}

type verifyPINRequest struct {
	PINCode    string `json:"pin_code"`
	SupplierID string `json:"supplier_id,omitempty"`
}

type verifyPINResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	SupplierID   string `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
}

func (h *VerifyPINHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req verifyPINRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	pin := strings.TrimSpace(req.PINCode)
	if pin == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "pin_code is required")
		return
	}

	res, err := h.VerifyService.VerifyPIN(ctx, pin, strings.TrimSpace(req.SupplierID))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPIN):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_pin", "pin verification failed")
		case errors.Is(err, service.ErrLocked):
			httpx.WriteError(w, http.StatusForbidden, "account_locked", "account is temporarily locked")
		default:
			log.Error("pin verification failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, verifyPINResponse{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		TokenType:    res.Tokens.TokenType,
		ExpiresIn:    int(res.Tokens.ExpiresIn.Seconds()),
		SupplierID:   res.Supplier.ID,
		SupplierName: res.Supplier.Name,
	})
}
