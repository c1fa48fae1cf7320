package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/quayside/supplygate/internal/auth/service"
	"github.com/quayside/supplygate/pkg/httpx"
	"github.com/quayside/supplygate/pkg/slogx"
)

// LoginHandler serves POST /v1/user/login for staff accounts.
type LoginHandler struct {
	UserService *service.UserService
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	tokenResponse
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	res, err := h.UserService.Login(ctx, username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "username or password is incorrect")
		case errors.Is(err, service.ErrLocked):
			httpx.WriteError(w, http.StatusForbidden, "account_locked", "account is temporarily locked")
		default:
			log.Error("login failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		tokenResponse: tokenResponse{
			AccessToken:  res.Tokens.AccessToken,
			RefreshToken: res.Tokens.RefreshToken,
			TokenType:    res.Tokens.TokenType,
			ExpiresIn:    int(res.Tokens.ExpiresIn.Seconds()),
		},
		UserID:   res.User.ID,
		Username: res.User.Username,
		Admin:    res.User.Admin,
	})
}
