package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/quayside/supplygate/internal/auth/service"
	"github.com/quayside/supplygate/pkg/httpx"
	"github.com/quayside/supplygate/pkg/slogx"
)

// SuppliersHandler is the admin management surface for supplier accounts
// and their PIN credentials. All routes sit behind RequireAdmin.
type SuppliersHandler struct {
	CredentialService *service.CredentialService
	UserService       *service.UserService
}

type createSupplierRequest struct {
	Name string `json:"name"`
	// PINCode is optional; when omitted a PIN is generated server side.
	PINCode string `json:"pin_code,omitempty"`
}

type createSupplierResponse struct {
	SupplierID string `json:"supplier_id"`
	Name       string `json:"name"`
	// PINCode is returned exactly once, at creation. It is not recoverable
	// afterwards.
	PINCode string `json:"pin_code"`
}

// HandleCreate serves POST /v1/suppliers.
func (h *SuppliersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req createSupplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if req.PINCode != "" && !validPIN(req.PINCode) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "pin_code must be 4 to 8 digits")
		return
	}

	res, err := h.CredentialService.ProvisionSupplier(ctx, name, req.PINCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPINInUse):
			httpx.WriteError(w, http.StatusConflict, "pin_in_use", "pin is already assigned to another supplier")
		default:
			log.Error("supplier provisioning failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, createSupplierResponse{
		SupplierID: res.Supplier.ID,
		Name:       res.Supplier.Name,
		PINCode:    res.RawPIN,
	})
}

type resetPINRequest struct {
	PINCode string `json:"pin_code,omitempty"`
}

type resetPINResponse struct {
	SupplierID string `json:"supplier_id"`
	PINCode    string `json:"pin_code"`
}

// HandleResetPIN serves PUT /v1/suppliers/{id}/pin.
func (h *SuppliersHandler) HandleResetPIN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	supplierID := r.PathValue("id")

	var req resetPINRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.PINCode != "" && !validPIN(req.PINCode) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "pin_code must be 4 to 8 digits")
		return
	}

	pin, err := h.CredentialService.ResetPIN(ctx, supplierID, req.PINCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "supplier not found")
		case errors.Is(err, service.ErrPINInUse):
			httpx.WriteError(w, http.StatusConflict, "pin_in_use", "pin is already assigned to another supplier")
		default:
			log.Error("pin reset failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resetPINResponse{SupplierID: supplierID, PINCode: pin})
}

// HandleLock serves POST /v1/suppliers/{id}/lock.
func (h *SuppliersHandler) HandleLock(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, true)
}

// HandleUnlock serves POST /v1/suppliers/{id}/unlock.
func (h *SuppliersHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, false)
}

type lockResponse struct {
	SupplierID string `json:"supplier_id"`
	Locked     bool   `json:"locked"`
}

func (h *SuppliersHandler) setLock(w http.ResponseWriter, r *http.Request, locked bool) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	supplierID := r.PathValue("id")

	err := h.CredentialService.SetLock(ctx, supplierID, locked)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			httpx.WriteError(w, http.StatusNotFound, "not_found", "supplier not found")
		default:
			log.Error("lock change failed", "err", err, "locked", locked)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, lockResponse{SupplierID: supplierID, Locked: locked})
}

// validPIN accepts 4 to 8 ASCII digits.
func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 8 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
