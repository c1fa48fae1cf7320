package service

import "errors"

var (
	// ErrInvalidPIN reports that no credential verified the submitted PIN.
	// Deliberately carries no information about which accounts exist.
	ErrInvalidPIN = errors.New("invalid_pin")

	// ErrInvalidCredentials reports a failed username/password login.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrLocked reports that the credential matched but the account is
	// locked. Distinct from ErrInvalidPIN so callers and logs can tell the
	// two apart; whether the boundary reveals the distinction is decided
	// once, in the HTTP layer.
	ErrLocked = errors.New("account_locked")

	// ErrPINInUse reports a PIN uniqueness violation at set/reset time.
	ErrPINInUse = errors.New("pin_already_in_use")

	// ErrInvalidRefresh reports an unusable refresh token.
	ErrInvalidRefresh = errors.New("invalid_refresh_token")

	// ErrNotFound reports a missing supplier/user on an admin operation.
	ErrNotFound = errors.New("not_found")
)
