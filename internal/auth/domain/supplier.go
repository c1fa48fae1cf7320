package domain

import "time"

// Supplier is the account entity PIN credentials attach to. The wider
// invoicing system owns the rest of the supplier profile; this service only
// needs identity and a display name.
type Supplier struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credential is one supplier's PIN authentication state. Exactly one row
// exists per supplier; it is deleted only when the supplier is.
type Credential struct {
	SupplierID   string
	PINHash      string // argon2id PHC string, never the raw PIN
	FailureCount int    // consecutive failures since last success or unlock
	LockedUntil  *time.Time
	ManualLock   bool // administrative force-lock, cleared only by explicit unlock
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Locked reports whether the credential is locked at the given instant.
// A locked_until in the past means the lock has self-expired.
func (c Credential) Locked(now time.Time) bool {
	if c.ManualLock {
		return true
	}
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}
