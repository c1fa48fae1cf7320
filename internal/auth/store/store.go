package store

import (
	"context"
	"errors"
	"time"

	"github.com/quayside/supplygate/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict reports a concurrent-write conflict (busy database or a
	// lost optimistic update). Callers retry a bounded number of times.
	ErrConflict = errors.New("store: write conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. Sub-repositories keep concerns tidy and testable.
type Store interface {
	Suppliers() Suppliers
	Credentials() Credentials
	Users() Users

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, rolling back when fn errors
	// and committing otherwise. Prefer this over Tx directly.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store with Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Suppliers interface {
	// GetSupplierByID returns a supplier by id.
	GetSupplierByID(ctx context.Context, id string) (domain.Supplier, error)

	// CreateSupplier inserts a new supplier (id is provided by app via ULID).
	CreateSupplier(ctx context.Context, s domain.Supplier) error

	// DeleteSupplier cascades to the credential row (per schema).
	DeleteSupplier(ctx context.Context, id string) error
}

// Credentials persists PIN authentication state, one row per supplier.
type Credentials interface {
	// GetCredential returns the credential for a supplier.
	GetCredential(ctx context.Context, supplierID string) (domain.Credential, error)

	// CreateCredential inserts the credential row for a freshly provisioned
	// supplier. Returns ErrAlreadyExists if one is present.
	CreateCredential(ctx context.Context, c domain.Credential) error

	// UpdatePINHash replaces the stored hash and resets failure state.
	UpdatePINHash(ctx context.Context, supplierID, newHash string) error

	// ListCandidates pages through credentials in stable supplier_id order
	// for the resolver scan. afterID is exclusive; pass "" for the first
	// page. Returns up to limit rows.
	ListCandidates(ctx context.Context, afterID string, limit int) ([]domain.Credential, error)

	// RecordFailure atomically increments the failure counter and, when the
	// new count reaches threshold, sets locked_until. Returns the updated
	// credential so the caller can observe the transition.
	RecordFailure(ctx context.Context, supplierID string, threshold int, lockedUntil time.Time) (domain.Credential, error)

	// RecordSuccess resets the failure counter and clears a timed lock.
	// Manual locks are untouched; only SetManualLock clears those.
	RecordSuccess(ctx context.Context, supplierID string) error

	// SetManualLock sets or clears the administrative force-lock. Clearing
	// also resets the failure counter and any timed lock.
	SetManualLock(ctx context.Context, supplierID string, locked bool) error

	// ClearExpiredLocks resets failure state on credentials whose timed lock
	// has passed (housekeeping). Returns the number of rows touched.
	ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error)
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during password login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// RecordFailure mirrors Credentials.RecordFailure for user accounts.
	RecordFailure(ctx context.Context, userID string, threshold int, lockedUntil time.Time) (domain.User, error)

	// RecordSuccess resets the failure counter and clears a timed lock.
	RecordSuccess(ctx context.Context, userID string) error

	// ClearExpiredLocks resets failure state on users whose timed lock has
	// passed (housekeeping). Returns the number of rows touched.
	ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error)

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}
