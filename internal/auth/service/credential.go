package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quayside/supplygate/internal/auth/domain"
	"github.com/quayside/supplygate/internal/auth/store"
	"github.com/quayside/supplygate/pkg/cryptox"
	"github.com/quayside/supplygate/pkg/idx"
	"github.com/quayside/supplygate/pkg/slogx"
)

// DefaultPINLength is used when provisioning generates a PIN.
const DefaultPINLength = 4

// CredentialService manages supplier accounts and their PIN credentials.
type CredentialService struct {
	Store        store.Store
	ScanPageSize int
}

// ProvisionResult is returned when a supplier is created. RawPIN is only
// populated here, at creation time; the plaintext is never stored or
// recoverable afterwards.
type ProvisionResult struct {
	Supplier domain.Supplier
	RawPIN   string
}

// ProvisionSupplier creates a supplier and its PIN credential in one
// transaction. An empty rawPIN asks the service to generate one. PINs must
// be unique across all credentials: the resolver identifies accounts by
// PIN alone, so a duplicate would make resolution ambiguous.
func (s *CredentialService) ProvisionSupplier(ctx context.Context, name, rawPIN string) (*ProvisionResult, error) {
	l := slogx.FromContext(ctx)

	if rawPIN == "" {
		var err error
		// Generated PINs can collide with existing ones; retry a few
		// times before giving up.
		for range 5 {
			rawPIN, err = cryptox.GeneratePIN(DefaultPINLength)
			if err != nil {
				return nil, fmt.Errorf("generating pin: %w", err)
			}
			if err = s.ensurePINUnique(ctx, rawPIN, ""); err == nil {
				break
			}
			if !errors.Is(err, ErrPINInUse) {
				return nil, err
			}
		}
		if err != nil {
			return nil, err
		}
	} else if err := s.ensurePINUnique(ctx, rawPIN, ""); err != nil {
		return nil, err
	}

	hash, err := cryptox.Hash(rawPIN)
	if err != nil {
		return nil, fmt.Errorf("hashing pin: %w", err)
	}

	now := time.Now()
	supplier := domain.Supplier{
		ID:        idx.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Suppliers().CreateSupplier(ctx, supplier); err != nil {
			return err
		}
		return tx.Credentials().CreateCredential(ctx, domain.Credential{
			SupplierID: supplier.ID,
			PINHash:    hash,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("provisioning supplier: %w", err)
	}

	l.Info("supplier provisioned", "supplier_id", supplier.ID, "name", name)
	return &ProvisionResult{Supplier: supplier, RawPIN: rawPIN}, nil
}

// ResetPIN replaces a supplier's PIN. The new PIN must not collide with any
// other credential's. Resetting also clears the failure counter and any
// timed lock, since the old PIN's failure history no longer applies.
func (s *CredentialService) ResetPIN(ctx context.Context, supplierID, rawPIN string) (string, error) {
	l := slogx.FromContext(ctx)

	if _, err := s.Store.Credentials().GetCredential(ctx, supplierID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	if rawPIN == "" {
		var err error
		for range 5 {
			rawPIN, err = cryptox.GeneratePIN(DefaultPINLength)
			if err != nil {
				return "", fmt.Errorf("generating pin: %w", err)
			}
			if err = s.ensurePINUnique(ctx, rawPIN, supplierID); err == nil {
				break
			}
			if !errors.Is(err, ErrPINInUse) {
				return "", err
			}
		}
		if err != nil {
			return "", err
		}
	} else if err := s.ensurePINUnique(ctx, rawPIN, supplierID); err != nil {
		return "", err
	}

	hash, err := cryptox.Hash(rawPIN)
	if err != nil {
		return "", fmt.Errorf("hashing pin: %w", err)
	}

	err = withConflictRetry(ctx, func() error {
		return s.Store.Credentials().UpdatePINHash(ctx, supplierID, hash)
	})
	if err != nil {
		return "", fmt.Errorf("updating pin: %w", err)
	}

	l.Info("pin reset", "supplier_id", supplierID)
	return rawPIN, nil
}

// SetLock sets or clears the manual lock on a credential. Unlocking also
// resets the failure counter and any timed lock.
func (s *CredentialService) SetLock(ctx context.Context, supplierID string, locked bool) error {
	l := slogx.FromContext(ctx)

	err := withConflictRetry(ctx, func() error {
		return s.Store.Credentials().SetManualLock(ctx, supplierID, locked)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("setting lock state: %w", err)
	}

	l.Info("credential lock changed", "supplier_id", supplierID, "locked", locked)
	return nil
}

// ensurePINUnique scans all stored hashes and returns ErrPINInUse if the
// candidate PIN verifies against any credential other than exceptID. Done
// at set time so the verify-time scan can short-circuit on first match.
func (s *CredentialService) ensurePINUnique(ctx context.Context, rawPIN, exceptID string) error {
	pageSize := s.ScanPageSize
	if pageSize <= 0 {
		pageSize = DefaultScanPageSize
	}

	afterID := ""
	for {
		page, err := s.Store.Credentials().ListCandidates(ctx, afterID, pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, cred := range page {
			if cred.SupplierID == exceptID {
				continue
			}
			if err := cryptox.Verify(rawPIN, cred.PINHash); err == nil {
				return ErrPINInUse
			}
		}
		afterID = page[len(page)-1].SupplierID
	}
}
