package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quayside/supplygate/internal/auth/domain"
	"github.com/quayside/supplygate/internal/auth/store"
	"github.com/quayside/supplygate/pkg/cryptox"
	"github.com/quayside/supplygate/pkg/slogx"
)

// DefaultScanPageSize bounds each page of the resolver scan.
const DefaultScanPageSize = 100

// VerifyService resolves a raw PIN to a supplier account and applies the
// lockout policy. A PIN carries no account identifier, so resolution is an
// exhaustive verify over stored hashes; the salted hashes rule out any
// direct index. Acceptable while the supplier count stays small. A keyed
// HMAC side-index would give O(1) candidate lookup later without changing
// callers, since the scan sits behind Credentials.ListCandidates.
type VerifyService struct {
	Store  store.Store
	Tokens *TokenService

	// Threshold is the consecutive-failure count that locks a credential;
	// the Threshold-th failure is the one that locks.
	Threshold int

	// LockDuration is how long a tripped lock lasts. Locks self-expire; no
	// operator intervention is needed.
	LockDuration time.Duration

	// ScanPageSize bounds each page of the resolver scan.
	ScanPageSize int
}

// VerifiedSupplier is a successful verification outcome.
type VerifiedSupplier struct {
	Supplier domain.Supplier
	Tokens   *domain.TokenPair
}

// VerifyPIN checks a submitted PIN. With a supplier hint the attempt is
// attributed: failures count against that credential and trip the lockout.
// Without a hint the resolver scans all credentials; a no-match attempt is
// unattributable and touches no counter (the IP rate limit guards that
// path). A locked credential fails even with the correct PIN.
func (s *VerifyService) VerifyPIN(ctx context.Context, rawPIN, supplierHint string) (*VerifiedSupplier, error) {
	if supplierHint != "" {
		return s.verifyAttributed(ctx, rawPIN, supplierHint)
	}
	return s.verifyByScan(ctx, rawPIN)
}

func (s *VerifyService) verifyAttributed(ctx context.Context, rawPIN, supplierID string) (*VerifiedSupplier, error) {
	l := slogx.FromContext(ctx)

	cred, err := s.Store.Credentials().GetCredential(ctx, supplierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Indistinguishable from a wrong PIN: don't leak which
			// supplier ids exist.
			return nil, ErrInvalidPIN
		}
		return nil, err
	}

	if err := cryptox.Verify(rawPIN, cred.PINHash); err != nil {
		if !errors.Is(err, cryptox.ErrMismatch) {
			// Corrupt stored hash: fail closed, but flag it loudly.
			l.Error("credential hash unverifiable", "supplier_id", supplierID, "err", err)
		}
		if recErr := s.recordFailure(ctx, supplierID); recErr != nil {
			return nil, recErr
		}
		return nil, ErrInvalidPIN
	}

	return s.completeMatch(ctx, cred)
}

func (s *VerifyService) verifyByScan(ctx context.Context, rawPIN string) (*VerifiedSupplier, error) {
	l := slogx.FromContext(ctx)

	pageSize := s.ScanPageSize
	if pageSize <= 0 {
		pageSize = DefaultScanPageSize
	}

	// Bounded page walk in stable supplier_id order, short-circuiting on
	// the first verified match. Reads only; nothing is written until a
	// match is confirmed, so an abandoned scan has no side effects.
	afterID := ""
	for {
		page, err := s.Store.Credentials().ListCandidates(ctx, afterID, pageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		for _, cred := range page {
			err := cryptox.Verify(rawPIN, cred.PINHash)
			if err == nil {
				return s.completeMatch(ctx, cred)
			}
			if !errors.Is(err, cryptox.ErrMismatch) {
				l.Error("credential hash unverifiable", "supplier_id", cred.SupplierID, "err", err)
			}
		}
		afterID = page[len(page)-1].SupplierID
	}

	return nil, ErrInvalidPIN
}

// completeMatch applies the lock check and, on success, resets the failure
// counter and issues tokens. Lock takes precedence over correctness: a
// locked credential with the right PIN still fails.
func (s *VerifyService) completeMatch(ctx context.Context, cred domain.Credential) (*VerifiedSupplier, error) {
	l := slogx.FromContext(ctx)
	now := time.Now()

	if cred.Locked(now) {
		l.Info("verification rejected: account locked", "supplier_id", cred.SupplierID)
		return nil, ErrLocked
	}

	if err := withConflictRetry(ctx, func() error {
		return s.Store.Credentials().RecordSuccess(ctx, cred.SupplierID)
	}); err != nil {
		return nil, fmt.Errorf("recording verification success: %w", err)
	}

	supplier, err := s.Store.Suppliers().GetSupplierByID(ctx, cred.SupplierID)
	if err != nil {
		return nil, fmt.Errorf("loading supplier %s: %w", cred.SupplierID, err)
	}

	tokens, err := s.Tokens.IssuePair(supplier.ID, supplier.Name)
	if err != nil {
		return nil, fmt.Errorf("issuing tokens: %w", err)
	}

	l.Info("pin verified", "supplier_id", supplier.ID)
	return &VerifiedSupplier{Supplier: supplier, Tokens: tokens}, nil
}

// recordFailure bumps the failure counter atomically; the Threshold-th
// consecutive failure sets the timed lock in the same statement. Conflict
// errors are retried a bounded number of times and then surfaced so the
// attempt is not swallowed into a miscount.
func (s *VerifyService) recordFailure(ctx context.Context, supplierID string) error {
	l := slogx.FromContext(ctx)

	var updated domain.Credential
	err := withConflictRetry(ctx, func() error {
		var err error
		updated, err = s.Store.Credentials().RecordFailure(
			ctx, supplierID, s.Threshold, time.Now().Add(s.LockDuration))
		return err
	})
	if err != nil {
		return fmt.Errorf("recording verification failure: %w", err)
	}

	// Warn on the locking transition only, not on every failure while a
	// lock is already active.
	if updated.LockedUntil != nil && updated.FailureCount == s.Threshold {
		l.Warn("credential locked after repeated failures",
			"supplier_id", supplierID,
			"failure_count", updated.FailureCount,
			"locked_until", updated.LockedUntil,
		)
	}
	return nil
}
