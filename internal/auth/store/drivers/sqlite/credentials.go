package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quayside/supplygate/internal/auth/domain"
	"github.com/quayside/supplygate/internal/auth/store"
)

type credentialsRepo struct {
	q dbtx
}

const credentialColumns = `supplier_id, pin_hash, failure_count, locked_until, manual_lock, created_at, updated_at`

func scanCredential(row interface{ Scan(...any) error }) (domain.Credential, error) {
	var c domain.Credential
	var lockedUntil sql.NullTime
	if err := row.Scan(
		&c.SupplierID, &c.PINHash, &c.FailureCount,
		&lockedUntil, &c.ManualLock, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return domain.Credential{}, mapErr(err)
	}
	c.LockedUntil = mapNullTimePtr(lockedUntil)
	return c, nil
}

func (r *credentialsRepo) GetCredential(ctx context.Context, supplierID string) (domain.Credential, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE supplier_id = ?`, supplierID)
	return scanCredential(row)
}

func (r *credentialsRepo) CreateCredential(ctx context.Context, c domain.Credential) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO credentials (supplier_id, pin_hash, failure_count, locked_until, manual_lock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.SupplierID, c.PINHash, c.FailureCount,
		mapOptionalTime(c.LockedUntil), c.ManualLock, now, now)
	return mapErr(err)
}

func (r *credentialsRepo) UpdatePINHash(ctx context.Context, supplierID, newHash string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE credentials
		SET pin_hash = ?, failure_count = 0, locked_until = NULL, updated_at = ?
		WHERE supplier_id = ?`,
		newHash, time.Now().UTC(), supplierID)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// ListCandidates pages credentials in supplier_id order. The resolver walks
// these pages verifying each hash; supplier_id order keeps the scan stable
// when multiple hashes would match.
func (r *credentialsRepo) ListCandidates(ctx context.Context, afterID string, limit int) ([]domain.Credential, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE supplier_id > ?
		ORDER BY supplier_id
		LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err())
}

// RecordFailure is a single-statement read-modify-write: the increment and
// the lock transition happen atomically, so parallel wrong-PIN attempts
// cannot race past the threshold. An expired timed lock counts as cleared
// state: the failure that finds one starts a fresh window (count 1, lock
// gone) the same way ClearExpiredLocks would have, and the lock re-arms
// once the fresh window reaches the threshold again.
func (r *credentialsRepo) RecordFailure(
	ctx context.Context,
	supplierID string,
	threshold int,
	lockedUntil time.Time,
) (domain.Credential, error) {
	now := time.Now().UTC()
	row := r.q.QueryRowContext(ctx, `
		UPDATE credentials
		SET failure_count = CASE
		        WHEN locked_until IS NOT NULL AND locked_until <= ? THEN 1
		        ELSE failure_count + 1
		    END,
		    locked_until = CASE
		        WHEN locked_until IS NOT NULL AND locked_until > ? THEN locked_until
		        WHEN (CASE WHEN locked_until IS NOT NULL THEN 1 ELSE failure_count + 1 END) >= ? THEN ?
		        ELSE NULL
		    END,
		    updated_at = ?
		WHERE supplier_id = ?
		RETURNING `+credentialColumns,
		now, now, threshold, lockedUntil.UTC(), now, supplierID)
	return scanCredential(row)
}

func (r *credentialsRepo) RecordSuccess(ctx context.Context, supplierID string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE credentials
		SET failure_count = 0, locked_until = NULL, updated_at = ?
		WHERE supplier_id = ?`,
		time.Now().UTC(), supplierID)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (r *credentialsRepo) SetManualLock(ctx context.Context, supplierID string, locked bool) error {
	var res sql.Result
	var err error
	if locked {
		res, err = r.q.ExecContext(ctx, `
			UPDATE credentials
			SET manual_lock = 1, updated_at = ?
			WHERE supplier_id = ?`,
			time.Now().UTC(), supplierID)
	} else {
		// Clearing a manual lock is the administrative unlock path: it also
		// resets the counter and any timed lock.
		res, err = r.q.ExecContext(ctx, `
			UPDATE credentials
			SET manual_lock = 0, failure_count = 0, locked_until = NULL, updated_at = ?
			WHERE supplier_id = ?`,
			time.Now().UTC(), supplierID)
	}
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (r *credentialsRepo) ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE credentials
		SET failure_count = 0, locked_until = NULL, updated_at = ?
		WHERE locked_until IS NOT NULL AND locked_until <= ?`,
		now.UTC(), now.UTC())
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}

// requireRow maps a zero-row UPDATE to ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
