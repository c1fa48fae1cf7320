package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/quayside/supplygate/internal/auth/domain"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `id, username, password_hash, admin, failure_count, locked_until, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	var lockedUntil sql.NullTime
	if err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Admin,
		&u.FailureCount, &lockedUntil, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return domain.User{}, mapErr(err)
	}
	u.LockedUntil = mapNullTimePtr(lockedUntil)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, admin, failure_count, locked_until, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Admin,
		u.FailureCount, mapOptionalTime(u.LockedUntil), now, now)
	return mapErr(err)
}

// RecordFailure mirrors the credentials variant: one atomic statement so
// concurrent failed logins serialize at the database, and an expired timed
// lock counts as cleared state so the lock can re-arm.
func (r *usersRepo) RecordFailure(
	ctx context.Context,
	userID string,
	threshold int,
	lockedUntil time.Time,
) (domain.User, error) {
	now := time.Now().UTC()
	row := r.q.QueryRowContext(ctx, `
		UPDATE users
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
		WHERE id = ?
		RETURNING `+userColumns,
		now, now, threshold, lockedUntil.UTC(), now, userID)
	return scanUser(row)
}

func (r *usersRepo) RecordSuccess(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET failure_count = 0, locked_until = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), userID)
	return mapErr(err)
}

func (r *usersRepo) ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET failure_count = 0, locked_until = NULL, updated_at = ?
		WHERE locked_until IS NOT NULL AND locked_until <= ?`,
		now.UTC(), now.UTC())
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, mapErr(err)
	}
	return count == 0, nil
}
