package sqlite

import (
	"context"
	"time"

	"github.com/quayside/supplygate/internal/auth/domain"
)

type suppliersRepo struct {
	q dbtx
}

func (r *suppliersRepo) GetSupplierByID(ctx context.Context, id string) (domain.Supplier, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM suppliers
		WHERE id = ?`, id)

	var s domain.Supplier
	if err := row.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.Supplier{}, mapErr(err)
	}
	return s, nil
}

func (r *suppliersRepo) CreateSupplier(ctx context.Context, s domain.Supplier) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		s.ID, s.Name, now, now)
	return mapErr(err)
}

func (r *suppliersRepo) DeleteSupplier(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM suppliers WHERE id = ?`, id)
	return mapErr(err)
}
