package queries

import (
	"context"
	"database/sql"
	"errors"
)

var ErrBrandExists = errors.New("brand already exists")

type BrandRepository struct {
	db *sql.DB
}

func NewBrandRepository(db *sql.DB) *BrandRepository {
	return &BrandRepository{db: db}
}

// List returns every known brand name in alphabetical order.
func (r *BrandRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM brands ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		brands = append(brands, name)
	}

	return brands, rows.Err()
}

func (r *BrandRepository) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM brands WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

func (r *BrandRepository) Create(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO brands (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBrandExists
	}
	return nil
}
