package repos

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// CategoryRepo reads per-category aggregates. The category list itself is configuration.
type CategoryRepo struct{ db *sqlx.DB }

func NewCategoryRepo(db *sqlx.DB) *CategoryRepo { return &CategoryRepo{db: db} }

func (r *CategoryRepo) Counts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Category string `db:"category"`
		N        int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, `
	  SELECT category, COUNT(*) AS n
	  FROM products
	  GROUP BY category
	`); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Category] = row.N
	}
	return out, nil
}
