package repos

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"babyshop/internal/catalog"
	"babyshop/internal/domain"
)

type ProductRepo struct {
	db      *sqlx.DB
	dialect catalog.Dialect
	ph      sq.PlaceholderFormat
}

func NewProductRepo(db *sqlx.DB) *ProductRepo {
	d := dialect(db)
	return &ProductRepo{db: db, dialect: d, ph: d.Placeholder}
}

var productColumns = []string{
	"id", "name", "price", "description", "category",
	"COALESCE(image_url,'') AS image_url", "is_new",
	"created_at", "COALESCE(updated_at,'') AS updated_at",
}

func (r *ProductRepo) Select(ctx context.Context, q catalog.QuerySpec) ([]domain.Product, error) {
	query, args, err := q.ToSQL(r.dialect, productColumns...)
	if err != nil {
		return nil, errors.Wrap(err, "build select")
	}
	out := []domain.Product{}
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, errors.Wrap(err, "select products")
	}
	return out, nil
}

func (r *ProductRepo) Get(ctx context.Context, id int64) (domain.Product, error) {
	query, args, err := sq.Select(productColumns...).From(catalog.Table).
		Where(sq.Eq{"id": id}).PlaceholderFormat(r.ph).ToSql()
	if err != nil {
		return domain.Product{}, err
	}
	var p domain.Product
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, errors.Wrapf(domain.ErrNotFound, "id %d", id)
		}
		return domain.Product{}, errors.Wrap(err, "get product")
	}
	return p, nil
}

// Insert writes the row as given (created_at included) and fills in the new id.
// Timestamps are stored in freshness.Layout.
func (r *ProductRepo) Insert(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.CreatedAt = normalizeStamp(p.CreatedAt)
	query, args, err := sq.Insert(catalog.Table).
		Columns("name", "price", "description", "category", "image_url", "is_new", "created_at").
		Values(p.Name, p.Price, p.Description, p.Category, nullable(p.ImageURL), p.IsNew, p.CreatedAt).
		Suffix("RETURNING id").
		PlaceholderFormat(r.ph).ToSql()
	if err != nil {
		return domain.Product{}, err
	}
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&p.ID); err != nil {
		return domain.Product{}, errors.Wrap(err, "insert product")
	}
	return p, nil
}

func (r *ProductRepo) Update(ctx context.Context, id int64, patch domain.ProductPatch) error {
	b := sq.Update(catalog.Table).PlaceholderFormat(r.ph).
		Set("updated_at", normalizeStamp(patch.UpdatedAt)).
		Where(sq.Eq{"id": id})
	if patch.Name != nil {
		b = b.Set("name", *patch.Name)
	}
	if patch.Price != nil {
		b = b.Set("price", *patch.Price)
	}
	if patch.Description != nil {
		b = b.Set("description", *patch.Description)
	}
	if patch.Category != nil {
		b = b.Set("category", *patch.Category)
	}
	if patch.ImageURL != nil {
		b = b.Set("image_url", nullable(*patch.ImageURL))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "update product")
	}
	return affected(res, id)
}

func (r *ProductRepo) Delete(ctx context.Context, id int64) error {
	query, args, err := sq.Delete(catalog.Table).Where(sq.Eq{"id": id}).PlaceholderFormat(r.ph).ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "delete product")
	}
	return affected(res, id)
}

// ReferencesImage reports whether any row still points at url.
func (r *ProductRepo) ReferencesImage(ctx context.Context, url string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM products WHERE image_url = ?`), url)
	return n > 0, err
}

func affected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrNotFound, "id %d", id)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
