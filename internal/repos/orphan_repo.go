package repos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// OrphanRepo tracks uploaded objects that ended up with no product row.
type OrphanRepo struct{ db *sqlx.DB }

func NewOrphanRepo(db *sqlx.DB) *OrphanRepo { return &OrphanRepo{db: db} }

type OrphanRow struct {
	Key       string `db:"object_key"`
	URL       string `db:"url"`
	Reason    string `db:"reason"`
	FlaggedAt string `db:"flagged_at"`
	SweptAt   string `db:"swept_at"`
}

// Flag is idempotent per key.
func (r *OrphanRepo) Flag(ctx context.Context, key, url, reason, at string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO orphan_images(object_key, url, reason, flagged_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(object_key) DO NOTHING
	`), key, url, reason, at)
	return errors.Wrap(err, "flag orphan")
}

func (r *OrphanRepo) Pending(ctx context.Context, limit int) ([]OrphanRow, error) {
	if limit <= 0 {
		limit = 100
	}
	out := []OrphanRow{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT object_key, url, COALESCE(reason,'') AS reason, flagged_at, COALESCE(swept_at,'') AS swept_at
		FROM orphan_images
		WHERE swept_at IS NULL
		ORDER BY flagged_at
		LIMIT ?
	`), limit)
	return out, errors.Wrap(err, "list orphans")
}

func (r *OrphanRepo) MarkSwept(ctx context.Context, key, at string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE orphan_images SET swept_at = ? WHERE object_key = ?`), at, key)
	return errors.Wrap(err, "mark orphan swept")
}
