package repos

import (
	"context"
	"database/sql/driver"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"modernc.org/sqlite"

	"babyshop/internal/catalog"
	"babyshop/internal/freshness"
)

var (
	registerFold sync.Once
	foldErr      error
)

// fold(text) gives sqlite the same Unicode case folding the in-memory matcher
// uses. It applies to every sqlite connection opened afterwards.
func registerFoldFunc() error {
	registerFold.Do(func() {
		foldErr = sqlite.RegisterDeterministicScalarFunction("fold", 1,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case string:
					return catalog.FoldString(v), nil
				case []byte:
					return catalog.FoldString(string(v)), nil
				default:
					return v, nil
				}
			})
	})
	return errors.Wrap(foldErr, "register fold")
}

// OpenDB opens sqlite for file paths / ":memory:" and postgres (pgx) for
// postgres:// URLs, ensures the schema and seeds an empty catalog.
func OpenDB(dsn string) (*sqlx.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
	}
	if driver == "sqlite" {
		if err := registerFoldFunc(); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// one connection: ":memory:" is per-connection and sqlite serializes writers anyway
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	if _, err := NormalizeTimestamps(context.Background(), db); err != nil {
		return nil, err
	}
	if err := seedIfEmpty(db); err != nil {
		return nil, err
	}
	return db, nil
}

func dialect(db *sqlx.DB) catalog.Dialect {
	if db.DriverName() == "pgx" {
		return catalog.Postgres
	}
	return catalog.SQLite
}

// normalizeStamp rewrites a parseable timestamp into freshness.Layout. Empty or
// unparseable values come back unchanged.
func normalizeStamp(raw string) string {
	if raw == "" {
		return raw
	}
	t, err := freshness.Parse(raw)
	if err != nil {
		return raw
	}
	return freshness.Format(t)
}

// NormalizeTimestamps rewrites created_at/updated_at values stored in any other
// format (e.g. CURRENT_TIMESTAMP's "YYYY-MM-DD HH:MM:SS") into freshness.Layout,
// so text comparison in SQL keeps matching time order. It returns the rows changed.
func NormalizeTimestamps(ctx context.Context, db *sqlx.DB) (int, error) {
	var rows []struct {
		ID        int64  `db:"id"`
		CreatedAt string `db:"created_at"`
		UpdatedAt string `db:"updated_at"`
	}
	n := len(freshness.Layout)
	if err := db.SelectContext(ctx, &rows, db.Rebind(`
	  SELECT id, created_at, COALESCE(updated_at,'') AS updated_at
	  FROM products
	  WHERE length(created_at) <> ? OR (updated_at IS NOT NULL AND length(updated_at) <> ?)
	`), n, n); err != nil {
		return 0, errors.Wrap(err, "scan timestamps")
	}
	changed := 0
	upd := db.Rebind(`UPDATE products SET created_at = ?, updated_at = NULLIF(?, '') WHERE id = ?`)
	for _, row := range rows {
		created, updated := normalizeStamp(row.CreatedAt), normalizeStamp(row.UpdatedAt)
		if created == row.CreatedAt && updated == row.UpdatedAt {
			log.Printf("[warn] product %d keeps unparseable timestamp %q", row.ID, row.CreatedAt)
			continue
		}
		if _, err := db.ExecContext(ctx, upd, created, updated, row.ID); err != nil {
			return changed, errors.Wrap(err, "normalize timestamps")
		}
		changed++
	}
	return changed, nil
}

var sqliteSchema = []string{
	`PRAGMA foreign_keys = ON`,
	// AUTOINCREMENT keeps ids from being reused after a delete
	`CREATE TABLE IF NOT EXISTS products(
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL CHECK (length(trim(name)) > 0),
  price NUMERIC NOT NULL CHECK (price >= 0),
  description TEXT NOT NULL,
  category TEXT NOT NULL,
  image_url TEXT,
  is_new INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category   ON products(category)`,
	`CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at)`,
	`CREATE TABLE IF NOT EXISTS orphan_images(
  object_key TEXT PRIMARY KEY,
  url TEXT NOT NULL,
  reason TEXT,
  flagged_at TEXT NOT NULL,
  swept_at TEXT
)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS products(
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL CHECK (length(trim(name)) > 0),
  price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
  description TEXT NOT NULL,
  category TEXT NOT NULL,
  image_url TEXT,
  is_new BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TEXT NOT NULL,
  updated_at TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category   ON products(category)`,
	`CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_products_name       ON products(LOWER(name))`,
	`CREATE TABLE IF NOT EXISTS orphan_images(
  object_key TEXT PRIMARY KEY,
  url TEXT NOT NULL,
  reason TEXT,
  flagged_at TEXT NOT NULL,
  swept_at TEXT
)`,
}

func ensureSchema(db *sqlx.DB) error {
	stmts := sqliteSchema
	if db.DriverName() == "pgx" {
		stmts = postgresSchema
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return errors.Wrap(err, "ensure schema")
		}
	}
	return nil
}

// seedIfEmpty inserts a small demo catalog. The rows are dated well in the past,
// so they never show up as new arrivals.
func seedIfEmpty(db *sqlx.DB) error {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM products`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	log.Println("[seed] inserting demo products")

	created := freshness.Format(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()
	ins := tx.Rebind(`INSERT INTO products(name,price,description,category,image_url,is_new,created_at) VALUES(?,?,?,?,NULL,?,?)`)
	tx.MustExec(ins, "Body de algodón orgánico", "14.90", "Body manga larga, suave con la piel del bebé", "ropa", false, created)
	tx.MustExec(ins, "Oso de peluche", "19.99", "Peluche hipoalergénico de 30 cm", "juguetes", false, created)
	tx.MustExec(ins, "Toallitas húmedas x80", "3.50", "Toallitas sin fragancia para piel sensible", "basicos", false, created)
	return tx.Commit()
}
