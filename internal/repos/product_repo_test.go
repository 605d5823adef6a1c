package repos_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"babyshop/internal/catalog"
	"babyshop/internal/domain"
	"babyshop/internal/freshness"
	"babyshop/internal/repos"
)

func memdb(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func builder() *catalog.Builder {
	return catalog.NewBuilder(domain.NewCategorySet(domain.DefaultCategories()), 48*time.Hour)
}

func TestOpenDBSeedsOnce(t *testing.T) {
	db := memdb(t)
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM products`); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("want 3 seeded products, got %d", n)
	}
	counts, err := repos.NewCategoryRepo(db).Counts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts["ropa"] != 1 || counts["juguetes"] != 1 || counts["basicos"] != 1 {
		t.Fatalf("counts: %v", counts)
	}
}

func TestSelectFreshSortedDesc(t *testing.T) {
	db := memdb(t)
	r := repos.NewProductRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	ages := []time.Duration{49 * time.Hour, 0, 72 * time.Hour, time.Hour, 47 * time.Hour}
	ids := map[time.Duration]int64{}
	for _, age := range ages {
		p, err := r.Insert(ctx, domain.Product{
			Name: "p", Price: decimal.NewFromInt(1), Description: "d", Category: "ropa",
			CreatedAt: freshness.Format(now.Add(-age)),
		})
		if err != nil {
			t.Fatal(err)
		}
		ids[age] = p.ID
	}

	q, err := builder().Build(catalog.Filters{FreshOnly: true}, now)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Select(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{ids[0], ids[time.Hour], ids[47*time.Hour]}
	if len(got) != len(want) {
		t.Fatalf("want %d rows, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("position %d: want id %d, got %d", i, want[i], got[i].ID)
		}
	}
}

func TestSelectCategoryAndName(t *testing.T) {
	db := memdb(t)
	r := repos.NewProductRepo(db)
	ctx := context.Background()
	created := freshness.Format(time.Now())
	for _, p := range []domain.Product{
		{Name: "Oso de peluche grande", Category: "juguetes"},
		{Name: "OSO bordado", Category: "ropa"},
		{Name: "100% algodón_sabanas", Category: "basicos"},
	} {
		p.Price, p.Description, p.CreatedAt = decimal.NewFromInt(5), "d", created
		if _, err := r.Insert(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	q, _ := builder().Build(catalog.Filters{Category: "juguetes", NameContains: "oso"}, time.Now())
	got, err := r.Select(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	// seeded "Oso de peluche" is also in juguetes
	if len(got) != 2 {
		t.Fatalf("want 2 juguetes bears, got %d", len(got))
	}
	for _, p := range got {
		if p.Category != "juguetes" {
			t.Fatalf("leaked category %q", p.Category)
		}
	}

	q, _ = builder().Build(catalog.Filters{NameContains: "oso"}, time.Now())
	if got, _ = r.Select(ctx, q); len(got) != 3 {
		t.Fatalf("case-insensitive search: want 3, got %d", len(got))
	}

	q, _ = builder().Build(catalog.Filters{NameContains: "0%_"}, time.Now())
	if got, _ = r.Select(ctx, q); len(got) != 0 {
		t.Fatalf("wildcards must be literal, got %d rows", len(got))
	}
	q, _ = builder().Build(catalog.Filters{NameContains: "0% algodón_"}, time.Now())
	if got, _ = r.Select(ctx, q); len(got) != 1 {
		t.Fatalf("literal %%/_ search: want 1, got %d", len(got))
	}
}

func TestInsertGetUpdateDelete(t *testing.T) {
	db := memdb(t)
	r := repos.NewProductRepo(db)
	ctx := context.Background()
	created := freshness.Format(time.Now().Add(-time.Hour))

	p, err := r.Insert(ctx, domain.Product{
		Name: "Gorro", Price: decimal.RequireFromString("7.25"), Description: "Lana",
		Category: "ropa", CreatedAt: created,
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == 0 {
		t.Fatal("no id assigned")
	}

	got, err := r.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Gorro" || !got.Price.Equal(decimal.RequireFromString("7.25")) || got.ImageURL != "" || got.UpdatedAt != "" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	name := "Gorro de lana"
	url := "/media/products/product-images/1_x.png"
	if err := r.Update(ctx, p.ID, domain.ProductPatch{Name: &name, ImageURL: &url, UpdatedAt: freshness.Format(time.Now())}); err != nil {
		t.Fatal(err)
	}
	got, _ = r.Get(ctx, p.ID)
	if got.Name != name || got.CreatedAt != created || got.Description != "Lana" || got.ImageURL != url || got.UpdatedAt == "" {
		t.Fatalf("update result: %+v", got)
	}
	if ok, err := r.ReferencesImage(ctx, url); err != nil || !ok {
		t.Fatalf("image should be referenced: %v %v", ok, err)
	}

	if err := r.Delete(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get after delete: want ErrNotFound, got %v", err)
	}
	if err := r.Delete(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
	if err := r.Update(ctx, p.ID, domain.ProductPatch{Name: &name}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update missing: want ErrNotFound, got %v", err)
	}

	again, err := r.Insert(ctx, domain.Product{Name: "x", Price: decimal.Zero, Description: "d", Category: "ropa", CreatedAt: created})
	if err != nil {
		t.Fatal(err)
	}
	if again.ID <= p.ID {
		t.Fatalf("id %d reused or went backwards (deleted %d)", again.ID, p.ID)
	}
}

func TestNegativePriceRejectedByStore(t *testing.T) {
	r := repos.NewProductRepo(memdb(t))
	_, err := r.Insert(context.Background(), domain.Product{
		Name: "x", Price: decimal.NewFromInt(-1), Description: "d", Category: "ropa",
		CreatedAt: freshness.Format(time.Now()),
	})
	if err == nil {
		t.Fatal("check constraint should reject negative prices")
	}
}

func TestOrphanFlagAndSweep(t *testing.T) {
	r := repos.NewOrphanRepo(memdb(t))
	ctx := context.Background()
	at := freshness.Format(time.Now())
	if err := r.Flag(ctx, "product-images/1_a.png", "/media/products/product-images/1_a.png", "insert failed", at); err != nil {
		t.Fatal(err)
	}
	if err := r.Flag(ctx, "product-images/1_a.png", "/media/products/product-images/1_a.png", "again", at); err != nil {
		t.Fatalf("re-flag should be a no-op: %v", err)
	}
	pending, err := r.Pending(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Reason != "insert failed" {
		t.Fatalf("pending: %+v", pending)
	}
	if err := r.MarkSwept(ctx, pending[0].Key, at); err != nil {
		t.Fatal(err)
	}
	if pending, _ = r.Pending(ctx, 10); len(pending) != 0 {
		t.Fatalf("swept orphan still pending: %+v", pending)
	}
}

func TestSearchFoldsAccentedCapitals(t *testing.T) {
	db := memdb(t)
	r := repos.NewProductRepo(db)
	ctx := context.Background()
	if _, err := r.Insert(ctx, domain.Product{
		Name: "ÑANDÚ de peluche", Price: decimal.NewFromInt(12), Description: "d",
		Category: "juguetes", CreatedAt: freshness.Format(time.Now()),
	}); err != nil {
		t.Fatal(err)
	}

	for _, term := range []string{"ñandú", "Ñandú", "ÑANDÚ DE"} {
		q, err := builder().Build(catalog.Filters{NameContains: term}, time.Now())
		if err != nil {
			t.Fatal(err)
		}
		got, err := r.Select(ctx, q)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Name != "ÑANDÚ de peluche" {
			t.Fatalf("%q: want the plush, got %+v", term, got)
		}
		if !q.Matches(got[0]) {
			t.Fatalf("%q: in-memory match disagrees with sql", term)
		}
	}
}

func TestNormalizeTimestamps(t *testing.T) {
	db := memdb(t)
	ctx := context.Background()
	now := time.Now().UTC()
	recent := now.Add(-time.Hour).Format("2006-01-02 15:04:05")
	old := now.Add(-72 * time.Hour).Format("2006-01-02 15:04:05")
	for name, at := range map[string]string{"reciente": recent, "viejo": old} {
		if _, err := db.Exec(`INSERT INTO products(name,price,description,category,is_new,created_at) VALUES(?,?,?,?,0,?)`,
			name, "1.00", "d", "ropa", at); err != nil {
			t.Fatal(err)
		}
	}

	n, err := repos.NormalizeTimestamps(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("want 2 rows rewritten, got %d", n)
	}
	var stamp string
	if err := db.Get(&stamp, `SELECT created_at FROM products WHERE name = 'reciente'`); err != nil {
		t.Fatal(err)
	}
	if len(stamp) != len(freshness.Layout) {
		t.Fatalf("created_at not normalized: %q", stamp)
	}

	q, err := builder().Build(catalog.Filters{FreshOnly: true}, now)
	if err != nil {
		t.Fatal(err)
	}
	got, err := repos.NewProductRepo(db).Select(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "reciente" {
		t.Fatalf("fresh filter after normalize: %+v", got)
	}

	if n, _ = repos.NormalizeTimestamps(ctx, db); n != 0 {
		t.Fatalf("second pass rewrote %d rows", n)
	}
}

func TestInsertNormalizesCreatedAt(t *testing.T) {
	r := repos.NewProductRepo(memdb(t))
	p, err := r.Insert(context.Background(), domain.Product{
		Name: "x", Price: decimal.NewFromInt(1), Description: "d", Category: "ropa",
		CreatedAt: "2025-03-10 11:00:00",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.CreatedAt != "2025-03-10T11:00:00.000000Z" {
		t.Fatalf("created_at stored as %q", p.CreatedAt)
	}
}
