package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"babyshop/internal/catalog"
	"babyshop/internal/domain"
	"babyshop/internal/freshness"
	applog "babyshop/internal/log"
)

// ProductView is a row plus the derived fields the pages need.
type ProductView struct {
	domain.Product
	Fresh        bool   `json:"fresh"`
	CategoryName string `json:"category_name"`
}

type CategoryCard struct {
	domain.Category
	Count int
}

type CatalogService struct {
	Prods   ProductReader
	Counts  CategoryCounter
	Builder *catalog.Builder
	Timeout time.Duration
	// Attempts bounds read retries; 1 disables retrying.
	Attempts  int
	RetryBase time.Duration
	Now       func() time.Time
}

func NewCatalogService(prods ProductReader, counts CategoryCounter, b *catalog.Builder, timeout time.Duration) *CatalogService {
	return &CatalogService{
		Prods:     prods,
		Counts:    counts,
		Builder:   b,
		Timeout:   timeout,
		Attempts:  3,
		RetryBase: 100 * time.Millisecond,
		Now:       time.Now,
	}
}

func (s *CatalogService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// read runs fn with a per-attempt deadline. Transient failures are retried with
// exponential backoff; not-found and bad filters are returned at once.
func (s *CatalogService) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	if s.RetryBase > 0 {
		exp.InitialInterval = s.RetryBase
	}
	exp.MaxElapsedTime = 0
	retries := 0
	if s.Attempts > 1 {
		retries = s.Attempts - 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		actx, cancel := bounded(ctx, s.Timeout)
		defer cancel()
		err := fn(actx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidFilter), ctx.Err() != nil:
			return backoff.Permanent(err)
		}
		applog.Warn(nil, "catalog.read.retry", err, map[string]any{"op": op, "attempt": attempt})
		return err
	}, policy)
	return backendErr(err)
}

func (s *CatalogService) view(rows []domain.Product) []ProductView {
	now := s.now()
	out := make([]ProductView, 0, len(rows))
	for _, p := range rows {
		out = append(out, s.viewOne(p, now))
	}
	return out
}

func (s *CatalogService) viewOne(p domain.Product, now time.Time) ProductView {
	v := ProductView{Product: p, Fresh: freshness.Classify(p, now, s.Builder.Window), CategoryName: p.Category}
	if c, ok := s.Builder.Categories.Get(p.Category); ok {
		v.CategoryName = c.Name
	}
	return v
}

// List runs an arbitrary filter set.
func (s *CatalogService) List(ctx context.Context, f catalog.Filters) ([]ProductView, error) {
	q, err := s.Builder.Build(f, s.now())
	if err != nil {
		return nil, err
	}
	var rows []domain.Product
	err = s.read(ctx, "list", func(ctx context.Context) error {
		var err error
		rows, err = s.Prods.Select(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.view(rows), nil
}

func (s *CatalogService) NewArrivals(ctx context.Context) ([]ProductView, error) {
	return s.List(ctx, catalog.Filters{FreshOnly: true, Limit: catalog.NewArrivalsLimit})
}

// ByCategory lists one category. An unknown slug yields ErrInvalidFilter.
func (s *CatalogService) ByCategory(ctx context.Context, slug string) (domain.Category, []ProductView, error) {
	items, err := s.List(ctx, catalog.Filters{Category: slug})
	if err != nil {
		return domain.Category{}, nil, err
	}
	c, _ := s.Builder.Categories.Get(slug)
	return c, items, nil
}

func (s *CatalogService) Search(ctx context.Context, q string) ([]ProductView, error) {
	return s.List(ctx, catalog.Filters{NameContains: q})
}

// AdminList is the admin table: everything, newest first, optionally narrowed by name.
func (s *CatalogService) AdminList(ctx context.Context, q string) ([]ProductView, error) {
	return s.List(ctx, catalog.Filters{NameContains: q})
}

func (s *CatalogService) Get(ctx context.Context, id int64) (ProductView, error) {
	if id <= 0 {
		return ProductView{}, errors.Wrapf(domain.ErrNotFound, "id %d", id)
	}
	var p domain.Product
	err := s.read(ctx, "get", func(ctx context.Context) error {
		var err error
		p, err = s.Prods.Get(ctx, id)
		return err
	})
	if err != nil {
		return ProductView{}, err
	}
	return s.viewOne(p, s.now()), nil
}

func (s *CatalogService) Categories() []domain.Category {
	return s.Builder.Categories.List()
}

// CategoryCards pairs each configured category with its product count. Counts are
// decorative, so a failing counter degrades to zeros.
func (s *CatalogService) CategoryCards(ctx context.Context) []CategoryCard {
	var counts map[string]int
	if s.Counts != nil {
		cctx, cancel := bounded(ctx, s.Timeout)
		c, err := s.Counts.Counts(cctx)
		cancel()
		if err != nil {
			applog.Warn(nil, "catalog.counts.failed", err, nil)
		}
		counts = c
	}
	cats := s.Categories()
	out := make([]CategoryCard, 0, len(cats))
	for _, c := range cats {
		out = append(out, CategoryCard{Category: c, Count: counts[c.Slug]})
	}
	return out
}
