package services_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"babyshop/internal/catalog"
	"babyshop/internal/domain"
	"babyshop/internal/repos"
	"babyshop/internal/storage"
)

// 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func cats() domain.CategorySet { return domain.NewCategorySet(domain.DefaultCategories()) }

func memdb(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// events records the order backend calls happen in.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	e.log = append(e.log, s)
	e.mu.Unlock()
}

func (e *events) String() string { return strings.Join(e.log, ",") }

type stubStore struct {
	ev     *events
	rows   map[int64]domain.Product
	nextID int64

	selectErrs []error // consumed one per Select call
	insertErr  error
	updateErr  error
	block      bool // wait for ctx on writes

	selects, gets, inserts, updates, deletes int
}

func newStubStore(ev *events) *stubStore {
	return &stubStore{ev: ev, rows: map[int64]domain.Product{}, nextID: 1}
}

func (s *stubStore) Select(ctx context.Context, q catalog.QuerySpec) ([]domain.Product, error) {
	s.selects++
	if len(s.selectErrs) > 0 {
		err := s.selectErrs[0]
		s.selectErrs = s.selectErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	var all []domain.Product
	for _, p := range s.rows {
		all = append(all, p)
	}
	return q.Apply(all), nil
}

func (s *stubStore) Get(ctx context.Context, id int64) (domain.Product, error) {
	s.gets++
	s.ev.add("get")
	p, ok := s.rows[id]
	if !ok {
		return domain.Product{}, errors.Wrapf(domain.ErrNotFound, "id %d", id)
	}
	return p, nil
}

func (s *stubStore) Insert(ctx context.Context, p domain.Product) (domain.Product, error) {
	s.inserts++
	s.ev.add("insert")
	if s.block {
		<-ctx.Done()
		return domain.Product{}, ctx.Err()
	}
	if s.insertErr != nil {
		return domain.Product{}, s.insertErr
	}
	p.ID = s.nextID
	s.nextID++
	s.rows[p.ID] = p
	return p, nil
}

func (s *stubStore) Update(ctx context.Context, id int64, patch domain.ProductPatch) error {
	s.updates++
	s.ev.add("update")
	if s.updateErr != nil {
		return s.updateErr
	}
	p, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	p.UpdatedAt = patch.UpdatedAt
	s.rows[id] = p
	return nil
}

func (s *stubStore) Delete(ctx context.Context, id int64) error {
	s.deletes++
	s.ev.add("delete")
	if _, ok := s.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

type stubBucket struct {
	ev      *events
	objects map[string]storage.UploadOptions
	fail    error
	noURL   bool
	uploads int
	removes int
}

func newStubBucket(ev *events) *stubBucket {
	return &stubBucket{ev: ev, objects: map[string]storage.UploadOptions{}}
}

func (b *stubBucket) Upload(ctx context.Context, key string, data []byte, opts storage.UploadOptions) error {
	b.uploads++
	b.ev.add("upload")
	if b.fail != nil {
		return b.fail
	}
	b.objects[key] = opts
	return nil
}

func (b *stubBucket) PublicURL(key string) string {
	if b.noURL {
		return ""
	}
	return fmt.Sprintf("https://cdn.example.test/products/%s", key)
}

func (b *stubBucket) Remove(ctx context.Context, key string) error {
	b.removes++
	delete(b.objects, key)
	return nil
}

type flagged struct{ key, url, reason string }

type stubOrphans struct {
	flags []flagged
	ctxOK bool
}

func (o *stubOrphans) Flag(ctx context.Context, key, url, reason, at string) error {
	o.ctxOK = ctx.Err() == nil
	o.flags = append(o.flags, flagged{key, url, reason})
	return nil
}
