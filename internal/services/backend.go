package services

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"babyshop/internal/catalog"
	"babyshop/internal/domain"
)

// ProductReader is the read half of the products table.
type ProductReader interface {
	Select(ctx context.Context, q catalog.QuerySpec) ([]domain.Product, error)
	Get(ctx context.Context, id int64) (domain.Product, error)
}

type ProductStore interface {
	ProductReader
	Insert(ctx context.Context, p domain.Product) (domain.Product, error)
	Update(ctx context.Context, id int64, patch domain.ProductPatch) error
	Delete(ctx context.Context, id int64) error
}

// OrphanRecorder remembers uploaded objects whose row write failed.
type OrphanRecorder interface {
	Flag(ctx context.Context, key, url, reason, at string) error
}

type CategoryCounter interface {
	Counts(ctx context.Context) (map[string]int, error)
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// backendErr maps a store/bucket failure onto the error taxonomy. Not-found and
// filter errors pass through; deadlines become ErrTimeout; the rest is
// ErrBackendUnavailable with the cause kept in the message.
func backendErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidFilter),
		errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrBackendUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(domain.ErrTimeout, err.Error())
	default:
		return errors.Wrap(domain.ErrBackendUnavailable, err.Error())
	}
}
