// Package freshness decides whether a product still counts as "new".
//
// The derived window is the only source of truth for the "Nuevo" badge. The stored
// is_new column is consulted only for rows that have no creation timestamp at all.
package freshness

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"

	"babyshop/internal/domain"
)

const DefaultWindow = 48 * time.Hour

// Layout is the fixed-width UTC text form used for created_at/updated_at columns.
// Equal width keeps string order identical to time order.
const Layout = "2006-01-02T15:04:05.000000Z"

func Format(t time.Time) string { return t.UTC().Format(Layout) }

// Parse reads a stored timestamp. Besides Layout it accepts whatever older rows or
// other writers left behind (RFC3339 offsets, "YYYY-MM-DD HH:MM:SS" from CURRENT_TIMESTAMP).
func Parse(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.Wrap(domain.ErrInvalidTimestamp, "empty")
	}
	if t, err := time.Parse(Layout, raw); err == nil {
		return t, nil
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(domain.ErrInvalidTimestamp, "%q", raw)
	}
	return t.UTC(), nil
}

// IsFresh reports whether createdAt >= now-window. The bound is inclusive and
// timestamps ahead of now (clock skew) count as fresh.
func IsFresh(createdAt, now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = DefaultWindow
	}
	return !createdAt.Before(now.Add(-window))
}

func IsFreshRaw(raw string, now time.Time, window time.Duration) (bool, error) {
	t, err := Parse(raw)
	if err != nil {
		return false, err
	}
	return IsFresh(t, now, window), nil
}

// Cutoff is the oldest created_at still inside the window.
func Cutoff(now time.Time, window time.Duration) time.Time {
	if window <= 0 {
		window = DefaultWindow
	}
	return now.Add(-window)
}

// Classify decides the badge for a stored row.
func Classify(p domain.Product, now time.Time, window time.Duration) bool {
	if strings.TrimSpace(p.CreatedAt) == "" {
		return p.IsNew
	}
	fresh, err := IsFreshRaw(p.CreatedAt, now, window)
	if err != nil {
		return false
	}
	return fresh
}
