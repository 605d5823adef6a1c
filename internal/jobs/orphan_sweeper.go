// Package jobs holds the background work that runs on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"babyshop/internal/freshness"
	applog "babyshop/internal/log"
	"babyshop/internal/repos"
	"babyshop/internal/storage"
)

type OrphanSource interface {
	Pending(ctx context.Context, limit int) ([]repos.OrphanRow, error)
	MarkSwept(ctx context.Context, key, at string) error
}

type ImageRefs interface {
	ReferencesImage(ctx context.Context, url string) (bool, error)
}

// OrphanSweeper removes bucket objects that were uploaded for a product write
// that never landed. Objects a row still points at are left alone.
type OrphanSweeper struct {
	Orphans  OrphanSource
	Products ImageRefs
	Bucket   storage.Bucket
	Batch    int
	Timeout  time.Duration
	Now      func() time.Time
}

func NewOrphanSweeper(orphans OrphanSource, products ImageRefs, bucket storage.Bucket) *OrphanSweeper {
	return &OrphanSweeper{Orphans: orphans, Products: products, Bucket: bucket, Batch: 100, Timeout: time.Minute, Now: time.Now}
}

// Sweep handles one batch and reports how many objects it removed.
func (s *OrphanSweeper) Sweep(ctx context.Context) (int, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	rows, err := s.Orphans.Pending(ctx, s.Batch)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, row := range rows {
		inUse := false
		if row.URL != "" {
			if inUse, err = s.Products.ReferencesImage(ctx, row.URL); err != nil {
				return removed, err
			}
		}
		if inUse {
			applog.Info(nil, "orphan.sweep.kept", map[string]any{"key": row.Key, "url": row.URL})
		} else {
			if err := s.Bucket.Remove(ctx, row.Key); err != nil {
				applog.Warn(nil, "orphan.sweep.remove_failed", err, map[string]any{"key": row.Key})
				continue
			}
			removed++
		}
		if err := s.Orphans.MarkSwept(ctx, row.Key, freshness.Format(s.Now())); err != nil {
			return removed, err
		}
	}
	if len(rows) > 0 {
		applog.Info(nil, "orphan.sweep", map[string]any{"pending": len(rows), "removed": removed})
	}
	return removed, nil
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule starts a cron running the sweep on spec. An empty spec schedules
// nothing and returns a nil cron. Callers stop it with Stop().
func Schedule(spec string, s *OrphanSweeper) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	sched := cron.New(cron.WithLocation(time.UTC), cron.WithParser(cronParser))
	_, err := sched.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				applog.Error(nil, "orphan.sweep.panic", fmt.Errorf("%v", r), nil)
			}
		}()
		if _, err := s.Sweep(context.Background()); err != nil {
			applog.Error(nil, "orphan.sweep.fail", err, nil)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("orphan sweep schedule %q: %w", spec, err)
	}
	sched.Start()
	return sched, nil
}
