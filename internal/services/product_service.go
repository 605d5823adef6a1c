package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"babyshop/internal/domain"
	"babyshop/internal/freshness"
	applog "babyshop/internal/log"
	"babyshop/internal/storage"
)

const (
	maxNameLen        = 120
	maxDescLen        = 2000
	imageMaxAge       = 3600
	orphanFlagTimeout = 5 * time.Second
)

type Stage int

const (
	StageIdle Stage = iota
	StageValidating
	StageImageUploading
	StageWriting
	StageDone
	StageFailed
)

var stageNames = [...]string{"idle", "validating", "image_uploading", "writing", "done", "failed"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// MutationError records the stage a create/update/delete failed in. Err is one of
// the domain taxonomy errors (possibly wrapped).
type MutationError struct {
	Op    string
	Stage Stage
	Err   error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s product (%s): %v", e.Op, e.Stage, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

type ProductService struct {
	Store         ProductStore
	Bucket        storage.Bucket
	Orphans       OrphanRecorder
	Categories    domain.CategorySet
	MaxImageBytes int64
	Timeout       time.Duration
	Now           func() time.Time
}

func NewProductService(store ProductStore, bucket storage.Bucket, orphans OrphanRecorder, cats domain.CategorySet, maxImageBytes int64, timeout time.Duration) *ProductService {
	return &ProductService{
		Store:         store,
		Bucket:        bucket,
		Orphans:       orphans,
		Categories:    cats,
		MaxImageBytes: maxImageBytes,
		Timeout:       timeout,
		Now:           time.Now,
	}
}

func (s *ProductService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// mutation walks one operation through its stages.
type mutation struct {
	op    string
	id    int64
	stage Stage
}

func (s *ProductService) begin(op string, id int64) *mutation {
	return &mutation{op: op, id: id, stage: StageIdle}
}

func (m *mutation) enter(st Stage) {
	applog.Debug(nil, "product.mutation.stage", map[string]any{
		"op": m.op, "id": m.id, "from": m.stage.String(), "to": st.String(),
	})
	m.stage = st
}

func (m *mutation) fail(err error) error {
	at := m.stage
	m.enter(StageFailed)
	return &MutationError{Op: m.op, Stage: at, Err: err}
}

type validated struct {
	name        string
	price       decimal.Decimal
	description string
	category    string
	image       *preparedImage
}

type preparedImage struct {
	data        []byte
	contentType string
	ext         string
}

// validate checks every field without touching a backend.
func (s *ProductService) validate(in ProductInput, img *ImageUpload) (validated, error) {
	var v validated

	v.name = strings.TrimSpace(in.Name)
	switch {
	case v.name == "":
		return v, domain.Invalid("name", "is required")
	case utf8.RuneCountInString(v.name) > maxNameLen:
		return v, domain.Invalid("name", fmt.Sprintf("must be at most %d characters", maxNameLen))
	}

	raw := strings.TrimSpace(in.Price)
	if raw == "" {
		return v, domain.Invalid("price", "is required")
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return v, domain.Invalid("price", "must be a number")
	}
	if price.IsNegative() {
		return v, domain.Invalid("price", "must be zero or more")
	}
	v.price = price.Round(2)

	v.description = strings.TrimSpace(in.Description)
	switch {
	case v.description == "":
		return v, domain.Invalid("description", "is required")
	case utf8.RuneCountInString(v.description) > maxDescLen:
		return v, domain.Invalid("description", fmt.Sprintf("must be at most %d characters", maxDescLen))
	}

	v.category = strings.ToLower(strings.TrimSpace(in.Category))
	if v.category == "" {
		return v, domain.Invalid("category", "is required")
	}
	if !s.Categories.Has(v.category) {
		return v, domain.Invalid("category", "is not a known category")
	}

	if img.present() {
		if s.MaxImageBytes > 0 && int64(len(img.Data)) > s.MaxImageBytes {
			return v, domain.Invalid("image", fmt.Sprintf("must be at most %d bytes", s.MaxImageBytes))
		}
		ct, ext, err := storage.DetectImage(img.Data, img.Filename)
		if err != nil {
			return v, domain.Invalid("image", "must be an image file")
		}
		v.image = &preparedImage{data: img.Data, contentType: ct, ext: ext}
	}
	return v, nil
}

// upload stores the image under a fresh key and returns the key and its public URL.
func (s *ProductService) upload(ctx context.Context, img *preparedImage, now time.Time) (string, string, error) {
	key := storage.UniqueKey(now, img.ext)
	uctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()
	err := s.Bucket.Upload(uctx, key, img.data, storage.UploadOptions{
		ContentType:  img.contentType,
		CacheSeconds: imageMaxAge,
		Overwrite:    true,
	})
	if err != nil {
		return "", "", errors.Wrap(domain.ErrUpload, err.Error())
	}
	url := s.Bucket.PublicURL(key)
	if url == "" {
		s.flagOrphan(key, "", "no public url")
		return "", "", errors.Wrap(domain.ErrUpload, "no public url for "+key)
	}
	return key, url, nil
}

// flagOrphan is best effort and runs on a context detached from the request,
// which may already be cancelled.
func (s *ProductService) flagOrphan(key, url, reason string) {
	applog.Warn(nil, "product.image.orphaned", domain.ErrOrphanedImage, map[string]any{
		"key": key, "url": url, "reason": reason,
	})
	if s.Orphans == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), orphanFlagTimeout)
	defer cancel()
	if err := s.Orphans.Flag(ctx, key, url, reason, freshness.Format(s.now())); err != nil {
		applog.Error(nil, "product.image.orphan_flag_failed", err, map[string]any{"key": key})
	}
}

func (s *ProductService) Create(ctx context.Context, in ProductInput, img *ImageUpload) (domain.Product, error) {
	m := s.begin("create", 0)
	m.enter(StageValidating)
	v, err := s.validate(in, img)
	if err != nil {
		return domain.Product{}, m.fail(err)
	}

	now := s.now()
	p := domain.Product{
		Name:        v.name,
		Price:       v.price,
		Description: v.description,
		Category:    v.category,
		CreatedAt:   freshness.Format(now),
	}

	var key string
	if v.image != nil {
		m.enter(StageImageUploading)
		if key, p.ImageURL, err = s.upload(ctx, v.image, now); err != nil {
			return domain.Product{}, m.fail(err)
		}
	}

	m.enter(StageWriting)
	wctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()
	created, err := s.Store.Insert(wctx, p)
	if err != nil {
		err = backendErr(err)
		if key != "" {
			s.flagOrphan(key, p.ImageURL, "insert failed: "+err.Error())
		}
		return domain.Product{}, m.fail(err)
	}
	m.enter(StageDone)
	return created, nil
}

// Update replaces the editable fields of an existing product. The row must exist
// before any image is uploaded; a replaced image stays in the bucket.
func (s *ProductService) Update(ctx context.Context, id int64, in ProductInput, img *ImageUpload) (domain.Product, error) {
	m := s.begin("update", id)
	m.enter(StageValidating)
	if id <= 0 {
		return domain.Product{}, m.fail(domain.Invalid("id", "must be positive"))
	}
	v, err := s.validate(in, img)
	if err != nil {
		return domain.Product{}, m.fail(err)
	}
	gctx, cancel := bounded(ctx, s.Timeout)
	current, err := s.Store.Get(gctx, id)
	cancel()
	if err != nil {
		return domain.Product{}, m.fail(backendErr(err))
	}

	now := s.now()
	patch := domain.ProductPatch{
		Name:        &v.name,
		Price:       &v.price,
		Description: &v.description,
		Category:    &v.category,
		UpdatedAt:   freshness.Format(now),
	}

	var key string
	if v.image != nil {
		m.enter(StageImageUploading)
		var url string
		if key, url, err = s.upload(ctx, v.image, now); err != nil {
			return domain.Product{}, m.fail(err)
		}
		patch.ImageURL = &url
	}

	m.enter(StageWriting)
	wctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()
	if err := s.Store.Update(wctx, id, patch); err != nil {
		err = backendErr(err)
		if key != "" {
			s.flagOrphan(key, *patch.ImageURL, "update failed: "+err.Error())
		}
		return domain.Product{}, m.fail(err)
	}

	if current.ImageURL != "" && patch.ImageURL != nil {
		applog.Info(nil, "product.image.replaced", map[string]any{"id": id, "retained": current.ImageURL})
	}
	m.enter(StageDone)
	return applyPatch(current, patch), nil
}

func applyPatch(p domain.Product, patch domain.ProductPatch) domain.Product {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	p.UpdatedAt = patch.UpdatedAt
	return p
}

// Delete removes the row. The image object is left in the bucket.
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	m := s.begin("delete", id)
	m.enter(StageValidating)
	if id <= 0 {
		return m.fail(domain.Invalid("id", "must be positive"))
	}
	gctx, cancel := bounded(ctx, s.Timeout)
	current, err := s.Store.Get(gctx, id)
	cancel()
	if err != nil {
		return m.fail(backendErr(err))
	}

	m.enter(StageWriting)
	wctx, cancel := bounded(ctx, s.Timeout)
	defer cancel()
	if err := s.Store.Delete(wctx, id); err != nil {
		return m.fail(backendErr(err))
	}
	if current.ImageURL != "" {
		applog.Info(nil, "product.delete.image_retained", map[string]any{"id": id, "url": current.ImageURL})
	}
	m.enter(StageDone)
	return nil
}

// Submit dispatches an admin form to Create or Update according to its mode.
func (s *ProductService) Submit(ctx context.Context, form ProductForm, img *ImageUpload) (domain.Product, error) {
	switch form.Mode {
	case ModeCreate:
		return s.Create(ctx, form.Input, img)
	case ModeEdit:
		return s.Update(ctx, form.OriginalID, form.Input, img)
	default:
		return domain.Product{}, &MutationError{Op: "submit", Stage: StageValidating, Err: domain.Invalid("mode", "unknown form mode")}
	}
}
