// Package storage holds the object-store side of product images.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// KeyPrefix is the folder product images live under inside the bucket.
const KeyPrefix = "product-images"

type UploadOptions struct {
	ContentType  string
	CacheSeconds int
	Overwrite    bool
}

type Bucket interface {
	Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error
	PublicURL(key string) string
	Remove(ctx context.Context, key string) error
}

// DiskBucket stores objects under Root/Name and publishes them below /media/.
// Content type and cache settings are not persisted; the media route serves by
// file extension with a fixed max-age.
type DiskBucket struct {
	Root    string
	Name    string
	BaseURL string
}

func NewDiskBucket(root, name, baseURL string) (*DiskBucket, error) {
	if name == "" {
		name = "products"
	}
	if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
		return nil, errors.Wrap(err, "create bucket dir")
	}
	return &DiskBucket{Root: root, Name: name, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (b *DiskBucket) path(key string) (string, error) {
	clean := path.Clean(key)
	if key == "" || clean == "." || strings.HasPrefix(clean, "/") || strings.Contains(clean, "..") {
		return "", errors.Errorf("bad object key %q", key)
	}
	return filepath.Join(b.Root, b.Name, filepath.FromSlash(clean)), nil
}

func (b *DiskBucket) Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := b.path(key)
	if err != nil {
		return err
	}
	if !opts.Overwrite {
		if _, err := os.Stat(full); err == nil {
			return errors.Errorf("object %q already exists", key)
		}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrap(err, "create object dir")
	}
	tmp := full + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write object")
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "commit object")
	}
	return nil
}

func (b *DiskBucket) PublicURL(key string) string {
	return b.BaseURL + "/media/" + b.Name + "/" + strings.TrimLeft(key, "/")
}

func (b *DiskBucket) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove object")
	}
	return nil
}

// UniqueKey derives product-images/{unixMillis}_{token}.{ext}. The millisecond
// timestamp plus a random token keeps two uploads of the same file apart.
func UniqueKey(now time.Time, ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		ext = "bin"
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s/%d_%s.%s", KeyPrefix, now.UnixMilli(), token, ext)
}

// DetectImage sniffs the payload. The extension comes from the original filename
// when it has one, otherwise from the detected type.
func DetectImage(data []byte, filename string) (contentType, ext string, err error) {
	m := mimetype.Detect(data)
	if !strings.HasPrefix(m.String(), "image/") {
		return "", "", errors.Errorf("not an image (%s)", m.String())
	}
	ext = sanitizeExt(filepath.Ext(filename))
	if ext == "" {
		ext = sanitizeExt(m.Extension())
	}
	return m.String(), ext, nil
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() > 8 {
		return ""
	}
	return b.String()
}
