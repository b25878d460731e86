package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
	"github.com/arklim/storefront-auth/internal/infra/config"
)

const defaultJPEGQuality = 60

// LocalStore re-encodes images as JPEG into a directory served under a public prefix.
type LocalStore struct {
	dir     string
	prefix  string
	quality int
	logger  *zap.Logger
	now     func() time.Time
}

// NewLocalStore creates the target directory if needed.
func NewLocalStore(cfg config.UploadSettings, log *zap.Logger) (*LocalStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("upload.dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	prefix := cfg.PublicPrefix
	if prefix == "" {
		prefix = "/uploads/images"
	}
	return &LocalStore{
		dir:     cfg.Dir,
		prefix:  strings.TrimSuffix(prefix, "/"),
		quality: quality,
		logger:  log,
		now:     time.Now,
	}, nil
}

// WithClock overrides the time source used for file names.
func (s *LocalStore) WithClock(now func() time.Time) *LocalStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Store decodes the upload and writes it as <unix millis>_<name>.
func (s *LocalStore) Store(_ context.Context, file domain.UploadedFile) (domain.StoredFile, error) {
	img, err := imaging.Decode(bytes.NewReader(file.Data), imaging.AutoOrientation(true))
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("decode image: %w", err)
	}

	name := objectName(s.now(), file.Name)
	target := filepath.Join(s.dir, name)
	out, err := os.Create(target)
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("create image file: %w", err)
	}
	if err := imaging.Encode(out, img, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		_ = out.Close()
		_ = os.Remove(target)
		return domain.StoredFile{}, fmt.Errorf("encode image: %w", err)
	}
	if err := out.Close(); err != nil {
		return domain.StoredFile{}, fmt.Errorf("close image file: %w", err)
	}

	s.logger.Debug("image stored locally", zap.String("path", target))
	return domain.StoredFile{URL: s.prefix + "/" + name, Key: name}, nil
}

// objectName prefixes the client file name with a timestamp. Path segments are dropped.
func objectName(at time.Time, original string) string {
	base := path.Base(strings.ReplaceAll(original, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	base = strings.ReplaceAll(base, " ", "_")
	return fmt.Sprintf("%d_%s", at.UnixMilli(), base)
}

var _ port.FileStore = (*LocalStore)(nil)
