package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
)

// Upload targets.
const (
	StoreLocal      = "local"
	StoreS3         = "s3"
	StoreCloudinary = "cloudinary"
)

// DefaultMaxUploadBytes caps uploads at 5 MiB.
const DefaultMaxUploadBytes int64 = 5 << 20

// UploadService validates images and hands them to a named store.
type UploadService struct {
	stores   map[string]port.FileStore
	maxBytes int64
	logger   *zap.Logger
}

// NewUploadService constructs UploadService. Stores with nil values are skipped.
func NewUploadService(stores map[string]port.FileStore, maxBytes int64, log *zap.Logger) *UploadService {
	if log == nil {
		log = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	registered := make(map[string]port.FileStore, len(stores))
	for name, store := range stores {
		if store != nil {
			registered[name] = store
		}
	}
	return &UploadService{stores: registered, maxBytes: maxBytes, logger: log}
}

// MaxBytes is the largest accepted upload.
func (s *UploadService) MaxBytes() int64 {
	return s.maxBytes
}

// Store returns the named store, if configured.
func (s *UploadService) Store(name string) (port.FileStore, bool) {
	store, ok := s.stores[name]
	return store, ok
}

// avatarOrder lists the stores tried for profile avatars, remote first.
var avatarOrder = []string{StoreCloudinary, StoreS3, StoreLocal}

// AvatarStore returns the store used for profile avatars: Cloudinary, then S3,
// then the local disk. It returns nil when none is configured.
func (s *UploadService) AvatarStore() port.FileStore {
	for _, name := range avatarOrder {
		if store, ok := s.stores[name]; ok {
			return store
		}
	}
	return nil
}

// Upload stores file in the named target.
func (s *UploadService) Upload(ctx context.Context, target string, file domain.UploadedFile) (domain.StoredFile, error) {
	if err := ValidateImage(file, s.maxBytes); err != nil {
		return domain.StoredFile{}, err
	}

	store, ok := s.stores[target]
	if !ok {
		return domain.StoredFile{}, ErrUnknownFileStore
	}

	stored, err := store.Store(ctx, file)
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("store %s upload: %w", target, err)
	}

	s.logger.Info("file uploaded",
		zap.String("target", target),
		zap.String("key", stored.Key),
		zap.Int64("size", file.Size),
	)
	return stored, nil
}

// ValidateImage enforces the image mimetype and size limit.
func ValidateImage(file domain.UploadedFile, maxBytes int64) error {
	if !strings.Contains(file.ContentType, "image") {
		return ErrFileTypeMismatch
	}
	size := file.Size
	if size == 0 {
		size = int64(len(file.Data))
	}
	if maxBytes > 0 && size > maxBytes {
		return ErrFileTooLarge
	}
	return nil
}
