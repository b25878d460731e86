package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/core/port"
	"github.com/arklim/storefront-auth/internal/infra/config"
)

type cloudinaryUploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// CloudinaryStore streams uploads to a Cloudinary folder.
type CloudinaryStore struct {
	uploader cloudinaryUploader
	folder   string
	logger   *zap.Logger
}

func NewCloudinaryStore(cfg config.CloudinarySettings, log *zap.Logger) (*CloudinaryStore, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials are incomplete")
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("create cloudinary client: %w", err)
	}
	return newCloudinaryStore(&cld.Upload, cfg.Folder, log), nil
}

func newCloudinaryStore(up cloudinaryUploader, folder string, log *zap.Logger) *CloudinaryStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CloudinaryStore{uploader: up, folder: folder, logger: log}
}

// Store returns the secure URL Cloudinary assigns.
func (s *CloudinaryStore) Store(ctx context.Context, file domain.UploadedFile) (domain.StoredFile, error) {
	res, err := s.uploader.Upload(ctx, bytes.NewReader(file.Data), uploader.UploadParams{
		Folder:       s.folder,
		ResourceType: "image",
	})
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res == nil || res.SecureURL == "" {
		msg := "empty response"
		if res != nil && res.Error.Message != "" {
			msg = res.Error.Message
		}
		return domain.StoredFile{}, fmt.Errorf("cloudinary upload: %s", msg)
	}

	s.logger.Debug("image stored in cloudinary", zap.String("public_id", res.PublicID))
	return domain.StoredFile{URL: res.SecureURL, Key: res.PublicID}, nil
}

var _ port.FileStore = (*CloudinaryStore)(nil)
