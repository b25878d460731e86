package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/usecase"
)

// UploadField is the multipart field carrying the image.
const UploadField = "avatar"

const fileRequiredMessage = "File is required"

// uploadErrorCases answer image problems with their dedicated statuses.
var uploadErrorCases = []ErrorCase{
	{Err: usecase.ErrFileTypeMismatch, Status: http.StatusUnsupportedMediaType},
	{Err: usecase.ErrFileTooLarge, Status: http.StatusRequestEntityTooLarge},
}

// UploadUsecase stores validated images in a named target.
type UploadUsecase interface {
	Upload(ctx context.Context, target string, file domain.UploadedFile) (domain.StoredFile, error)
	MaxBytes() int64
}

// FileHandler exposes the /files upload endpoints.
type FileHandler struct {
	uploads UploadUsecase
}

// NewFileHandler constructs FileHandler.
func NewFileHandler(uploads UploadUsecase) *FileHandler {
	return &FileHandler{uploads: uploads}
}

// RegisterRoutes binds the /files routes.
func (h *FileHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/upload", h.upload(usecase.StoreLocal))
	r.POST("/upload/s3", h.upload(usecase.StoreS3))
	r.POST("/upload/cl", h.upload(usecase.StoreCloudinary))
}

// upload godoc
// @Summary Upload an image
// @Description Stores the "avatar" image in the local, S3 or Cloudinary target and returns its URL.
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} UploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 415 {object} ErrorResponse
// @Router /files/upload [post]
func (h *FileHandler) upload(target string) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := readUpload(c, UploadField, h.uploads.MaxBytes())
		if err != nil {
			respondUploadError(c, err)
			return
		}
		if file == nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, fileRequiredMessage))
			return
		}

		stored, err := h.uploads.Upload(c.Request.Context(), target, *file)
		if err != nil {
			RespondWithError(c, err, uploadErrorCases...)
			return
		}
		c.JSON(http.StatusOK, UploadResponse{URL: stored.URL})
	}
}

// readUpload returns the named multipart file, or nil when the field is absent.
// Files over maxBytes fail with usecase.ErrFileTooLarge before being read.
func readUpload(c *gin.Context, field string, maxBytes int64) (*domain.UploadedFile, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("read multipart form: %w", err)
	}
	if maxBytes > 0 && header.Size > maxBytes {
		return nil, usecase.ErrFileTooLarge
	}

	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, usecase.ErrFileTooLarge
	}

	return &domain.UploadedFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

func respondUploadError(c *gin.Context, err error) {
	if usecase.KindOf(err) == usecase.KindInternal {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid multipart form"))
		return
	}
	RespondWithError(c, err, uploadErrorCases...)
}
