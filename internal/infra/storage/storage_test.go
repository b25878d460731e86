package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/disintegration/imaging"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/infra/config"
)

var fixedNow = time.UnixMilli(1700000000123)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestLocalStoreWritesJPEG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	store, err := NewLocalStore(config.UploadSettings{Dir: dir, PublicPrefix: "/uploads/images/"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	store.WithClock(func() time.Time { return fixedNow })

	stored, err := store.Store(context.Background(), domain.UploadedFile{
		Name:        "../../etc/my avatar.png",
		ContentType: "image/png",
		Data:        pngBytes(t),
	})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if stored.Key != "1700000000123_my_avatar.png" {
		t.Fatalf("key = %q", stored.Key)
	}
	if stored.URL != "/uploads/images/1700000000123_my_avatar.png" {
		t.Fatalf("url = %q", stored.URL)
	}

	raw, err := os.ReadFile(filepath.Join(dir, stored.Key))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if _, format, err := image.Decode(bytes.NewReader(raw)); err != nil || format != "jpeg" {
		t.Fatalf("stored file format = %q (%v), want jpeg", format, err)
	}
	if _, err := imaging.Decode(bytes.NewReader(raw)); err != nil {
		t.Fatalf("imaging.Decode: %v", err)
	}
}

func TestLocalStoreRejectsUndecodable(t *testing.T) {
	store, err := NewLocalStore(config.UploadSettings{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if _, err := store.Store(context.Background(), domain.UploadedFile{Name: "x.png", Data: []byte("not an image")}); err == nil {
		t.Fatal("expected decode error")
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreStore(t *testing.T) {
	client := &fakeS3{}
	store := newS3Store(client, config.S3Settings{Bucket: "shop-assets"}, zaptest.NewLogger(t))
	store.now = func() time.Time { return fixedNow }

	stored, err := store.Store(context.Background(), domain.UploadedFile{Name: "cat.png", ContentType: "image/png", Data: []byte{1, 2}})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if stored.URL != "https://shop-assets.s3.amazonaws.com/1700000000123_cat.png" {
		t.Fatalf("url = %q", stored.URL)
	}
	if aws.ToString(client.input.Bucket) != "shop-assets" || aws.ToString(client.input.Key) != "1700000000123_cat.png" {
		t.Fatalf("unexpected input: bucket=%s key=%s", aws.ToString(client.input.Bucket), aws.ToString(client.input.Key))
	}
	if aws.ToString(client.input.ContentType) != "image/png" {
		t.Fatalf("content type = %s", aws.ToString(client.input.ContentType))
	}

	custom := newS3Store(client, config.S3Settings{Bucket: "b", Endpoint: "http://127.0.0.1:9000/"}, nil)
	custom.now = func() time.Time { return fixedNow }
	stored, err = custom.Store(context.Background(), domain.UploadedFile{Name: "a.jpg"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if stored.URL != "http://127.0.0.1:9000/b/1700000000123_a.jpg" {
		t.Fatalf("custom endpoint url = %q", stored.URL)
	}

	client.err = errors.New("access denied")
	if _, err := store.Store(context.Background(), domain.UploadedFile{Name: "x"}); err == nil {
		t.Fatal("expected put error")
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), config.S3Settings{}, nil); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

type fakeCloudinary struct {
	params uploader.UploadParams
	result *uploader.UploadResult
	err    error
}

func (f *fakeCloudinary) Upload(_ context.Context, _ interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	f.params = params
	return f.result, f.err
}

func TestCloudinaryStoreStore(t *testing.T) {
	up := &fakeCloudinary{result: &uploader.UploadResult{
		PublicID:  "avatars/abc",
		SecureURL: "https://res.cloudinary.com/demo/image/upload/avatars/abc.jpg",
	}}
	store := newCloudinaryStore(up, "avatars", zaptest.NewLogger(t))

	stored, err := store.Store(context.Background(), domain.UploadedFile{Name: "a.png", Data: []byte{1}})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if stored.URL != up.result.SecureURL || stored.Key != "avatars/abc" {
		t.Fatalf("unexpected stored file %+v", stored)
	}
	if up.params.Folder != "avatars" {
		t.Fatalf("folder = %q", up.params.Folder)
	}

	up.result = &uploader.UploadResult{Error: api.ErrorResp{Message: "Invalid image file"}}
	if _, err := store.Store(context.Background(), domain.UploadedFile{}); err == nil {
		t.Fatal("expected error for api error response")
	}

	up.err = errors.New("timeout")
	if _, err := store.Store(context.Background(), domain.UploadedFile{}); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestNewCloudinaryStoreValidatesCredentials(t *testing.T) {
	if _, err := NewCloudinaryStore(config.CloudinarySettings{CloudName: "demo"}, nil); err == nil {
		t.Fatal("expected error for incomplete credentials")
	}
}
