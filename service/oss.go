package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"time"

	"BlockReel-server/config"
	"BlockReel-server/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage wraps the MinIO client for the single media bucket. All
// stored references are object names, never full URLs; URLs are minted on
// demand.
type ObjectStorage struct {
	client *minio.Client
	bucket string
	domain string
	log    *logger.Logger
}

func InitMinIO(log *logger.Logger) (*ObjectStorage, error) {
	cfg := config.AppConfig.MinIO
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio init failed: %w", err)
	}
	s := &ObjectStorage{
		client: client,
		bucket: cfg.Bucket,
		domain: cfg.Domain,
		log:    log.With("service", "storage"),
	}
	return s, nil
}

func (s *ObjectStorage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket failed: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket failed: %w", err)
		}
		s.log.Info("bucket created", "bucket", s.bucket)
	}
	return nil
}

// Upload stores bytes under the object name and returns the stored path.
func (s *ObjectStorage) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = contentTypeFor(objectName)
	}
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s failed: %w", objectName, err)
	}
	return objectName, nil
}

// UploadFile stores a local file under the object name.
func (s *ObjectStorage) UploadFile(ctx context.Context, objectName, localPath string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	_, err := s.client.FPutObject(ctx, s.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(objectName),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s failed: %w", objectName, err)
	}
	return objectName, nil
}

// Download fetches the full object into memory.
func (s *ObjectStorage) Download(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s failed: %w", objectName, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s failed: %w", objectName, err)
	}
	return data, nil
}

// SignedURL mints a presigned GET URL for the object.
func (s *ObjectStorage) SignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign %s failed: %w", objectName, err)
	}
	return u.String(), nil
}

// PublicURL builds an unauthenticated URL from the configured domain.
// Only valid for objects in public prefixes (voice previews).
func (s *ObjectStorage) PublicURL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", s.domain, s.bucket, objectName)
}

func contentTypeFor(objectName string) string {
	switch filepath.Ext(objectName) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ass":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
