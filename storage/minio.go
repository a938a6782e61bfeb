package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"supportdesk_back/apperr"
	"supportdesk_back/config"
)

// DefaultBucket holds raw knowledge uploads.
const DefaultBucket = "knowledge-uploads"

// MaxUploadBytes caps a single knowledge file.
const MaxUploadBytes int64 = 20 * 1024 * 1024

// BlobStore keeps raw upload bytes by object path.
type BlobStore interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) error
	Download(ctx context.Context, objectPath string) ([]byte, error)
	Remove(ctx context.Context, objectPath string) error
}

// MinioStore stores blobs in a MinIO/S3 bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStoreFromEnv initialises MinioStore using MINIO_* environment
// variables. It returns nil, nil when MinIO is not configured.
func NewMinioStoreFromEnv() (*MinioStore, error) {
	endpoint := config.String("MINIO_ENDPOINT", "")
	accessKey := config.String("MINIO_ACCESS_KEY", "")
	secretKey := config.String("MINIO_SECRET_KEY", "")
	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, nil
	}
	bucket := config.String("MINIO_BUCKET", DefaultBucket)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: config.Bool("MINIO_USE_SSL", false),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

func (s *MinioStore) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	if s == nil || s.client == nil {
		return errors.New("storage: blob store not configured")
	}
	objectName, err := cleanObjectPath(objectPath)
	if err != nil {
		return err
	}
	if int64(len(data)) > MaxUploadBytes {
		return fmt.Errorf("storage: object exceeds %d bytes: %w", MaxUploadBytes, apperr.ErrValidation)
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = http.DetectContentType(data)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = s.client.PutObject(uploadCtx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("storage: upload %s: %w", objectName, err)
	}
	return nil
}

func (s *MinioStore) Download(ctx context.Context, objectPath string) ([]byte, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("storage: blob store not configured")
	}
	objectName, err := cleanObjectPath(objectPath)
	if err != nil {
		return nil, err
	}

	downloadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	object, err := s.client.GetObject(downloadCtx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: download %s: %w", objectName, err)
	}
	defer object.Close()

	data, err := io.ReadAll(io.LimitReader(object, MaxUploadBytes+1))
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("storage: object %s: %w", objectName, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w", objectName, err)
	}
	return data, nil
}

func (s *MinioStore) Remove(ctx context.Context, objectPath string) error {
	if s == nil || s.client == nil {
		return nil
	}
	objectName, err := cleanObjectPath(objectPath)
	if err != nil {
		return err
	}

	removeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.client.RemoveObject(removeCtx, s.bucket, objectName, minio.RemoveObjectOptions{})
}

// cleanObjectPath normalises an object key and rejects traversal segments.
func cleanObjectPath(raw string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", fmt.Errorf("storage: object path is empty: %w", apperr.ErrValidation)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("storage: object path %q escapes its prefix: %w", raw, apperr.ErrValidation)
		}
	}
	return path.Clean(trimmed), nil
}
