package documents

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ternarybob/extracta/internal/common"
)

// ObjectStore reads documents from an S3-compatible bucket
type ObjectStore struct {
	client        *minio.Client
	defaultBucket string
}

// NewObjectStore creates a client for cfg. Returns nil, nil when no endpoint is configured.
func NewObjectStore(cfg *common.ObjectStoreConfig) (*ObjectStore, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &ObjectStore{
		client:        client,
		defaultBucket: cfg.Bucket,
	}, nil
}

// splitObjectPath parses s3://bucket/key; s3:///key uses the default bucket
func (s *ObjectStore) splitObjectPath(path string) (string, string, error) {
	rest := strings.TrimPrefix(path, objectScheme)
	bucket, key, found := strings.Cut(rest, "/")
	if !found || key == "" {
		return "", "", fmt.Errorf("%w: invalid object path %s", ErrDocumentNotFound, path)
	}
	if bucket == "" {
		bucket = s.defaultBucket
	}
	if bucket == "" {
		return "", "", fmt.Errorf("%w: no bucket in %s and no default bucket configured", ErrDocumentNotFound, path)
	}
	return bucket, key, nil
}

func isMissing(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// Stat returns the object's size and content type
func (s *ObjectStore) Stat(ctx context.Context, path string) (*Info, error) {
	bucket, key, err := s.splitObjectPath(path)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat object %s: %w", path, err)
	}

	return &Info{
		Path:     path,
		Name:     Name(path),
		Size:     obj.Size,
		MIMEType: obj.ContentType,
	}, nil
}

// Open streams the object
func (s *ObjectStore) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	bucket, key, err := s.splitObjectPath(path)
	if err != nil {
		return nil, 0, err
	}

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get object %s: %w", path, err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isMissing(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return nil, 0, fmt.Errorf("failed to stat object %s: %w", path, err)
	}
	return obj, info.Size, nil
}
