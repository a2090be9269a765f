package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/faceid/internal/config"
)

type MinIOStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		now:    time.Now,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Save uploads an image under namespace and returns its object key, which
// serves as the locator.
func (s *MinIOStore) Save(ctx context.Context, data []byte, namespace, ext string) (string, error) {
	key := objectKey(namespace, ext, s.now(), uuid.New())
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

// Get retrieves an image by locator.
func (s *MinIOStore) Get(ctx context.Context, locator string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, locator, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", locator, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", locator, err)
	}
	return data, nil
}

func (s *MinIOStore) Delete(ctx context.Context, locator string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, locator, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", locator, err)
	}
	return nil
}

// DeleteNamespace removes every object under namespace in a single batch
// request. It reports whether anything was there.
func (s *MinIOStore) DeleteNamespace(ctx context.Context, namespace string) (bool, error) {
	objectsCh := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	found := false

	go func() {
		defer close(objectsCh)
		for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    namespace,
			Recursive: true,
		}) {
			if obj.Err != nil {
				listErr <- fmt.Errorf("list objects %s: %w", namespace, obj.Err)
				return
			}
			found = true
			select {
			case objectsCh <- obj:
			case <-ctx.Done():
				listErr <- ctx.Err()
				return
			}
		}
		listErr <- nil
	}()

	var firstErr error
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("delete object %s: %w", result.ObjectName, result.Err)
		}
	}
	if err := <-listErr; err != nil {
		return found, err
	}
	return found, firstErr
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// objectKey builds <namespace><yyyymmdd_hhmmss>_<8 hex><ext>.
func objectKey(namespace, ext string, at time.Time, id uuid.UUID) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if namespace != "" && !strings.HasSuffix(namespace, "/") {
		namespace += "/"
	}
	return fmt.Sprintf("%s%s_%s%s", namespace, at.UTC().Format("20060102_150405"), id.String()[:8], strings.ToLower(ext))
}
