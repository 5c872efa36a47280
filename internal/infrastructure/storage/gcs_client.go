package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"chatsync/internal/domain/service"
	"chatsync/pkg/logger"
)

const publicURLPrefix = "https://storage.googleapis.com/"

type CloudStorageClient struct {
	bucket     *storage.BucketHandle
	bucketName string
	public     bool
}

var _ service.FileStorage = (*CloudStorageClient)(nil)

// NewCloudStorageClient writes into bucket. When public is set every object
// is made world-readable after upload.
func NewCloudStorageClient(bucket *storage.BucketHandle, bucketName string, public bool) *CloudStorageClient {
	return &CloudStorageClient{
		bucket:     bucket,
		bucketName: bucketName,
		public:     public,
	}
}

// EnsureCORS lets browsers fetch uploaded attachments directly.
func (c *CloudStorageClient) EnsureCORS(ctx context.Context) error {
	attrs, err := c.bucket.Attrs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bucket attributes: %w", err)
	}
	if len(attrs.CORS) > 0 {
		return nil
	}

	_, err = c.bucket.Update(ctx, storage.BucketAttrsToUpdate{
		CORS: []storage.CORS{{
			MaxAge:          3600,
			Methods:         []string{"GET", "HEAD", "OPTIONS"},
			Origins:         []string{"*"},
			ResponseHeaders: []string{"Content-Type"},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to update bucket CORS: %w", err)
	}
	return nil
}

func (c *CloudStorageClient) Upload(ctx context.Context, r io.Reader, contentType, folder, ext string) (*service.StoredObject, error) {
	name := fmt.Sprintf("%s/%s-%s%s", strings.Trim(folder, "/"), uuid.New().String(), time.Now().Format("20060102150405"), ext)

	obj := c.bucket.Object(name)
	wc := obj.NewWriter(ctx)
	wc.ContentType = contentType
	wc.CacheControl = "public, max-age=86400"

	written, err := io.Copy(wc, r)
	if err != nil {
		_ = wc.Close()
		return nil, fmt.Errorf("failed to copy file to GCS: %w", err)
	}
	if err := wc.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	if c.public {
		if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
			// uniform bucket-level access rejects object ACLs
			logger.Warn("Failed to make %s public: %v", name, err)
		}
	}

	return &service.StoredObject{
		URL:        publicURLPrefix + c.bucketName + "/" + name,
		ObjectName: name,
		Size:       written,
	}, nil
}

func (c *CloudStorageClient) Delete(ctx context.Context, fileURL string) error {
	if !strings.HasPrefix(fileURL, publicURLPrefix) {
		return fmt.Errorf("invalid GCS URL format")
	}

	parts := strings.SplitN(strings.TrimPrefix(fileURL, publicURLPrefix), "/", 2)
	if len(parts) != 2 || parts[0] != c.bucketName {
		return fmt.Errorf("invalid GCS URL format or bucket mismatch")
	}

	if err := c.bucket.Object(parts[1]).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
