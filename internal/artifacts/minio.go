package artifacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"reelforge/internal/services"
)

const defaultBucket = "reelforge-artifacts"

// MinIOConfig captures the S3-compatible endpoint settings.
type MinIOConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// MinIO uploads artifacts to a bucket.
type MinIO struct {
	client *minio.Client
	bucket string
}

// NewMinIO builds a client. The endpoint may carry an http:// or https://
// scheme, which overrides UseSSL.
func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	secure := cfg.UseSSL
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, secure = strings.TrimPrefix(endpoint, "http://"), false
	}
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "artifacts", "minio", "storage.endpoint is required for the minio backend", nil)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "artifacts", "minio", "create client", err)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = defaultBucket
	}
	return &MinIO{client: client, bucket: bucket}, nil
}

// Bucket returns the target bucket name.
func (m *MinIO) Bucket() string { return m.bucket }

// Upload stores localPath under key and returns an s3:// reference.
func (m *MinIO) Upload(ctx context.Context, localPath, key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := m.ensureBucket(ctx); err != nil {
		return "", err
	}
	if _, err := m.client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{ContentType: ContentType}); err != nil {
		return "", services.Wrap(services.ErrTransient, "artifacts", "minio", "upload object", err)
	}
	return fmt.Sprintf("s3://%s/%s", m.bucket, key), nil
}

// Check confirms the endpoint answers and the credentials can see the bucket.
func (m *MinIO) Check(ctx context.Context) error {
	if _, err := m.client.BucketExists(ctx, m.bucket); err != nil {
		return services.Wrap(services.ErrExternalTool, "artifacts", "minio", "reach object store", err)
	}
	return nil
}

func (m *MinIO) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return services.Wrap(services.ErrTransient, "artifacts", "minio", "check bucket", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return services.Wrap(services.ErrExternalTool, "artifacts", "minio", "create bucket", err)
	}
	return nil
}
