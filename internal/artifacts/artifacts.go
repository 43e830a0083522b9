package artifacts

import (
	"context"
	"fmt"
	"path"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/services"
)

// ContentType is the MIME type of uploaded videos.
const ContentType = "video/mp4"

// Store receives final videos and returns a reference to the stored copy.
type Store interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	Check(ctx context.Context) error
}

// UploadKey is the object key for a job's final video.
func UploadKey(jobID string) string {
	return path.Join("productions", strings.TrimSpace(jobID), "final.mp4")
}

// New selects the backend named by storage.backend.
func New(cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "artifacts", "new", "configuration unavailable", nil)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "", config.StorageLocal:
		return NewLocal(cfg.Paths.ArtifactsDir), nil
	case config.StorageMinIO:
		store, err := NewMinIO(MinIOConfig{
			Endpoint:  cfg.Storage.Endpoint,
			Bucket:    cfg.Storage.Bucket,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "artifacts", "new", fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend), nil)
	}
}

func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(path.Clean("/"+strings.TrimSpace(key)), "/")
	if key == "" || key == "." {
		return "", services.Wrap(services.ErrValidation, "artifacts", "upload", "object key is empty", nil)
	}
	return key, nil
}
