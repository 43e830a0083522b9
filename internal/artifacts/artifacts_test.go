package artifacts_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"reelforge/internal/artifacts"
	"reelforge/internal/config"
	"reelforge/internal/services"
	"reelforge/internal/testsupport"
)

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "final.mp4")
	testsupport.WriteFile(t, path, 11)
	return path
}

func TestUploadKey(t *testing.T) {
	if got := artifacts.UploadKey("abc-123"); got != "productions/abc-123/final.mp4" {
		t.Fatalf("UploadKey=%q", got)
	}
}

func TestLocalUploadCopiesFile(t *testing.T) {
	root := t.TempDir()
	store := artifacts.NewLocal(root)

	ref, err := store.Upload(context.Background(), writeVideo(t), artifacts.UploadKey("job-1"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	dest := filepath.Join(root, "productions", "job-1", "final.mp4")
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "rrrrrrrrrrr" {
		t.Fatalf("artifact not copied: %v %q", err, data)
	}
	if !strings.HasPrefix(ref, "file://") || !strings.HasSuffix(ref, "/productions/job-1/final.mp4") {
		t.Fatalf("unexpected reference %q", ref)
	}
}

func TestLocalUploadConfinesKey(t *testing.T) {
	root := t.TempDir()
	store := artifacts.NewLocal(root)
	if _, err := store.Upload(context.Background(), writeVideo(t), "../../escape.mp4"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.mp4")); err != nil {
		t.Fatalf("expected key to be confined under root: %v", err)
	}
	if _, err := store.Upload(context.Background(), writeVideo(t), "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty key, got %v", err)
	}
}

func TestLocalCheck(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "artifacts")
	if err := artifacts.NewLocal(root).Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	file := writeVideo(t)
	if err := artifacts.NewLocal(file).Check(context.Background()); err == nil {
		t.Fatal("expected error when root is a file")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := artifacts.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := store.(*artifacts.Local); !ok {
		t.Fatalf("expected local store, got %T", store)
	}

	cfg.Storage.Backend = config.StorageMinIO
	cfg.Storage.Endpoint = ""
	if _, err := artifacts.New(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	cfg.Storage.Backend = "ftp"
	if _, err := artifacts.New(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown backend, got %v", err)
	}
}

// fakeS3 answers the handful of S3 calls the MinIO store makes.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case len(parts) == 2 && r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+parts[1]] = body
		f.types[bucket+"/"+parts[1]] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestMinIOUploadCreatesBucket(t *testing.T) {
	s3 := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
	server := httptest.NewServer(s3)
	defer server.Close()

	store, err := artifacts.NewMinIO(artifacts.MinIOConfig{
		Endpoint:  server.URL,
		Bucket:    "videos",
		AccessKey: "access",
		SecretKey: "secret",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewMinIO: %v", err)
	}

	ref, err := store.Upload(context.Background(), writeVideo(t), artifacts.UploadKey("job-9"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ref != "s3://videos/productions/job-9/final.mp4" {
		t.Fatalf("unexpected reference %q", ref)
	}
	if !s3.buckets["videos"] {
		t.Fatal("expected bucket to be created")
	}
	if got := s3.types["videos/productions/job-9/final.mp4"]; got != artifacts.ContentType {
		t.Fatalf("content type=%q", got)
	}
	if err := store.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
}
