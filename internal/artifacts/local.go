package artifacts

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"reelforge/internal/services"
)

// Local copies artifacts into a directory tree.
type Local struct {
	Root string
}

// NewLocal returns a local store rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{Root: dir}
}

// Upload copies localPath to Root/key and returns a file:// URL.
func (l *Local) Upload(ctx context.Context, localPath, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(l.Root) == "" {
		return "", services.Wrap(services.ErrConfiguration, "artifacts", "upload", "artifacts directory not configured", nil)
	}
	dest := filepath.Join(l.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "artifacts", "upload", "create artifact directory", err)
	}
	if err := copyFile(localPath, dest); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "artifacts", "upload", "copy artifact", err)
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		abs = dest
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// Check verifies the root exists and is a directory, creating it when absent.
func (l *Local) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(l.Root) == "" {
		return services.Wrap(services.ErrConfiguration, "artifacts", "check", "artifacts directory not configured", nil)
	}
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "artifacts", "check", "create artifacts directory", err)
	}
	info, err := os.Stat(l.Root)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "artifacts", "check", "stat artifacts directory", err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, "artifacts", "check", fmt.Sprintf("%s is not a directory", l.Root), nil)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
