package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// dirPrefix marks directories owned by production jobs.
const dirPrefix = "job-"

// WorkDir is a job's scratch directory.
type WorkDir struct {
	path string
	once *sync.Once
	err  *error
}

// NewWorkDir creates root/job-<jobID>.
func NewWorkDir(root, jobID string) (WorkDir, error) {
	root = strings.TrimSpace(root)
	jobID = strings.TrimSpace(jobID)
	if root == "" {
		return WorkDir{}, fmt.Errorf("staging root is required")
	}
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return WorkDir{}, fmt.Errorf("invalid job id %q", jobID)
	}
	path := filepath.Join(root, dirPrefix+jobID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return WorkDir{}, fmt.Errorf("create work directory: %w", err)
	}
	var cleanupErr error
	return WorkDir{path: path, once: &sync.Once{}, err: &cleanupErr}, nil
}

// Path returns the directory.
func (w WorkDir) Path() string { return w.path }

// File joins name onto the directory.
func (w WorkDir) File(name string) string {
	return filepath.Join(w.path, name)
}

// Cleanup removes the directory. Repeated calls return the first result.
func (w WorkDir) Cleanup() error {
	if w.once == nil || w.path == "" {
		return nil
	}
	w.once.Do(func() {
		*w.err = os.RemoveAll(w.path)
	})
	return *w.err
}
