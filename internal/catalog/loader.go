// Package catalog discovers loadable GGUF files on disk. It never opens the
// files; the catalog is a directory listing, not a validation pass.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"irisd/internal/common/fsutil"
	"irisd/pkg/types"
)

// LoadDir scans a directory for *.gguf files and builds a catalog from
// filenames. ID is the full filename (including extension); Path is the
// absolute file path.
func LoadDir(dir string) ([]types.ModelFile, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var files []types.ModelFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		p := filepath.Join(abs, name)
		files = append(files, types.ModelFile{
			ID:        name,
			Name:      name,
			Path:      p,
			SizeBytes: fsutil.FileSize(p),
		})
	}
	return files, nil
}

// Resolve maps a catalog id to its path. Absolute or existing paths pass
// through untouched, so clients may send either an id or a full path.
func Resolve(dir, idOrPath string) (string, error) {
	if fsutil.PathExists(idOrPath) || filepath.IsAbs(idOrPath) {
		return idOrPath, nil
	}
	files, err := LoadDir(dir)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if f.ID == idOrPath {
			return f.Path, nil
		}
	}
	return "", fmt.Errorf("no catalog entry for %q", idOrPath)
}
