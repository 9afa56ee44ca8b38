// Package finder locates manifest files on disk.
package finder

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IsManifest reports whether name looks like a manifest an editor saved:
// a .yaml or .yml file that is not hidden. Editors park swap and lock files
// under dot names next to the real file.
func IsManifest(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := filepath.Ext(base)
	return ext == ".yaml" || ext == ".yml"
}

// FindManifests returns path itself when it is a file, or the manifests
// directly inside it when it is a directory, sorted by name.
// Subdirectories are not descended into.
func FindManifests(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if p != path {
				return filepath.SkipDir
			}
			return nil
		}

		if IsManifest(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	sort.Strings(files)
	return files, nil
}
