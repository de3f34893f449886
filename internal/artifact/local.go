// Package artifact resolves the local programs to deploy and lists what a
// collection run brought back.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNotFound indicates a local program file is missing.
var ErrNotFound = errors.New("program not found")

// Resolve validates program paths, resolving relative paths against root.
// Paths are returned in the order given.
func Resolve(root string, paths []string) ([]string, error) {
	resolved := make([]string, 0, len(paths))
	for _, input := range paths {
		cleaned := input
		if !filepath.IsAbs(cleaned) {
			cleaned = filepath.Join(root, cleaned)
		}
		info, err := os.Stat(cleaned)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %q", ErrNotFound, input)
			}
			return nil, fmt.Errorf("stat %q: %w", input, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("program %q is a directory", input)
		}
		resolved = append(resolved, filepath.Clean(cleaned))
	}
	return resolved, nil
}

// List returns the regular files directly under dir matching pattern, sorted.
// A missing directory yields no files.
func List(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}
