// Package localdir enumerates and watches the top level of a local folder
// for bulk upload. Subdirectories are not descended into.
package localdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNotDir is returned when the folder to scan or watch is not a directory.
var ErrNotDir = errors.New("localdir: not a directory")

// Scan returns the paths of the regular files directly inside dir, sorted by
// name. Symlinks, subdirectories and special files are skipped.
func Scan(dir string) ([]string, error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("localdir: reading %s: %w", dir, err)
	}

	paths := make([]string, 0, len(entries))

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	sort.Strings(paths)

	return paths, nil
}

func checkDir(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("localdir: %w", err)
	}

	if !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDir, dir)
	}

	return nil
}

// isRegular reports whether path currently names a regular file.
func isRegular(path string) bool {
	fi, err := os.Lstat(path)

	return err == nil && fi.Mode().IsRegular()
}
