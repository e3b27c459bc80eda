package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"klee-ai/internal/apperr"
)

// ScannedFile is a regular file found below a knowledge folder.
type ScannedFile struct {
	Name    string // base name, e.g. "meeting-notes.md"
	RelPath string // path relative to the scanned root, forward slashes
	AbsPath string
	Format  string
	Size    int64
}

// ScanFolder walks root recursively and returns every regular file sorted by
// RelPath. Hidden files and directories (leading dot, including .DS_Store)
// are skipped. A missing root is apperr.ErrNotFound.
func ScanFolder(ctx context.Context, root string) ([]ScannedFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Wrap(apperr.ErrNotFound, "loader.ScanFolder", err)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []ScannedFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %s: %w", path, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if path != root && IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}

		files = append(files, ScannedFile{
			Name:    d.Name(),
			RelPath: filepath.ToSlash(relPath),
			AbsPath: path,
			Format:  FormatOf(path),
			Size:    fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan folder %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// IsHidden reports whether a file or directory name should be ignored.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
