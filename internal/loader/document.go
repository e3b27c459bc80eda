// Package loader reads knowledge files, folders and note snapshots into
// plain-text Documents ready for hierarchical chunking.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"klee-ai/internal/apperr"
	"klee-ai/internal/contextutil"
)

// Document is raw text plus the metadata of where it came from.
type Document struct {
	ID       string
	SourceID string
	Path     string
	Format   string
	Text     string
}

// Source yields the documents of one source id. Documents may be called
// more than once and returns the same set each time.
type Source interface {
	Documents(ctx context.Context) ([]Document, error)
}

// FileSource loads a single file.
type FileSource struct {
	SourceID string
	Path     string
}

// Documents reads the file. A missing file is apperr.ErrNotFound; an
// unreadable or empty one yields no documents.
func (s FileSource) Documents(ctx context.Context) ([]Document, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Wrap(apperr.ErrNotFound, "loader.FileSource", err)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", s.Path, err)
	}
	if info.IsDir() {
		return DirSource{SourceID: s.SourceID, Dir: s.Path}.Documents(ctx)
	}

	doc, err := ReadFile(s.SourceID, s.Path)
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "skipping unreadable file", "path", s.Path, "error", err)
		return nil, nil
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}
	return []Document{doc}, nil
}

// DirSource loads every supported, non-hidden file below Dir.
type DirSource struct {
	SourceID string
	Dir      string
}

// Documents walks Dir. A missing directory is apperr.ErrNotFound; individual
// unreadable files are logged and skipped.
func (s DirSource) Documents(ctx context.Context) ([]Document, error) {
	logger := contextutil.LoggerFromContext(ctx)

	files, err := ScanFolder(ctx, s.Dir)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(files))
	for _, f := range files {
		doc, err := ReadFile(s.SourceID, f.AbsPath)
		if err != nil {
			logger.WarnContext(ctx, "skipping unreadable file", "path", f.AbsPath, "error", err)
			continue
		}
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Static is an in-memory Source.
type Static []Document

// Documents returns a copy of the slice.
func (s Static) Documents(ctx context.Context) ([]Document, error) {
	return append([]Document(nil), s...), nil
}

// ReadFile reads one file and converts it to plain text according to its extension.
func ReadFile(sourceID, path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	format := FormatOf(path)
	text, err := Convert(format, raw)
	if err != nil {
		return Document{}, fmt.Errorf("failed to convert %s: %w", path, err)
	}

	return Document{
		ID:       filepath.ToSlash(path),
		SourceID: sourceID,
		Path:     path,
		Format:   format,
		Text:     text,
	}, nil
}

// FormatOf returns the lowercase extension of path without the dot, or "txt".
func FormatOf(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "txt"
	}
	return ext
}

// Convert turns raw file bytes into the text that gets chunked.
func Convert(format string, raw []byte) (string, error) {
	switch format {
	case "md", "markdown":
		return MarkdownText(raw), nil
	case "html", "htm":
		return HTMLText(string(raw))
	default:
		return string(raw), nil
	}
}

// NoteSnapshotName is the file a note's content is written to before indexing.
const NoteSnapshotName = "store.txt"

// NoteSnapshotPath returns where the snapshot of noteID lives under notesDir.
func NoteSnapshotPath(notesDir, noteID string) (string, error) {
	if err := CheckSourceID(noteID); err != nil {
		return "", err
	}
	return filepath.Join(notesDir, noteID, NoteSnapshotName), nil
}

// CheckSourceID rejects ids that are not exactly one path element. Source ids
// name directories under the data dir, so "..", "." or "a/b" would escape or
// alias them. A rejected id is apperr.ErrNotFound: no such source can exist.
func CheckSourceID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return apperr.New(apperr.ErrNotFound, "loader.CheckSourceID", fmt.Sprintf("invalid source id %q", id))
	}
	return nil
}
