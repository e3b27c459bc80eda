package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_note_store.go -package=mocks klee-ai/internal/storage NoteStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// NoteStore defines the interface for note storage operations.
type NoteStore interface {
	// Get gets a note by id. Returns nil and ErrNotFound if not found.
	Get(ctx context.Context, id string) (*Note, error)
	// Upsert inserts a new note or updates an existing one.
	Upsert(ctx context.Context, note *Note) error
}

// NoteRepo provides methods for note operations.
// It implements the NoteStore interface.
type NoteRepo struct {
	db *sql.DB
}

var _ NoteStore = (*NoteRepo)(nil)

// NewNoteRepo creates a new NoteRepo.
func NewNoteRepo(db *sql.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

// Get gets a note by id.
// Returns nil and ErrNotFound if not found.
func (r *NoteRepo) Get(ctx context.Context, id string) (*Note, error) {
	var note Note
	err := r.db.QueryRowContext(ctx,
		"SELECT id, title, content, create_at, update_at FROM notes WHERE id = ?", id,
	).Scan(&note.ID, &note.Title, &note.Content, &note.CreateAt, &note.UpdateAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query note: %w", err)
	}
	return &note, nil
}

// Upsert inserts a new note or updates an existing one.
// A note without an id gets a new UUID. An existing note keeps its create_at.
func (r *NoteRepo) Upsert(ctx context.Context, note *Note) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	ts := now()
	note.UpdateAt = ts

	// Use SQLite INSERT ... ON CONFLICT syntax for upsert
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (id, title, content, create_at, update_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 title = excluded.title, content = excluded.content, update_at = excluded.update_at`,
		note.ID, note.Title, note.Content, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, "SELECT create_at FROM notes WHERE id = ?", note.ID).Scan(&note.CreateAt); err != nil {
		return fmt.Errorf("failed to read note: %w", err)
	}
	return nil
}
