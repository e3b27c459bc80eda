package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_knowledge_store.go -package=mocks klee-ai/internal/storage KnowledgeStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// KnowledgeStore defines the interface for knowledge folder storage operations.
type KnowledgeStore interface {
	// Create inserts a knowledge base. An empty id is generated.
	Create(ctx context.Context, k *Knowledge) error
	// Get gets a knowledge base by id. Returns ErrNotFound if not found.
	Get(ctx context.Context, id string) (*Knowledge, error)
	// List returns every knowledge base, ordered by creation.
	List(ctx context.Context) ([]Knowledge, error)
	// SetFolder records the folder a knowledge base was imported from.
	SetFolder(ctx context.Context, id, folder string) error
	// AddFile inserts a knowledge file. An empty id is generated.
	AddFile(ctx context.Context, f *KnowledgeFile) error
	// GetFile gets a knowledge file by id. Returns ErrNotFound if not found.
	GetFile(ctx context.Context, id string) (*KnowledgeFile, error)
	// ListFiles returns the files of a knowledge base ordered by path.
	ListFiles(ctx context.Context, knowledgeID string) ([]KnowledgeFile, error)
	// UpdateFileSize stores the size of a re-indexed file.
	UpdateFileSize(ctx context.Context, id string, size int64) error
	// DeleteFile removes a knowledge file row. Returns ErrNotFound if not found.
	DeleteFile(ctx context.Context, id string) error
}

// KnowledgeRepo provides methods for knowledge operations.
// It implements the KnowledgeStore interface.
type KnowledgeRepo struct {
	db *sql.DB
}

var _ KnowledgeStore = (*KnowledgeRepo)(nil)

// NewKnowledgeRepo creates a new KnowledgeRepo.
func NewKnowledgeRepo(db *sql.DB) *KnowledgeRepo {
	return &KnowledgeRepo{db: db}
}

// Create inserts a knowledge base. An empty id is generated.
func (r *KnowledgeRepo) Create(ctx context.Context, k *Knowledge) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	k.CreateAt = now()
	k.UpdateAt = k.CreateAt

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO knowledge (id, title, folder_path, create_at, update_at) VALUES (?, ?, ?, ?, ?)",
		k.ID, k.Title, k.FolderPath, k.CreateAt, k.UpdateAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge: %w", err)
	}
	return nil
}

// Get gets a knowledge base by id. Returns ErrNotFound if not found.
func (r *KnowledgeRepo) Get(ctx context.Context, id string) (*Knowledge, error) {
	var k Knowledge
	err := r.db.QueryRowContext(ctx,
		"SELECT id, title, folder_path, create_at, update_at FROM knowledge WHERE id = ?", id,
	).Scan(&k.ID, &k.Title, &k.FolderPath, &k.CreateAt, &k.UpdateAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge: %w", err)
	}
	return &k, nil
}

// List returns every knowledge base, ordered by creation.
func (r *KnowledgeRepo) List(ctx context.Context) ([]Knowledge, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, title, folder_path, create_at, update_at FROM knowledge ORDER BY create_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := []Knowledge{}
	for rows.Next() {
		var k Knowledge
		if err := rows.Scan(&k.ID, &k.Title, &k.FolderPath, &k.CreateAt, &k.UpdateAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knowledge: %w", err)
	}
	return out, nil
}

// SetFolder records the folder a knowledge base was imported from.
func (r *KnowledgeRepo) SetFolder(ctx context.Context, id, folder string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE knowledge SET folder_path = ?, update_at = ? WHERE id = ?", folder, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update knowledge folder: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddFile inserts a knowledge file. An empty id is generated.
func (r *KnowledgeRepo) AddFile(ctx context.Context, f *KnowledgeFile) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	f.CreateAt = now()
	f.UpdateAt = f.CreateAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO knowledge_files (id, knowledge_id, name, path, format, size, create_at, update_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.KnowledgeID, f.Name, f.Path, f.Format, f.Size, f.CreateAt, f.UpdateAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert knowledge file: %w", err)
	}
	return nil
}

const fileColumns = "id, knowledge_id, name, path, format, size, create_at, update_at"

func scanFile(row rowScanner) (*KnowledgeFile, error) {
	var f KnowledgeFile
	if err := row.Scan(&f.ID, &f.KnowledgeID, &f.Name, &f.Path, &f.Format, &f.Size, &f.CreateAt, &f.UpdateAt); err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFile gets a knowledge file by id. Returns ErrNotFound if not found.
func (r *KnowledgeRepo) GetFile(ctx context.Context, id string) (*KnowledgeFile, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM knowledge_files WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge file: %w", err)
	}
	return f, nil
}

// ListFiles returns the files of a knowledge base ordered by path.
// Returns an empty slice if there are none.
func (r *KnowledgeRepo) ListFiles(ctx context.Context, knowledgeID string) ([]KnowledgeFile, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM knowledge_files WHERE knowledge_id = ? ORDER BY path", knowledgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge files: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := []KnowledgeFile{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge file: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knowledge files: %w", err)
	}
	return out, nil
}

// UpdateFileSize stores the size of a re-indexed file.
func (r *KnowledgeRepo) UpdateFileSize(ctx context.Context, id string, size int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE knowledge_files SET size = ?, update_at = ? WHERE id = ?", size, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update knowledge file size: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFile removes a knowledge file row. Returns ErrNotFound if not found.
func (r *KnowledgeRepo) DeleteFile(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM knowledge_files WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
