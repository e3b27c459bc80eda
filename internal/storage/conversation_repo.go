package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_conversation_store.go -package=mocks klee-ai/internal/storage ConversationStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ConversationStore defines the interface for conversation storage operations.
type ConversationStore interface {
	// Create inserts a conversation. An empty id is generated.
	Create(ctx context.Context, c *Conversation) error
	// Get gets a conversation by id. Returns ErrNotFound if not found.
	Get(ctx context.Context, id string) (*Conversation, error)
	// SetTitle stores a generated title. Returns ErrNotFound if not found.
	SetTitle(ctx context.Context, id, title string) error
}

// ConversationRepo provides methods for conversation operations.
// It implements the ConversationStore interface.
type ConversationRepo struct {
	db *sql.DB
}

var _ ConversationStore = (*ConversationRepo)(nil)

// NewConversationRepo creates a new ConversationRepo.
func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create inserts a conversation. An empty id is generated and an empty
// language defaults to "auto".
func (r *ConversationRepo) Create(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.LanguageID == "" {
		c.LanguageID = "auto"
	}
	c.CreateAt = now()
	c.UpdateAt = c.CreateAt

	knowledgeIDs, err := encodeIDs(c.KnowledgeIDs)
	if err != nil {
		return err
	}
	noteIDs, err := encodeIDs(c.NoteIDs)
	if err != nil {
		return err
	}
	fileIDs, err := encodeIDs(c.FileIDs)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, language_id, provider_kind, model, knowledge_ids, note_ids, file_ids, create_at, update_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.LanguageID, c.ProviderKind, c.Model, knowledgeIDs, noteIDs, fileIDs, c.CreateAt, c.UpdateAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// Get gets a conversation by id. Returns ErrNotFound if not found.
func (r *ConversationRepo) Get(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	var knowledgeIDs, noteIDs, fileIDs string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, language_id, provider_kind, model, knowledge_ids, note_ids, file_ids, create_at, update_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.LanguageID, &c.ProviderKind, &c.Model, &knowledgeIDs, &noteIDs, &fileIDs, &c.CreateAt, &c.UpdateAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	if c.KnowledgeIDs, err = decodeIDs(knowledgeIDs); err != nil {
		return nil, err
	}
	if c.NoteIDs, err = decodeIDs(noteIDs); err != nil {
		return nil, err
	}
	if c.FileIDs, err = decodeIDs(fileIDs); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetTitle stores a generated title. Returns ErrNotFound if not found.
func (r *ConversationRepo) SetTitle(ctx context.Context, id, title string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE conversations SET title = ?, update_at = ? WHERE id = ?", title, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to encode ids: %w", err)
	}
	return string(b), nil
}

func decodeIDs(raw string) ([]string, error) {
	ids := []string{}
	if raw == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode ids %q: %w", raw, err)
	}
	return ids, nil
}
