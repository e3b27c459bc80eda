package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_message_store.go -package=mocks klee-ai/internal/storage MessageStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageStore defines the interface for chat message storage operations.
type MessageStore interface {
	// CreatePair inserts the user message and the assistant placeholder in one transaction.
	// Empty ids are generated.
	CreatePair(ctx context.Context, user, bot *ChatMessage) error
	// Get gets a message by id. Returns ErrNotFound if not found.
	Get(ctx context.Context, id string) (*ChatMessage, error)
	// ListByConversation returns the messages of a conversation, oldest first.
	ListByConversation(ctx context.Context, conversationID string) ([]ChatMessage, error)
	// Checkpoint stores partial assistant content and marks the message pending.
	Checkpoint(ctx context.Context, id, content string) error
	// Finalize re-reads the message in a fresh transaction and writes its terminal state.
	Finalize(ctx context.Context, id, content string, status MessageStatus, errorCode, errorMessage string) (*ChatMessage, error)
}

// MessageRepo provides methods for chat message operations.
// It implements the MessageStore interface.
type MessageRepo struct {
	db *sql.DB
}

var _ MessageStore = (*MessageRepo)(nil)

// NewMessageRepo creates a new MessageRepo.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = "id, conversation_id, role, content, status, error_code, error_message, create_at, update_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*ChatMessage, error) {
	var m ChatMessage
	err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Status,
		&m.ErrorCode, &m.ErrorMessage, &m.CreateAt, &m.UpdateAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreatePair inserts the user message and the assistant placeholder in one transaction.
func (r *MessageRepo) CreatePair(ctx context.Context, user, bot *ChatMessage) error {
	ts := now()
	for i, m := range []*ChatMessage{user, bot} {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		// The assistant row sorts after the user row it answers.
		m.CreateAt = ts.Add(time.Duration(i) * time.Microsecond)
		m.UpdateAt = m.CreateAt
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range []*ChatMessage{user, bot} {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO chat_message ("+messageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			m.ID, m.ConversationID, m.Role, m.Content, m.Status, m.ErrorCode, m.ErrorMessage, m.CreateAt, m.UpdateAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s message: %w", m.Role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message pair: %w", err)
	}
	return nil
}

// Get gets a message by id. Returns ErrNotFound if not found.
func (r *MessageRepo) Get(ctx context.Context, id string) (*ChatMessage, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM chat_message WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return m, nil
}

// ListByConversation returns the messages of a conversation, oldest first.
// Returns an empty slice if there are none.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM chat_message WHERE conversation_id = ? ORDER BY create_at, id",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := []ChatMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return out, nil
}

// Checkpoint stores partial assistant content and marks the message pending.
func (r *MessageRepo) Checkpoint(ctx context.Context, id, content string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE chat_message SET content = ?, status = ?, update_at = ? WHERE id = ?",
		content, MessagePending, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to checkpoint message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Finalize re-reads the message in a fresh transaction and writes its terminal state.
func (r *MessageRepo) Finalize(ctx context.Context, id, content string, status MessageStatus, errorCode, errorMessage string) (*ChatMessage, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	m, err := scanMessage(tx.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM chat_message WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}

	m.Content = content
	m.Status = status
	m.ErrorCode = errorCode
	m.ErrorMessage = errorMessage
	m.UpdateAt = now()

	_, err = tx.ExecContext(ctx,
		"UPDATE chat_message SET content = ?, status = ?, error_code = ?, error_message = ?, update_at = ? WHERE id = ?",
		m.Content, m.Status, m.ErrorCode, m.ErrorMessage, m.UpdateAt, m.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return m, nil
}
