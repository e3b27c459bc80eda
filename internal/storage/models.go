package storage

import (
	"fmt"
	"time"

	"klee-ai/internal/apperr"
)

// ErrNotFound is returned when a record is not found.
// It matches apperr.ErrNotFound under errors.Is.
var ErrNotFound = fmt.Errorf("record %w", apperr.ErrNotFound)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageStatus is the lifecycle state of a chat message.
type MessageStatus string

const (
	MessageSending MessageStatus = "sending"
	MessagePending MessageStatus = "pending"
	MessageSuccess MessageStatus = "success"
	MessageError   MessageStatus = "error"
)

// ChatMessage is one row of chat_message.
type ChatMessage struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Role           string        `json:"role"`
	Content        string        `json:"content"`
	Status         MessageStatus `json:"status"`
	ErrorCode      string        `json:"error_code,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	CreateAt       time.Time     `json:"create_at"`
	UpdateAt       time.Time     `json:"update_at"`
}

// TaskType names the job a background task runs.
type TaskType string

const (
	TaskParsingPDF    TaskType = "parsing_pdf"
	TaskParsingFolder TaskType = "parsing_folder"
)

// TaskStatus is the owner-driven state of a background task.
type TaskStatus string

const (
	TaskCreated    TaskStatus = "created"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskFailed     TaskStatus = "failed"
)

// Task is one row of background_task. Progress is in [0, 1].
type Task struct {
	ID       string     `json:"id"`
	Type     TaskType   `json:"type"`
	Status   TaskStatus `json:"status"`
	Payload  string     `json:"payload"`
	Progress float64    `json:"progress"`
	CreateAt time.Time  `json:"create_at"`
	UpdateAt time.Time  `json:"update_at"`
}

// Conversation holds per-conversation answer settings and attached sources.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LanguageID   string    `json:"language_id"`
	ProviderKind string    `json:"provider_kind"`
	Model        string    `json:"model"`
	KnowledgeIDs []string  `json:"knowledge_ids"`
	NoteIDs      []string  `json:"note_ids"`
	FileIDs      []string  `json:"file_ids"`
	CreateAt     time.Time `json:"create_at"`
	UpdateAt     time.Time `json:"update_at"`
}

// Knowledge is a folder registered as a knowledge base.
type Knowledge struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	FolderPath string    `json:"folder_path"`
	CreateAt   time.Time `json:"create_at"`
	UpdateAt   time.Time `json:"update_at"`
}

// KnowledgeFile is one file of a knowledge folder. Its id is also the
// source id of its index.
type KnowledgeFile struct {
	ID          string    `json:"id"`
	KnowledgeID string    `json:"knowledge_id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Format      string    `json:"format"`
	Size        int64     `json:"size"`
	CreateAt    time.Time `json:"create_at"`
	UpdateAt    time.Time `json:"update_at"`
}

// Note is a user-written note.
type Note struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	CreateAt time.Time `json:"create_at"`
	UpdateAt time.Time `json:"update_at"`
}
