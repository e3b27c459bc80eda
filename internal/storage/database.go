package storage

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// dsnParams turn on foreign keys for every pooled connection, wait on a
// locked database instead of failing, and take the write lock when a
// transaction begins.
const dsnParams = "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + dsnParams
	} else {
		dsn += "?" + dsnParams
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			language_id TEXT NOT NULL DEFAULT 'auto',
			provider_kind TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			knowledge_ids TEXT NOT NULL DEFAULT '[]',
			note_ids TEXT NOT NULL DEFAULT '[]',
			file_ids TEXT NOT NULL DEFAULT '[]',
			create_at DATETIME NOT NULL,
			update_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chat_message (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error_code TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			create_at DATETIME NOT NULL,
			update_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_message_conversation
			ON chat_message (conversation_id, create_at);`,
		`CREATE TABLE IF NOT EXISTS background_task (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			progress REAL NOT NULL DEFAULT 0,
			create_at DATETIME NOT NULL,
			update_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS knowledge (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			folder_path TEXT NOT NULL DEFAULT '',
			create_at DATETIME NOT NULL,
			update_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS knowledge_files (
			id TEXT PRIMARY KEY,
			knowledge_id TEXT NOT NULL,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			format TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			create_at DATETIME NOT NULL,
			update_at DATETIME NOT NULL,
			FOREIGN KEY (knowledge_id) REFERENCES knowledge(id) ON DELETE CASCADE,
			UNIQUE (knowledge_id, path)
		);`,
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			create_at DATETIME NOT NULL,
			update_at DATETIME NOT NULL
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
