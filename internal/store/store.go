// Package store persists conversations and their messages in PostgreSQL.
//
// Two tables back it: conversations (id, owner_id, title, created_at,
// updated_at, last_message_at) and messages (id, conversation_id, role,
// content, metadata, created_at). A conversation's last_message_at always
// equals the latest message's created_at, or the conversation's own
// created_at while it has no messages; saveMessage maintains that in one
// transaction with the message insert.
package store

import (
	"database/sql"
	"time"
)

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Store struct {
	db     *sql.DB
	logger Logger
	now    func() time.Time
}

func New(db *sql.DB, log Logger) *Store {
	return &Store{
		db: db,
		logger: log.With(map[string]interface{}{
			"component": "conversation-store",
		}),
		now: time.Now,
	}
}
