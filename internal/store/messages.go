package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	apperrors "nextrial-session/internal/common/errors"
	"nextrial-session/internal/common/metrics"
	"nextrial-session/internal/models"
)

// SaveMessage appends a message and bumps the parent conversation's
// last_message_at in the same transaction, so the two are never observably
// inconsistent. The first user message also replaces a placeholder title
// with the derived one.
func (s *Store) SaveMessage(ctx context.Context, conversationID string, role models.MessageRole, content string, metadata *models.MessageMetadata) (*models.Message, error) {
	if !role.IsValid() {
		return nil, apperrors.NewValidationError("role must be user or assistant")
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("content must not be empty")
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       metadata,
		CreatedAt:      s.now().UTC(),
	}

	var metaRaw interface{}
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, apperrors.NewValidationError("metadata not serializable: " + err.Error())
		}
		metaRaw = data
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewPersistenceError("saveMessage", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, metaRaw, msg.CreatedAt,
	); err != nil {
		return nil, apperrors.NewPersistenceError("saveMessage", err)
	}

	var result sql.Result
	if role == models.MessageRoleUser {
		result, err = tx.ExecContext(ctx, `
			UPDATE conversations
			SET last_message_at = $1,
			    updated_at = $1,
			    title = CASE WHEN title = $2 THEN $3 ELSE title END
			WHERE id = $4`,
			msg.CreatedAt, models.DefaultConversationTitle, DeriveTitle(content), conversationID,
		)
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE conversations
			SET last_message_at = $1, updated_at = $1
			WHERE id = $2`,
			msg.CreatedAt, conversationID,
		)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("saveMessage", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, apperrors.NewNotFoundError("Conversation", conversationID)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewPersistenceError("saveMessage", err)
	}

	metrics.MessagesPersisted.WithLabelValues(string(role)).Inc()

	s.logger.Debug("message saved", map[string]interface{}{
		"conversationId": conversationID,
		"messageId":      msg.ID,
		"role":           string(role),
	})

	return msg, nil
}

// ListMessages returns a conversation's messages in ascending creation
// order. Persisted metadata is validated on read; an unrecognized shape
// fails the read rather than leaking an untyped payload.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("listMessages", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		var role string
		var metaRaw []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &metaRaw, &msg.CreatedAt); err != nil {
			return nil, apperrors.NewPersistenceError("listMessages", err)
		}
		msg.Role = models.MessageRole(role)

		meta, err := models.ParseMetadata(metaRaw)
		if err != nil {
			return nil, apperrors.NewPersistenceError("listMessages", err)
		}
		msg.Metadata = meta

		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("listMessages", err)
	}

	return messages, nil
}

// ClearMessages deletes all messages but keeps the conversation shell,
// resetting last_message_at back to the conversation's creation time.
func (s *Store) ClearMessages(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewPersistenceError("clearMessages", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID); err != nil {
		return apperrors.NewPersistenceError("clearMessages", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_at = created_at, updated_at = $1
		WHERE id = $2`,
		s.now().UTC(), conversationID,
	)
	if err != nil {
		return apperrors.NewPersistenceError("clearMessages", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.NewNotFoundError("Conversation", conversationID)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewPersistenceError("clearMessages", err)
	}

	s.logger.Info("messages cleared", map[string]interface{}{
		"conversationId": conversationID,
	})

	return nil
}
