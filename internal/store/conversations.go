package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	apperrors "nextrial-session/internal/common/errors"
	"nextrial-session/internal/models"
)

// CreateConversation creates a conversation for ownerID. An empty title
// falls back to the placeholder; it is replaced once the first user message
// arrives.
func (s *Store) CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.NewValidationError("ownerId must not be empty")
	}
	if strings.TrimSpace(title) == "" {
		title = models.DefaultConversationTitle
	}

	now := s.now().UTC()
	conv := &models.Conversation{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Title:         title,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, owner_id, title, created_at, updated_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		conv.ID, conv.OwnerID, conv.Title, conv.CreatedAt, conv.UpdatedAt, conv.LastMessageAt,
	)
	if err != nil {
		return nil, apperrors.NewPersistenceError("createConversation", err)
	}

	s.logger.Info("conversation created", map[string]interface{}{
		"conversationId": conv.ID,
		"ownerId":        ownerID,
	})

	return conv, nil
}

// GetConversation fetches one conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at, last_message_at
		FROM conversations
		WHERE id = $1`, id).Scan(
		&conv.ID, &conv.OwnerID, &conv.Title,
		&conv.CreatedAt, &conv.UpdatedAt, &conv.LastMessageAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("Conversation", id)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("getConversation", err)
	}
	return &conv, nil
}

// ListConversations returns the owner's conversations, most recently active
// first, with a stable id tie-break for equal timestamps.
func (s *Store) ListConversations(ctx context.Context, ownerID string) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at, last_message_at
		FROM conversations
		WHERE owner_id = $1
		ORDER BY last_message_at DESC, id ASC`, ownerID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("listConversations", err)
	}
	defer rows.Close()

	var conversations []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(
			&conv.ID, &conv.OwnerID, &conv.Title,
			&conv.CreatedAt, &conv.UpdatedAt, &conv.LastMessageAt,
		); err != nil {
			return nil, apperrors.NewPersistenceError("listConversations", err)
		}
		conversations = append(conversations, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("listConversations", err)
	}

	return conversations, nil
}

// RenameConversation applies an explicit title edit.
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	if strings.TrimSpace(title) == "" {
		return apperrors.NewValidationError("title must not be empty")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = $1, updated_at = $2 WHERE id = $3`,
		title, s.now().UTC(), id,
	)
	if err != nil {
		return apperrors.NewPersistenceError("renameConversation", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.NewNotFoundError("Conversation", id)
	}
	return nil
}

// DeleteConversation removes a conversation and cascades to all its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewPersistenceError("deleteConversation", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
		return apperrors.NewPersistenceError("deleteConversation", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return apperrors.NewPersistenceError("deleteConversation", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.NewNotFoundError("Conversation", id)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewPersistenceError("deleteConversation", err)
	}

	s.logger.Info("conversation deleted", map[string]interface{}{
		"conversationId": id,
	})

	return nil
}
