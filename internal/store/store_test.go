package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nextrial-session/internal/common/errors"
	"nextrial-session/internal/common/logger"
	"nextrial-session/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type storeLoggerAdapter struct {
	logger.Logger
}

func (a storeLoggerAdapter) With(fields map[string]interface{}) Logger {
	return storeLoggerAdapter{a.Logger.With(fields)}
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	s := New(db, storeLoggerAdapter{logger.NewTestLogger(t)})
	return s, mock, func() { db.Close() }
}

var fixedNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func withFixedClock(s *Store) {
	s.now = func() time.Time { return fixedNow }
}

func conversationRows(convs ...*models.Conversation) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "owner_id", "title", "created_at", "updated_at", "last_message_at"})
	for _, c := range convs {
		rows.AddRow(c.ID, c.OwnerID, c.Title, c.CreatedAt, c.UpdatedAt, c.LastMessageAt)
	}
	return rows
}

// ==========================
// Conversations
// ==========================

func TestStore_CreateConversation(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()
	withFixedClock(s)

	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(sqlmock.AnyArg(), "user-1", models.DefaultConversationTitle, fixedNow, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	conv, err := s.CreateConversation(context.Background(), "user-1", "")
	require.NoError(t, err)

	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "user-1", conv.OwnerID)
	assert.Equal(t, models.DefaultConversationTitle, conv.Title)
	assert.Equal(t, conv.CreatedAt, conv.LastMessageAt, "lastMessageAt equals createdAt while empty")
	assert.False(t, conv.HasMessages())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateConversation_EmptyOwnerRejected(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()

	_, err := s.CreateConversation(context.Background(), "  ", "title")
	assert.True(t, apperrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListConversations_OrderedByActivity(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()

	newer := &models.Conversation{ID: "conv-b", OwnerID: "user-1", Title: "b", CreatedAt: fixedNow, UpdatedAt: fixedNow, LastMessageAt: fixedNow.Add(time.Hour)}
	older := &models.Conversation{ID: "conv-a", OwnerID: "user-1", Title: "a", CreatedAt: fixedNow, UpdatedAt: fixedNow, LastMessageAt: fixedNow}

	mock.ExpectQuery("SELECT id, owner_id, title, created_at, updated_at, last_message_at\\s+FROM conversations\\s+WHERE owner_id = \\$1\\s+ORDER BY last_message_at DESC, id ASC").
		WithArgs("user-1").
		WillReturnRows(conversationRows(newer, older))

	conversations, err := s.ListConversations(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, "conv-b", conversations[0].ID)
	assert.Equal(t, "conv-a", conversations[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetConversation_NotFound(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()

	mock.ExpectQuery("SELECT id, owner_id, title").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	conv, err := s.GetConversation(context.Background(), "missing")
	assert.Nil(t, conv)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
}

func TestStore_RenameConversation(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()
	withFixedClock(s)

	mock.ExpectExec("UPDATE conversations SET title").
		WithArgs("My trial search", fixedNow, "conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.RenameConversation(context.Background(), "conv-1", "My trial search"))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.True(t, apperrors.IsValidation(s.RenameConversation(context.Background(), "conv-1", " ")))
}

func TestStore_DeleteConversation_CascadesToMessages(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM messages WHERE conversation_id").
		WithArgs("conv-1").
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec("DELETE FROM conversations WHERE id").
		WithArgs("conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteConversation(context.Background(), "conv-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteConversation_NotFoundRollsBack(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM messages WHERE conversation_id").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM conversations WHERE id").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.DeleteConversation(context.Background(), "missing")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Messages
// ==========================

func TestStore_SaveMessage_UserMessageDerivesTitle(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()
	withFixedClock(s)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "conv-1", "user", "trials for stage 2 breast cancer near Boston", nil, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE conversations").
		WithArgs(fixedNow, models.DefaultConversationTitle, "trials for stage 2 breast cancer near Boston", "conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := s.SaveMessage(context.Background(), "conv-1", models.MessageRoleUser, "trials for stage 2 breast cancer near Boston", nil)
	require.NoError(t, err)

	assert.Equal(t, models.MessageRoleUser, msg.Role)
	assert.Equal(t, fixedNow, msg.CreatedAt)
	assert.Nil(t, msg.Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveMessage_AssistantCarriesMetadata(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()
	withFixedClock(s)

	meta := models.NewSearchMetadata(&models.SearchResult{
		Sources:          []models.Citation{{Type: "trial", ID: "NCT04852887", Relevance: 0.93}},
		Confidence:       models.ConfidenceHigh,
		TotalResults:     3,
		ProcessingTimeMs: 812,
	})
	metaJSON, err := json.Marshal(meta)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "conv-1", "assistant", "Here are your matches.", metaJSON, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE conversations").
		WithArgs(fixedNow, "conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := s.SaveMessage(context.Background(), "conv-1", models.MessageRoleAssistant, "Here are your matches.", meta)
	require.NoError(t, err)
	assert.Equal(t, meta, msg.Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveMessage_ValidationBeforeAnyWrite(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()

	_, err := s.SaveMessage(context.Background(), "conv-1", models.MessageRole("system"), "x", nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = s.SaveMessage(context.Background(), "conv-1", models.MessageRoleUser, "  ", nil)
	assert.True(t, apperrors.IsValidation(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveMessage_UnknownConversation(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()
	withFixedClock(s)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE conversations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.SaveMessage(context.Background(), "missing", models.MessageRoleUser, "hello", nil)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveMessage_InsertFailureIsPersistenceError(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()
	withFixedClock(s)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").
		WillReturnError(fmt.Errorf("pq: connection reset by peer"))
	mock.ExpectRollback()

	_, err := s.SaveMessage(context.Background(), "conv-1", models.MessageRoleUser, "hello", nil)
	assert.True(t, apperrors.IsPersistence(err))
	assert.True(t, apperrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListMessages_AscendingWithParsedMetadata(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()

	meta := models.NewSearchMetadata(&models.SearchResult{
		Sources:          []models.Citation{{Type: "trial", ID: "NCT04852887"}},
		Confidence:       models.ConfidenceMedium,
		TotalResults:     1,
		ProcessingTimeMs: 400,
	})
	metaJSON, err := json.Marshal(meta)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "metadata", "created_at"}).
		AddRow("msg-1", "conv-1", "user", "my query", nil, fixedNow).
		AddRow("msg-2", "conv-1", "assistant", "the answer", metaJSON, fixedNow.Add(2*time.Second))

	mock.ExpectQuery("SELECT id, conversation_id, role, content, metadata, created_at\\s+FROM messages\\s+WHERE conversation_id = \\$1\\s+ORDER BY created_at ASC, id ASC").
		WithArgs("conv-1").
		WillReturnRows(rows)

	messages, err := s.ListMessages(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	// Non-decreasing timestamps with the user message first.
	assert.Equal(t, models.MessageRoleUser, messages[0].Role)
	assert.Equal(t, models.MessageRoleAssistant, messages[1].Role)
	assert.False(t, messages[1].CreatedAt.Before(messages[0].CreatedAt))

	assert.Nil(t, messages[0].Metadata)
	require.NotNil(t, messages[1].Metadata)
	assert.Equal(t, models.MetadataKindSearch, messages[1].Metadata.Kind)
	assert.Equal(t, models.ConfidenceMedium, messages[1].Metadata.Search.Confidence)
}

func TestStore_ListMessages_RejectsCorruptMetadata(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()

	rows := sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "metadata", "created_at"}).
		AddRow("msg-1", "conv-1", "assistant", "answer", []byte(`{"kind": "attachment"}`), fixedNow)

	mock.ExpectQuery("SELECT id, conversation_id, role, content, metadata, created_at").
		WithArgs("conv-1").
		WillReturnRows(rows)

	messages, err := s.ListMessages(context.Background(), "conv-1")
	assert.Nil(t, messages)
	assert.True(t, apperrors.IsPersistence(err))
}

func TestStore_ClearMessages_KeepsShellAndResetsActivity(t *testing.T) {
	s, mock, closeDB := newTestStore(t)
	defer closeDB()
	withFixedClock(s)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM messages WHERE conversation_id").
		WithArgs("conv-1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("UPDATE conversations\\s+SET last_message_at = created_at").
		WithArgs(fixedNow, "conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.ClearMessages(context.Background(), "conv-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
