package session

import (
	apperrors "nextrial-session/internal/common/errors"
	"nextrial-session/internal/models"
)

// OutcomeStatus tells the caller how far a submitted query got.
type OutcomeStatus string

const (
	// OutcomeAnswered means the search succeeded and both the user and
	// assistant messages were persisted.
	OutcomeAnswered OutcomeStatus = "answered"

	// OutcomeAnsweredNotPersisted means the search succeeded but the
	// assistant message could not be written to the store. The answer is
	// still carried in the outcome so the caller can render it; only the
	// user message survives in history.
	OutcomeAnsweredNotPersisted OutcomeStatus = "search_succeeded_persistence_failed"

	// OutcomeSearchFailed means no answer was produced. Err carries the
	// classified failure.
	OutcomeSearchFailed OutcomeStatus = "search_failed"
)

// QueryOutcome is the result of SubmitQuery. Exactly one of Result or Err is
// set depending on Status; UserMessage is set whenever the optimistic user
// write succeeded, regardless of how the search went afterwards.
type QueryOutcome struct {
	Status           OutcomeStatus            `json:"status"`
	ConversationID   string                   `json:"conversationId"`
	UserMessage      *models.Message          `json:"userMessage,omitempty"`
	AssistantMessage *models.Message          `json:"assistantMessage,omitempty"`
	Result           *models.SearchResult     `json:"result,omitempty"`
	Degraded         bool                     `json:"degraded"`
	Err              *apperrors.StandardError `json:"error,omitempty"`
}

// Answered reports whether the query produced an answer, persisted or not.
func (o *QueryOutcome) Answered() bool {
	return o.Status == OutcomeAnswered || o.Status == OutcomeAnsweredNotPersisted
}
