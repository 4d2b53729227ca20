// Package session coordinates one query's journey through the product:
// optimistic user-message persistence, circuit-breaker-guarded backend
// search, and assistant-message persistence, collapsed into a single
// QueryOutcome for the caller.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"nextrial-session/internal/backend"
	apperrors "nextrial-session/internal/common/errors"
	"nextrial-session/internal/common/metrics"
	"nextrial-session/internal/common/observability"
	"nextrial-session/internal/models"
)

// ==========================
// COLLABORATOR INTERFACES
// ==========================

// SearchBackend is the slice of the backend client the orchestrator needs.
type SearchBackend interface {
	Search(ctx context.Context, req backend.SearchRequest) (*models.SearchResult, error)
	ClearRemoteConversation(ctx context.Context) error
}

// ConversationStore is the slice of the message store the orchestrator needs.
type ConversationStore interface {
	SaveMessage(ctx context.Context, conversationID string, role models.MessageRole, content string, metadata *models.MessageMetadata) (*models.Message, error)
	ClearMessages(ctx context.Context, conversationID string) error
}

// SourceScope supplies the enabled data-source ids for outgoing searches.
type SourceScope interface {
	EnabledIDs() []string
}

// Logger is the subset of the shared logger used by this package.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
	WithError(err error) Logger
}

// ==========================
// ORCHESTRATOR
// ==========================

// Config holds the circuit-breaker policy. Zero values fall back to the
// package defaults.
type Config struct {
	FailureThreshold int
	FailureWindow    time.Duration
	Cooldown         time.Duration
}

// Orchestrator serializes query submission per conversation and owns the
// backend circuit breaker. One query per conversation may be in flight at a
// time; a second submission fails fast with QUERY_IN_PROGRESS rather than
// queueing.
type Orchestrator struct {
	backend SearchBackend
	store   ConversationStore
	sources SourceScope
	breaker *circuitBreaker
	logger  Logger
	obs     *observability.Observability
	now     func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	degraded bool
}

// New creates an Orchestrator. obs may be nil when OTel metrics are not
// wired, for example in tests.
func New(b SearchBackend, s ConversationStore, src SourceScope, cfg Config, log Logger, obs *observability.Observability) *Orchestrator {
	return &Orchestrator{
		backend:  b,
		store:    s,
		sources:  src,
		breaker:  newCircuitBreaker(cfg.FailureThreshold, cfg.FailureWindow, cfg.Cooldown),
		logger:   log.With(map[string]interface{}{"component": "session-orchestrator"}),
		obs:      obs,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// SetHealth records the latest backend health snapshot. A degraded snapshot
// does not block queries; it is surfaced on each outcome so callers can warn.
func (o *Orchestrator) SetHealth(h *backend.Health) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.degraded = h == nil || h.IsDegraded()
}

// Degraded reports the last known backend health.
func (o *Orchestrator) Degraded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.degraded
}

// CircuitState returns the breaker state name for health reporting.
func (o *Orchestrator) CircuitState() string {
	return o.breaker.currentState()
}

// SubmitQuery runs one query against the given conversation:
//
//  1. validate the query text and fail fast if the circuit is open or the
//     conversation already has a query in flight,
//  2. persist the user message before any network work so the user's words
//     survive a backend failure,
//  3. search the backend scoped to the enabled sources,
//  4. persist the assistant message with search metadata.
//
// A transport failure feeds the circuit breaker; upstream and validation
// failures do not. If the assistant write fails after a successful search,
// the answer is returned as search_succeeded_persistence_failed instead of
// being lost.
func (o *Orchestrator) SubmitQuery(ctx context.Context, conversationID, text string) (*QueryOutcome, error) {
	start := o.now()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, o.reject(apperrors.NewValidationError("query text must not be empty"))
	}
	if conversationID == "" {
		return nil, o.reject(apperrors.NewValidationError("conversation id must not be empty"))
	}

	if ok, retryAfter := o.breaker.allow(); !ok {
		o.logger.Warn("Circuit open, rejecting query", map[string]interface{}{
			"conversation_id": conversationID,
			"retry_after":     retryAfter.String(),
		})
		return nil, o.reject(apperrors.NewCircuitOpenError(retryAfter))
	}

	if !o.acquire(conversationID) {
		return nil, o.reject(apperrors.NewQueryInProgressError(conversationID))
	}
	defer o.release(conversationID)

	outcome, err := o.run(ctx, conversationID, text)
	if outcome != nil {
		o.record(ctx, string(outcome.Status), o.now().Sub(start))
	}
	return outcome, err
}

// run executes the submit pipeline once admission checks have passed.
func (o *Orchestrator) run(ctx context.Context, conversationID, text string) (*QueryOutcome, error) {
	log := o.logger.With(map[string]interface{}{"conversation_id": conversationID})

	userMsg, err := o.store.SaveMessage(ctx, conversationID, models.MessageRoleUser, text, nil)
	if err != nil {
		log.WithError(err).Error("Failed to persist user message", nil)
		outcome := &QueryOutcome{
			Status:         OutcomeSearchFailed,
			ConversationID: conversationID,
			Degraded:       o.Degraded(),
			Err:            apperrors.AsStandard(err),
		}
		return outcome, err
	}

	req := backend.NewSearchRequest(text, o.sources.EnabledIDs())
	result, err := o.backend.Search(ctx, req)
	if err != nil {
		if apperrors.IsTransport(err) {
			o.breaker.recordFailure()
		}
		log.WithError(err).Warn("Search failed", map[string]interface{}{
			"error_code": string(apperrors.CodeOf(err)),
		})
		outcome := &QueryOutcome{
			Status:         OutcomeSearchFailed,
			ConversationID: conversationID,
			UserMessage:    userMsg,
			Degraded:       o.Degraded(),
			Err:            apperrors.AsStandard(err),
		}
		return outcome, err
	}
	o.breaker.recordSuccess()

	assistantMsg, err := o.store.SaveMessage(ctx, conversationID, models.MessageRoleAssistant, result.Answer, models.NewSearchMetadata(result))
	if err != nil {
		// The search already cost a backend round trip; hand the answer
		// back even though it will be missing from history.
		log.WithError(err).Error("Search succeeded but assistant message was not persisted", nil)
		outcome := &QueryOutcome{
			Status:         OutcomeAnsweredNotPersisted,
			ConversationID: conversationID,
			UserMessage:    userMsg,
			Result:         result,
			Degraded:       o.Degraded(),
		}
		return outcome, nil
	}

	log.Info("Query answered", map[string]interface{}{
		"confidence":    string(result.Confidence),
		"total_results": result.TotalResults,
	})
	return &QueryOutcome{
		Status:           OutcomeAnswered,
		ConversationID:   conversationID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Result:           result,
		Degraded:         o.Degraded(),
	}, nil
}

// ClearConversation wipes local history and asks the backend to drop its
// remote conversational memory. The remote clear is best effort.
func (o *Orchestrator) ClearConversation(ctx context.Context, conversationID string) error {
	if err := o.store.ClearMessages(ctx, conversationID); err != nil {
		return err
	}
	if err := o.backend.ClearRemoteConversation(ctx); err != nil {
		o.logger.WithError(err).Warn("Remote conversation state not cleared", map[string]interface{}{
			"conversation_id": conversationID,
		})
	}
	return nil
}

// acquire marks a conversation as having a query in flight.
func (o *Orchestrator) acquire(conversationID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[conversationID]; busy {
		return false
	}
	o.inFlight[conversationID] = struct{}{}
	return true
}

func (o *Orchestrator) release(conversationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, conversationID)
}

// reject counts a pre-flight rejection and returns the error unchanged.
func (o *Orchestrator) reject(err *apperrors.StandardError) error {
	metrics.QueriesRejected.WithLabelValues(string(err.Code)).Inc()
	return err
}

// record emits the per-outcome counters and duration histogram.
func (o *Orchestrator) record(ctx context.Context, outcome string, elapsed time.Duration) {
	metrics.QueriesSubmitted.WithLabelValues(outcome).Inc()
	metrics.QueryDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if o.obs != nil {
		o.obs.RecordQueryProcessed(ctx, outcome)
		o.obs.RecordQueryDuration(ctx, elapsed, outcome)
	}
}
