// internal/backend/models.go
package backend

import "nextrial-session/internal/models"

// Search parameter defaults per the backend contract.
const (
	DefaultNResults            = 10
	DefaultSimilarityThreshold = 0.3
)

// Health status values reported by GET /health.
const (
	HealthStatusHealthy  = "healthy"
	HealthStatusDegraded = "degraded"
)

// Health is the backend's self-reported health state.
type Health struct {
	Status        string                 `json:"status"`
	PipelineReady bool                   `json:"pipelineReady"`
	Stats         map[string]interface{} `json:"stats,omitempty"`
}

// IsDegraded reports whether the backend is reachable but impaired.
func (h *Health) IsDegraded() bool {
	return h.Status != HealthStatusHealthy || !h.PipelineReady
}

// SearchRequest carries one search call's parameters.
type SearchRequest struct {
	Query               string
	NResults            int
	SimilarityThreshold float64
	PatientID           string
	// Sources is the enabled data-source scope, in registration order.
	// Empty means the backend's default corpus.
	Sources []string
}

// NewSearchRequest builds a request with contract defaults applied.
func NewSearchRequest(query string, sources []string) SearchRequest {
	return SearchRequest{
		Query:               query,
		NResults:            DefaultNResults,
		SimilarityThreshold: DefaultSimilarityThreshold,
		Sources:             sources,
	}
}

// EmbedResponse is the result of POST /api/embed.
type EmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Count      int         `json:"count"`
}

// BatchMatchResponse acknowledges an async batch-matching job kickoff.
type BatchMatchResponse struct {
	Status       string `json:"status"`
	JobID        string `json:"job_id"`
	PatientCount int    `json:"patient_count"`
	Message      string `json:"message"`
}

// --- wire payloads ---

type searchRequestPayload struct {
	Query               string   `json:"query"`
	NResults            int      `json:"n_results"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	PatientID           string   `json:"patient_id,omitempty"`
	Sources             []string `json:"sources,omitempty"`
}

type searchResponsePayload struct {
	Answer         string                 `json:"answer"`
	Sources        []citationPayload      `json:"sources"`
	Confidence     string                 `json:"confidence"`
	TotalResults   int                    `json:"total_results"`
	TrialLocations []trialLocationPayload `json:"trial_locations"`
	ProcessingTime int64                  `json:"processing_time"`
}

type citationPayload struct {
	Type      string  `json:"type"`
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance"`
}

type trialLocationPayload struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	DistanceKm      *float64 `json:"distance_km,omitempty"`
	City            string   `json:"city"`
	State           string   `json:"state"`
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
}

func (p *searchResponsePayload) toSearchResult() *models.SearchResult {
	sources := make([]models.Citation, len(p.Sources))
	for i, s := range p.Sources {
		sources[i] = models.Citation{Type: s.Type, ID: s.ID, Relevance: s.Relevance}
	}

	locations := make([]models.TrialLocation, len(p.TrialLocations))
	for i, l := range p.TrialLocations {
		locations[i] = models.TrialLocation{
			ID:              l.ID,
			Title:           l.Title,
			DistanceKm:      l.DistanceKm,
			City:            l.City,
			State:           l.State,
			SimilarityScore: l.SimilarityScore,
		}
	}

	confidence := models.Confidence(p.Confidence)
	if !confidence.IsValid() {
		confidence = models.ConfidenceLow
	}

	return &models.SearchResult{
		Answer:           p.Answer,
		Sources:          sources,
		Confidence:       confidence,
		TotalResults:     p.TotalResults,
		TrialLocations:   locations,
		ProcessingTimeMs: p.ProcessingTime,
	}
}

type errorResponsePayload struct {
	Detail  string `json:"detail"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (p *errorResponsePayload) text() string {
	switch {
	case p.Detail != "":
		return p.Detail
	case p.Error != "":
		return p.Error
	default:
		return p.Message
	}
}
