package models

// Confidence labels how well the backend believes the answer is supported.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// IsValid reports whether the confidence label is one of the known values.
func (c Confidence) IsValid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

// Citation is one ordered source reference backing an answer.
type Citation struct {
	Type      string  `json:"type"`
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance,omitempty"`
}

// TrialLocation is one matched trial site returned with a search answer.
type TrialLocation struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	DistanceKm      *float64 `json:"distanceKm,omitempty"`
	City            string   `json:"city"`
	State           string   `json:"state"`
	SimilarityScore *float64 `json:"similarityScore,omitempty"`
}

// SearchResult is the transient outcome of one backend search. It is not
// persisted directly; its relevant fields become assistant-message metadata.
type SearchResult struct {
	Answer           string          `json:"answer"`
	Sources          []Citation      `json:"sources"`
	Confidence       Confidence      `json:"confidence"`
	TotalResults     int             `json:"totalResults"`
	TrialLocations   []TrialLocation `json:"trialLocations"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}
