package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadata_SearchPayload(t *testing.T) {
	raw := []byte(`{
		"kind": "search",
		"search": {
			"sources": [
				{"type": "trial", "id": "NCT04852887", "relevance": 0.91},
				{"type": "publication", "id": "PMID-34918273"}
			],
			"confidence": "high",
			"totalResults": 14,
			"processingTimeMs": 812
		}
	}`)

	meta, err := ParseMetadata(raw)
	require.NoError(t, err)
	require.NotNil(t, meta)

	assert.Equal(t, MetadataKindSearch, meta.Kind)
	require.NotNil(t, meta.Search)
	assert.Len(t, meta.Search.Sources, 2)
	assert.Equal(t, "NCT04852887", meta.Search.Sources[0].ID)
	assert.Equal(t, ConfidenceHigh, meta.Search.Confidence)
	assert.Equal(t, 14, meta.Search.TotalResults)
	assert.Equal(t, int64(812), meta.Search.ProcessingTimeMs)
}

func TestParseMetadata_NoneKind(t *testing.T) {
	meta, err := ParseMetadata([]byte(`{"kind": "none"}`))
	require.NoError(t, err)
	require.NotNil(t, meta)

	assert.Equal(t, MetadataKindNone, meta.Kind)
	assert.Nil(t, meta.Search)
}

func TestParseMetadata_Empty(t *testing.T) {
	meta, err := ParseMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestParseMetadata_RejectsUnrecognizedShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown kind", `{"kind": "attachment"}`},
		{"missing kind", `{"search": {"sources": [], "confidence": "low", "totalResults": 0, "processingTimeMs": 0}}`},
		{"extra top-level field", `{"kind": "none", "blob": {"anything": true}}`},
		{"bad confidence", `{"kind": "search", "search": {"sources": [], "confidence": "certain", "totalResults": 0, "processingTimeMs": 0}}`},
		{"search kind without payload", `{"kind": "search"}`},
		{"negative total", `{"kind": "search", "search": {"sources": [], "confidence": "low", "totalResults": -1, "processingTimeMs": 0}}`},
		{"not an object", `["kind", "none"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ParseMetadata([]byte(tt.raw))
			assert.Error(t, err)
			assert.Nil(t, meta)
		})
	}
}

func TestNewSearchMetadata_RoundTrips(t *testing.T) {
	result := &SearchResult{
		Answer:           "Two phase-3 trials are recruiting near Boston.",
		Sources:          []Citation{{Type: "trial", ID: "NCT05012345", Relevance: 0.87}},
		Confidence:       ConfidenceMedium,
		TotalResults:     2,
		ProcessingTimeMs: 640,
	}

	meta := NewSearchMetadata(result)
	raw, err := json.Marshal(meta)
	require.NoError(t, err)

	parsed, err := ParseMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, meta, parsed)
}

func TestMessageRole_IsValid(t *testing.T) {
	assert.True(t, MessageRoleUser.IsValid())
	assert.True(t, MessageRoleAssistant.IsValid())
	assert.False(t, MessageRole("system").IsValid())
}
