package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// MessageRole identifies the author of a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// IsValid reports whether the role is one of the known values.
func (r MessageRole) IsValid() bool {
	return r == MessageRoleUser || r == MessageRoleAssistant
}

// Message represents one persisted conversation message. Messages are never
// mutated after creation.
type Message struct {
	ID             string           `json:"id" db:"id"`
	ConversationID string           `json:"conversationId" db:"conversation_id"`
	Role           MessageRole      `json:"role" db:"role"`
	Content        string           `json:"content" db:"content"`
	Metadata       *MessageMetadata `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
}

// MetadataKind tags the closed set of metadata payload shapes.
type MetadataKind string

const (
	MetadataKindNone   MetadataKind = "none"
	MetadataKindSearch MetadataKind = "search"
)

// MessageMetadata is a closed tagged variant: either no payload or the
// search-result payload of an assistant reply. Unrecognized shapes are
// rejected on read.
type MessageMetadata struct {
	Kind   MetadataKind    `json:"kind"`
	Search *SearchMetadata `json:"search,omitempty"`
}

// SearchMetadata is the persisted slice of a SearchResult attached to an
// assistant message. The answer text lives in the message content.
type SearchMetadata struct {
	Sources          []Citation `json:"sources"`
	Confidence       Confidence `json:"confidence"`
	TotalResults     int        `json:"totalResults"`
	ProcessingTimeMs int64      `json:"processingTimeMs"`
}

// NewSearchMetadata builds the metadata envelope for a successful search.
func NewSearchMetadata(result *SearchResult) *MessageMetadata {
	return &MessageMetadata{
		Kind: MetadataKindSearch,
		Search: &SearchMetadata{
			Sources:          result.Sources,
			Confidence:       result.Confidence,
			TotalResults:     result.TotalResults,
			ProcessingTimeMs: result.ProcessingTimeMs,
		},
	}
}

// metadataSchema constrains the metadata envelope to the closed variant set.
const metadataSchema = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["kind"],
	"properties": {
		"kind": {"type": "string", "enum": ["none", "search"]},
		"search": {
			"type": "object",
			"additionalProperties": false,
			"required": ["sources", "confidence", "totalResults", "processingTimeMs"],
			"properties": {
				"sources": {
					"type": "array",
					"items": {
						"type": "object",
						"additionalProperties": false,
						"required": ["type", "id"],
						"properties": {
							"type": {"type": "string"},
							"id": {"type": "string"},
							"relevance": {"type": "number"}
						}
					}
				},
				"confidence": {"type": "string", "enum": ["high", "medium", "low"]},
				"totalResults": {"type": "integer", "minimum": 0},
				"processingTimeMs": {"type": "integer", "minimum": 0}
			}
		}
	}
}`

var metadataSchemaLoader = gojsonschema.NewStringLoader(metadataSchema)

// ParseMetadata validates and decodes a persisted metadata document.
// Empty input means no metadata. Shapes outside the tagged variant set are
// rejected rather than passed through untyped.
func ParseMetadata(raw []byte) (*MessageMetadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	result, err := gojsonschema.Validate(metadataSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("metadata validation: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("unrecognized metadata shape: %s", result.Errors()[0])
	}

	var meta MessageMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("metadata decode: %w", err)
	}

	if meta.Kind == MetadataKindSearch && meta.Search == nil {
		return nil, fmt.Errorf("unrecognized metadata shape: kind %q without payload", meta.Kind)
	}

	return &meta, nil
}
