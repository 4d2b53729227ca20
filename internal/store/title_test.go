package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"nextrial-session/internal/models"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "short query unchanged",
			content: "short query",
			want:    "short query",
		},
		{
			name:    "long first message truncated with ellipsis",
			content: "Hello world, this is a first message that is definitely longer than fifty characters",
			want:    "Hello world, this is a first message that is defin…",
		},
		{
			name:    "exactly fifty characters unchanged",
			content: strings.Repeat("a", 50),
			want:    strings.Repeat("a", 50),
		},
		{
			name:    "fifty-one characters truncated",
			content: strings.Repeat("a", 51),
			want:    strings.Repeat("a", 50) + "…",
		},
		{
			name:    "only first line used",
			content: "trials near Boston\nand some follow-up detail on a second line",
			want:    "trials near Boston",
		},
		{
			name:    "multibyte runes counted as characters",
			content: strings.Repeat("ü", 60),
			want:    strings.Repeat("ü", 50) + "…",
		},
		{
			name:    "surrounding whitespace trimmed",
			content: "  what trials am I eligible for?  ",
			want:    "what trials am I eligible for?",
		},
		{
			name:    "blank content falls back to placeholder",
			content: "   \nrest of message",
			want:    models.DefaultConversationTitle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.content))
		})
	}
}
