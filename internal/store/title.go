package store

import (
	"strings"

	"nextrial-session/internal/models"
)

// titleMaxRunes is the truncation point for derived conversation titles.
const titleMaxRunes = 50

// DeriveTitle derives a conversation title from the first user message:
// its first line, truncated to 50 characters plus an ellipsis when longer.
func DeriveTitle(content string) string {
	firstLine := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		firstLine = content[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)

	if firstLine == "" {
		return models.DefaultConversationTitle
	}

	runes := []rune(firstLine)
	if len(runes) <= titleMaxRunes {
		return firstLine
	}
	return string(runes[:titleMaxRunes]) + "…"
}
