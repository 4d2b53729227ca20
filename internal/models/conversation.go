package models

import "time"

// DefaultConversationTitle is the placeholder used until a title is derived
// from the first user message or set by an explicit edit.
const DefaultConversationTitle = "New conversation"

// Conversation represents one persisted user conversation.
type Conversation struct {
	ID            string    `json:"id" db:"id"`
	OwnerID       string    `json:"ownerId" db:"owner_id"`
	Title         string    `json:"title" db:"title"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
	LastMessageAt time.Time `json:"lastMessageAt" db:"last_message_at"`
}

// HasMessages reports whether any message has been appended yet.
// LastMessageAt equals CreatedAt until the first message arrives.
func (c *Conversation) HasMessages() bool {
	return c.LastMessageAt.After(c.CreatedAt)
}
