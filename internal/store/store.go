package store

import (
	"context"
	"time"
)

// Store defines the persistence interface for conversations.
type Store interface {
	ListConversations(ctx context.Context) ([]ConversationSummary, error)
	CreateConversation(ctx context.Context, id, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	SetTitle(ctx context.Context, id, title string) error

	AddMessage(ctx context.Context, conversationID string, msg Message) error
	MessageCount(ctx context.Context, conversationID string) (int, error)

	// Schema lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ConversationSummary is the listing view of a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// Conversation is a full conversation with its messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Message is one turn of a conversation. Assistant turns carry the full
// deliberation as a JSON payload alongside the rendered content.
type Message struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
