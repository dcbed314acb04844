package store

import (
	"context"
	"time"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "store")

// DefaultMaxMessages is the number of the most recent messages kept per chat
const DefaultMaxMessages = 50

// DefaultChatTitle is the title of a chat created on the first message
const DefaultChatTitle = "New Chat"

// MessageStore keeps the conversation history of the assistants.
// The tenant and chat IDs are taken from chatmodel.ChatContext of ctx,
// ErrInvalidChatContext is returned when ctx has none.
type MessageStore interface {
	// Messages returns the history of the chat, oldest first
	Messages(ctx context.Context) []llms.Message
	// Add appends the messages to the history of the chat
	Add(ctx context.Context, msgs ...llms.Message) error
	// Reset removes the chat
	Reset(ctx context.Context) error
	// UpdateChat creates or updates the chat with the title and metadata
	UpdateChat(ctx context.Context, title string, metadata map[string]any) error
	// ListChats returns the chat IDs of the tenant
	ListChats(ctx context.Context) ([]string, error)
	// GetChatInfo returns the chat with messages,
	// the chat of ctx is used for an empty id
	GetChatInfo(ctx context.Context, id string) (*ChatInfo, error)
}

// ChatInfo describes a chat
type ChatInfo struct {
	TenantID  string         `json:"tenant_id"`
	ChatID    string         `json:"chat_id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Messages  []llms.Message `json:"messages,omitempty"`
}

func newChatInfo(tenantID, chatID string) *ChatInfo {
	now := time.Now()
	return &ChatInfo{
		TenantID:  tenantID,
		ChatID:    chatID,
		Title:     DefaultChatTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  make(map[string]any),
	}
}

func (c *ChatInfo) update(title string, metadata map[string]any) {
	if title != "" {
		c.Title = title
	}
	if metadata != nil {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
	c.UpdatedAt = time.Now()
}
