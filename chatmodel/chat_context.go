package chatmodel

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
	"github.com/google/uuid"
)

// DefaultTenantID is used when the chat context is created without a tenant
const DefaultTenantID = "default"

// ChatContext identifies the conversation of a prompt:
// the tenant and chat IDs key the message history,
// the run ID is unique for each prompt run.
type ChatContext interface {
	GetTenantID() string
	GetChatID() string
	RunID() string
}

type chatContext struct {
	tenantID string
	chatID   string
	runID    string
}

func (c *chatContext) GetTenantID() string { return c.tenantID }
func (c *chatContext) GetChatID() string   { return c.chatID }
func (c *chatContext) RunID() string       { return c.runID }

// NewChatContext returns a chat context with a new run ID.
// The default tenant and a new chat ID are used for empty values.
func NewChatContext(tenantID, chatID string) ChatContext {
	return &chatContext{
		tenantID: values.StringsCoalesce(tenantID, DefaultTenantID),
		chatID:   values.StringsCoalesce(chatID, NewChatID()),
		runID:    uuid.NewString(),
	}
}

type contextKey struct{}

// WithChatContext returns a derived context with chatCtx
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, contextKey{}, chatCtx)
}

// GetChatContext returns the ChatContext of ctx, or nil
func GetChatContext(ctx context.Context) ChatContext {
	v, _ := ctx.Value(contextKey{}).(ChatContext)
	return v
}

// EnsureChatContext returns ctx if it has a ChatContext,
// otherwise a derived context with a new chat
func EnsureChatContext(ctx context.Context) context.Context {
	if GetChatContext(ctx) != nil {
		return ctx
	}
	return WithChatContext(ctx, NewChatContext("", ""))
}

// GetTenantAndChatID returns the tenant and chat IDs of ctx
func GetTenantAndChatID(ctx context.Context) (tenantID string, chatID string, err error) {
	chatCtx := GetChatContext(ctx)
	if chatCtx == nil {
		return "", "", errors.WithStack(ErrInvalidChatContext)
	}
	return chatCtx.GetTenantID(), chatCtx.GetChatID(), nil
}

// NewChatID returns a new time-ordered chat ID
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
