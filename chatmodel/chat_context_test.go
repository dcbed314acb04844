package chatmodel_test

import (
	"context"
	"testing"

	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatContext(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		tenant, chat string
		expTenant    string
	}{
		{tenant: "t1", chat: "c1", expTenant: "t1"},
		{tenant: "", chat: "c1", expTenant: chatmodel.DefaultTenantID},
		{tenant: "t1", chat: "", expTenant: "t1"},
	}
	for _, tc := range tcs {
		c := chatmodel.NewChatContext(tc.tenant, tc.chat)
		assert.Equal(t, tc.expTenant, c.GetTenantID())
		if tc.chat != "" {
			assert.Equal(t, tc.chat, c.GetChatID())
		} else {
			assert.NotEmpty(t, c.GetChatID())
		}
		assert.NotEmpty(t, c.RunID())
	}

	// a chat continued by ID has a new run
	first := chatmodel.NewChatContext("", "c1")
	next := chatmodel.NewChatContext("", first.GetChatID())
	assert.Equal(t, first.GetChatID(), next.GetChatID())
	assert.NotEqual(t, first.RunID(), next.RunID())
}

func TestChatContext_Plumbing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Nil(t, chatmodel.GetChatContext(ctx))
	_, _, err := chatmodel.GetTenantAndChatID(ctx)
	assert.ErrorIs(t, err, chatmodel.ErrInvalidChatContext)
	assert.EqualError(t, err, "invalid chat context")

	c := chatmodel.NewChatContext("t1", "c1")
	ctx = chatmodel.WithChatContext(ctx, c)
	assert.Same(t, c, chatmodel.GetChatContext(ctx))
	assert.Equal(t, ctx, chatmodel.EnsureChatContext(ctx))

	tenant, chat, err := chatmodel.GetTenantAndChatID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", tenant)
	assert.Equal(t, "c1", chat)

	ensured := chatmodel.EnsureChatContext(context.Background())
	require.NotNil(t, chatmodel.GetChatContext(ensured))
	assert.Equal(t, chatmodel.DefaultTenantID, chatmodel.GetChatContext(ensured).GetTenantID())
}

func TestNewChatID(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := chatmodel.NewChatID()
		assert.False(t, seen[id], id)
		seen[id] = true
	}
}
