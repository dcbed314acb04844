package store

import (
	"context"
	"slices"
	"sync"

	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/xlog"
)

type memoryChat struct {
	info     ChatInfo
	messages []llms.Message
}

type inMemory struct {
	mu    sync.RWMutex
	chats map[string]map[string]*memoryChat
}

// NewMemoryStore returns a MessageStore that keeps the history in memory
func NewMemoryStore() MessageStore {
	return &inMemory{
		chats: make(map[string]map[string]*memoryChat),
	}
}

func (m *inMemory) Messages(ctx context.Context) []llms.Message {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "GetTenantAndChatID", "err", err.Error())
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if chat := m.chats[tenantID][chatID]; chat != nil {
		return slices.Clone(chat.messages)
	}
	return nil
}

func (m *inMemory) Add(ctx context.Context, msgs ...llms.Message) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	chat := m.getOrCreate(tenantID, chatID)
	chat.messages = append(chat.messages, msgs...)
	if extra := len(chat.messages) - DefaultMaxMessages; extra > 0 {
		chat.messages = slices.Clone(chat.messages[extra:])
	}
	chat.info.update("", nil)
	return nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats[tenantID], chatID)
	return nil
}

func (m *inMemory) UpdateChat(ctx context.Context, title string, metadata map[string]any) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreate(tenantID, chatID).info.update(title, metadata)
	return nil
}

func (m *inMemory) ListChats(ctx context.Context) ([]string, error) {
	tenantID, _, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]string, 0, len(m.chats[tenantID]))
	for id := range m.chats[tenantID] {
		list = append(list, id)
	}
	slices.Sort(list)
	return list, nil
}

func (m *inMemory) GetChatInfo(ctx context.Context, id string) (*ChatInfo, error) {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = chatID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	chat := m.getOrCreate(tenantID, id)
	info := chat.info
	info.Metadata = make(map[string]any, len(chat.info.Metadata))
	for k, v := range chat.info.Metadata {
		info.Metadata[k] = v
	}
	info.Messages = slices.Clone(chat.messages)
	return &info, nil
}

// getOrCreate must be called under the write lock
func (m *inMemory) getOrCreate(tenantID, chatID string) *memoryChat {
	tenant := m.chats[tenantID]
	if tenant == nil {
		tenant = make(map[string]*memoryChat)
		m.chats[tenantID] = tenant
	}
	chat := tenant[chatID]
	if chat == nil {
		chat = &memoryChat{info: *newChatInfo(tenantID, chatID)}
		tenant[chatID] = chat
	}
	return chat
}
