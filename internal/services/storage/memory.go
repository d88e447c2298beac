package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/domain/chat"
	"github.com/parley-chat/parley/internal/domain/chat/models"
)

// MemoryStore keeps conversations and attachment bytes in process memory.
// All values are deep-copied on the way in and out so callers never alias
// stored state.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*models.Conversation
	attachments   map[uuid.UUID][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]*models.Conversation),
		attachments:   make(map[uuid.UUID][]byte),
	}
}

func (m *MemoryStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = conv.Clone()
	return nil
}

func (m *MemoryStore) LoadConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return conv.Clone(), nil
}

func (m *MemoryStore) ListConversations(ctx context.Context, ownerID string) ([]*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Conversation
	for _, conv := range m.conversations {
		if ownerID == "" || conv.OwnerID == ownerID {
			out = append(out, conv.Clone())
		}
	}
	// Newest first, matching the listing order of the product UI.
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) RenameConversation(ctx context.Context, id uuid.UUID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return chat.ErrNotFound
	}
	conv.Title = title
	return nil
}

func (m *MemoryStore) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return chat.ErrNotFound
	}
	delete(m.conversations, id)
	return nil
}

func (m *MemoryStore) DeleteAllConversations(ctx context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, conv := range m.conversations {
		if ownerID == "" || conv.OwnerID == ownerID {
			delete(m.conversations, id)
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) SaveTurn(ctx context.Context, convID uuid.UUID, turn *models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[convID]
	if !ok {
		return chat.ErrNotFound
	}

	snapshot := turn.Clone()
	for i, t := range conv.Turns {
		if t.ID == turn.ID {
			conv.Turns[i] = snapshot
			return nil
		}
	}
	conv.Turns = append(conv.Turns, snapshot)
	return nil
}

func (m *MemoryStore) DeleteTurn(ctx context.Context, convID, turnID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[convID]
	if !ok {
		return chat.ErrNotFound
	}

	for i, t := range conv.Turns {
		if t.ID == turnID {
			conv.Turns = append(conv.Turns[:i], conv.Turns[i+1:]...)
			return nil
		}
	}
	return chat.ErrNotFound
}

func (m *MemoryStore) SaveAttachmentBytes(ctx context.Context, id uuid.UUID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[id] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) LoadAttachmentBytes(ctx context.Context, id uuid.UUID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.attachments[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
