package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/domain/chat"
	"github.com/parley-chat/parley/internal/domain/chat/models"
	"github.com/parley-chat/parley/internal/infrastructure/redis"
)

const (
	conversationKeyPrefix = "parley:conversation:"
	attachmentKeyPrefix   = "parley:attachment:"
	ownerIndexKeyPrefix   = "parley:owner:"
)

// RedisStore persists conversations as JSON documents, with a per-owner set
// indexing conversation ids. Attachment bytes live under their own keys.
type RedisStore struct {
	svc *redis.Service
}

func NewRedisStore(svc *redis.Service) *RedisStore {
	return &RedisStore{svc: svc}
}

func conversationKey(id uuid.UUID) string { return conversationKeyPrefix + id.String() }
func attachmentKey(id uuid.UUID) string   { return attachmentKeyPrefix + id.String() }
func ownerIndexKey(ownerID string) string { return ownerIndexKeyPrefix + ownerID }

func (r *RedisStore) save(ctx context.Context, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return r.svc.Set(ctx, conversationKey(conv.ID), string(data), 0)
}

func (r *RedisStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if err := r.save(ctx, conv); err != nil {
		return err
	}
	return r.svc.SAdd(ctx, ownerIndexKey(conv.OwnerID), conv.ID.String())
}

func (r *RedisStore) LoadConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	data, err := r.svc.Get(ctx, conversationKey(id))
	if redis.IsNil(err) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return &conv, nil
}

func (r *RedisStore) ListConversations(ctx context.Context, ownerID string) ([]*models.Conversation, error) {
	ids, err := r.svc.SMembers(ctx, ownerIndexKey(ownerID))
	if err != nil {
		return nil, err
	}

	out := make([]*models.Conversation, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		conv, err := r.LoadConversation(ctx, id)
		if err == chat.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *RedisStore) RenameConversation(ctx context.Context, id uuid.UUID, title string) error {
	conv, err := r.LoadConversation(ctx, id)
	if err != nil {
		return err
	}
	conv.Title = title
	return r.save(ctx, conv)
}

func (r *RedisStore) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	conv, err := r.LoadConversation(ctx, id)
	if err != nil {
		return err
	}
	if err := r.svc.Delete(ctx, conversationKey(id)); err != nil {
		return err
	}
	return r.svc.SRem(ctx, ownerIndexKey(conv.OwnerID), id.String())
}

func (r *RedisStore) DeleteAllConversations(ctx context.Context, ownerID string) (int, error) {
	convs, err := r.ListConversations(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, conv := range convs {
		if err := r.DeleteConversation(ctx, conv.ID); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (r *RedisStore) SaveTurn(ctx context.Context, convID uuid.UUID, turn *models.Turn) error {
	conv, err := r.LoadConversation(ctx, convID)
	if err != nil {
		return err
	}

	replaced := false
	for i, t := range conv.Turns {
		if t.ID == turn.ID {
			conv.Turns[i] = turn.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		conv.Turns = append(conv.Turns, turn.Clone())
	}
	return r.save(ctx, conv)
}

func (r *RedisStore) DeleteTurn(ctx context.Context, convID, turnID uuid.UUID) error {
	conv, err := r.LoadConversation(ctx, convID)
	if err != nil {
		return err
	}

	for i, t := range conv.Turns {
		if t.ID == turnID {
			conv.Turns = append(conv.Turns[:i], conv.Turns[i+1:]...)
			return r.save(ctx, conv)
		}
	}
	return chat.ErrNotFound
}

func (r *RedisStore) SaveAttachmentBytes(ctx context.Context, id uuid.UUID, data []byte) error {
	return r.svc.Set(ctx, attachmentKey(id), data, 0)
}

func (r *RedisStore) LoadAttachmentBytes(ctx context.Context, id uuid.UUID) ([]byte, error) {
	data, err := r.svc.Get(ctx, attachmentKey(id))
	if redis.IsNil(err) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}
