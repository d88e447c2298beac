package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/domain/chat/models"
	"github.com/parley-chat/parley/internal/infrastructure/redis"
	"github.com/rs/zerolog/log"
)

// Store is the persistence collaborator for the streaming core. The core
// never persists user identity or auth state; conversations are merely tagged
// with an opaque owner id.
type Store interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	LoadConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]*models.Conversation, error)
	RenameConversation(ctx context.Context, id uuid.UUID, title string) error
	DeleteConversation(ctx context.Context, id uuid.UUID) error
	DeleteAllConversations(ctx context.Context, ownerID string) (int, error)

	// SaveTurn upserts a turn by id; duplicate saves of the same terminal
	// snapshot are harmless.
	SaveTurn(ctx context.Context, convID uuid.UUID, turn *models.Turn) error
	DeleteTurn(ctx context.Context, convID, turnID uuid.UUID) error

	SaveAttachmentBytes(ctx context.Context, id uuid.UUID, data []byte) error
	LoadAttachmentBytes(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// NewStore returns the Redis-backed store when Redis is configured, otherwise
// the in-memory store.
func NewStore(redisService *redis.Service) Store {
	if redisService != nil {
		if err := redisService.Ping(context.Background()); err == nil {
			log.Info().Msg("Using Redis-backed conversation store")
			return NewRedisStore(redisService)
		}
	}
	log.Info().Msg("Using in-memory conversation store")
	return NewMemoryStore()
}
