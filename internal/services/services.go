package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/domain/chat/models"
	"github.com/parley-chat/parley/internal/infrastructure/redis"
	"github.com/parley-chat/parley/internal/infrastructure/upstream"
	"github.com/parley-chat/parley/internal/services/assembler"
	"github.com/parley-chat/parley/internal/services/dispatch"
	"github.com/parley-chat/parley/internal/services/extract"
	"github.com/parley-chat/parley/internal/services/ingest"
	"github.com/parley-chat/parley/internal/services/relay"
	"github.com/parley-chat/parley/internal/services/storage"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.RWMutex
)

type Services struct {
	redisService     *redis.Service
	store            storage.Store
	visionEngine     *extract.VisionEngine
	registry         *extract.Registry
	ingestService    *ingest.Service
	assemblerService *assembler.Service
	upstreamService  *upstream.Service
	relayService     *relay.Service
	dispatchService  *dispatch.Service
}

// InitializeServices initializes all required services
func InitializeServices(ctx context.Context) (*Services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	log.Info().Msg("Initializing core services")

	// Initialize Redis service (optional)
	redisService := redis.NewService()
	log.Info().Msg("Initializing Redis service")

	// Conversation store falls back to memory when Redis is unavailable
	store := storage.NewStore(redisService)

	// Extraction engines, one per supported file kind
	visionEngine := extract.NewVisionEngine(ctx)
	registry := extract.NewRegistry(config.GetExtractionTimeout())
	registry.Register(models.KindText, &extract.TextEngine{})
	registry.Register(models.KindPDF, &extract.PDFEngine{})
	registry.Register(models.KindImage, visionEngine)
	log.Info().Msg("Initializing extraction registry")

	ingestService := ingest.NewService(registry, store, config.GetExtractionWorkers())
	assemblerService := assembler.NewService(config.GetContextTokenBudget())

	// Upstream provider client; requests may carry their own key
	upstreamService := upstream.NewService()
	relayService := relay.NewService(upstreamService, store)

	dispatchService := dispatch.NewService(
		store,
		ingestService,
		assemblerService,
		relayService,
		config.GetStopGracePeriod(),
	)
	log.Info().Msg("Initializing command dispatcher")

	log.Info().Msg("All services initialized successfully")

	return &Services{
		redisService:     redisService,
		store:            store,
		visionEngine:     visionEngine,
		registry:         registry,
		ingestService:    ingestService,
		assemblerService: assemblerService,
		upstreamService:  upstreamService,
		relayService:     relayService,
		dispatchService:  dispatchService,
	}, nil
}

// Shutdown releases infrastructure clients.
func (s *Services) Shutdown() {
	if err := s.visionEngine.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Vision client")
	}
	if s.redisService != nil {
		if err := s.redisService.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}

// GetStore returns the conversation store
func (s *Services) GetStore() storage.Store {
	return s.store
}

// GetDispatchService returns the command dispatcher
func (s *Services) GetDispatchService() *dispatch.Service {
	return s.dispatchService
}

