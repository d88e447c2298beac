package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/internal/domain/chat/models"
	"github.com/parley-chat/parley/internal/services/extract"
)

// ByteLoader is the slice of the storage collaborator the pipeline needs:
// attachment bytes are owned externally and fetched on demand.
type ByteLoader interface {
	LoadAttachmentBytes(ctx context.Context, id uuid.UUID) ([]byte, error)
}

// Service runs extraction for an upload batch: concurrent across attachments,
// bounded by a worker limit, with results resequenced to input order.
type Service struct {
	registry *extract.Registry
	loader   ByteLoader
	workers  int
}

func NewService(registry *extract.Registry, loader ByteLoader, workers int) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		registry: registry,
		loader:   loader,
		workers:  workers,
	}
}

// Ingest extracts every attachment in the batch. A failed attachment is
// reported as a failure-status result, never dropped; the caller surfaces it
// as a visible marker so the model knows content was missing. Output order
// always matches input order regardless of completion order.
func (s *Service) Ingest(ctx context.Context, attachments []models.Attachment) []models.ExtractionResult {
	results := make([]models.ExtractionResult, len(attachments))
	if len(attachments) == 0 {
		return results
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for i, att := range attachments {
		wg.Add(1)
		go func(i int, att models.Attachment) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = s.extractOne(ctx, att)
		}(i, att)
	}

	wg.Wait()

	log.Debug().
		Int("attachments", len(attachments)).
		Int("workers", s.workers).
		Msg("Ingestion batch complete")

	return results
}

func (s *Service) extractOne(ctx context.Context, att models.Attachment) models.ExtractionResult {
	data, err := s.loader.LoadAttachmentBytes(ctx, att.ID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("attachment", att.Name).
			Msg("Failed to load attachment bytes")
		return models.ExtractionResult{
			AttachmentID: att.ID,
			Name:         att.Name,
			Kind:         att.Kind,
			Err:          fmt.Sprintf("load attachment bytes: %v", err),
		}
	}

	return s.registry.Extract(ctx, att, data)
}

// Apply writes a batch's results back onto the attachments. Extracted text is
// read-only from here on.
func Apply(attachments []models.Attachment, results []models.ExtractionResult) {
	for i := range attachments {
		if i >= len(results) {
			break
		}
		if results[i].Failed() {
			attachments[i].Status = models.ExtractionFailed
			continue
		}
		attachments[i].Status = models.ExtractionExtracted
		attachments[i].Text = results[i].Text
	}
}
