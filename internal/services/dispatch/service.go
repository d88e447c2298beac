package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/internal/domain/chat"
	"github.com/parley-chat/parley/internal/domain/chat/models"
	"github.com/parley-chat/parley/internal/services/assembler"
	"github.com/parley-chat/parley/internal/services/ingest"
	"github.com/parley-chat/parley/internal/services/storage"
)

// Directive carries the client-provided inputs for one send directive.
// APIKey, when set, overrides the configured upstream key for this request
// only and is never persisted.
type Directive struct {
	Content     string
	Attachments []models.Attachment
	Model       string
	APIKey      string
}

// Ingester runs the extraction batch for a directive's attachments.
type Ingester interface {
	Ingest(ctx context.Context, attachments []models.Attachment) []models.ExtractionResult
}

// Assembler builds the outgoing payload for a directive.
type Assembler interface {
	Assemble(conv *models.Conversation, pending *models.Turn, mode models.AssemblyMode, model string) (models.OutgoingRequest, error)
}

// Relay streams one assistant turn to a terminal state.
type Relay interface {
	Stream(ctx context.Context, convID uuid.UUID, turn *models.Turn, req models.OutgoingRequest, apiKey string) (<-chan models.StreamEvent, <-chan struct{})
}

// Service interprets client directives and drives the ingestion pipeline,
// context assembler, and streaming relay. It owns the per-conversation busy
// token: at most one directive is in flight per conversation, and a second
// one is rejected rather than queued.
type Service struct {
	store storage.Store
	ing   Ingester
	asm   Assembler
	relay Relay
	grace time.Duration

	mu     sync.Mutex
	active map[uuid.UUID]*activeStream
}

type activeStream struct {
	turnID uuid.UUID
	cancel context.CancelFunc
	done   <-chan struct{}
}

func NewService(store storage.Store, ing Ingester, asm Assembler, relay Relay, grace time.Duration) *Service {
	return &Service{
		store:  store,
		ing:    ing,
		asm:    asm,
		relay:  relay,
		grace:  grace,
		active: make(map[uuid.UUID]*activeStream),
	}
}

// acquire claims the conversation's busy token. The placeholder entry is
// filled in once the stream actually starts; until then Stop sees the
// conversation busy but has nothing to cancel yet.
func (s *Service) acquire(convID uuid.UUID) (*activeStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[convID]; ok {
		return nil, chat.ErrConversationBusy
	}
	entry := &activeStream{}
	s.active[convID] = entry
	return entry, nil
}

func (s *Service) release(convID uuid.UUID) {
	s.mu.Lock()
	delete(s.active, convID)
	s.mu.Unlock()
}

// Send handles a new-turn directive: ingest attachments, fold them into the
// user turn, assemble the payload, persist the user turn, and start streaming
// a fresh assistant turn. On assembly failure nothing is persisted and the
// busy token is released.
func (s *Service) Send(ctx context.Context, convID uuid.UUID, d Directive) (<-chan models.StreamEvent, error) {
	conv, err := s.store.LoadConversation(ctx, convID)
	if err != nil {
		return nil, err
	}

	entry, err := s.acquire(convID)
	if err != nil {
		return nil, err
	}

	userTurn := models.NewTurn(models.RoleUser)
	userTurn.Status = models.TurnComplete
	if d.Content != "" {
		userTurn.Fragments = append(userTurn.Fragments, models.Fragment{
			Kind: models.FragmentText,
			Text: d.Content,
		})
	}

	results := s.ing.Ingest(ctx, d.Attachments)
	ingest.Apply(d.Attachments, results)
	userTurn.Attachments = d.Attachments
	assembler.MergeResults(userTurn, results)

	req, err := s.asm.Assemble(conv, userTurn, models.ModeNewTurn, d.Model)
	if err != nil {
		s.release(convID)
		return nil, err
	}

	if err := s.store.SaveTurn(ctx, convID, userTurn); err != nil {
		s.release(convID)
		return nil, fmt.Errorf("persist user turn: %w", err)
	}

	return s.startStream(ctx, convID, entry, newAssistantTurn(), req, d.APIKey)
}

// Regenerate discards the most recent assistant turn and streams a fresh one
// over identical preceding history. The preceding history is not touched.
func (s *Service) Regenerate(ctx context.Context, convID uuid.UUID, d Directive) (<-chan models.StreamEvent, error) {
	conv, err := s.store.LoadConversation(ctx, convID)
	if err != nil {
		return nil, err
	}

	last := conv.LastTurn()
	if last == nil || last.Role != models.RoleAssistant ||
		(last.Status != models.TurnComplete && last.Status != models.TurnFailed) {
		return nil, fmt.Errorf("%w: regenerate requires a complete or failed assistant turn", chat.ErrInvalidState)
	}

	entry, err := s.acquire(convID)
	if err != nil {
		return nil, err
	}

	req, err := s.asm.Assemble(conv, nil, models.ModeRegenerate, d.Model)
	if err != nil {
		s.release(convID)
		return nil, err
	}

	if err := s.store.DeleteTurn(ctx, convID, last.ID); err != nil {
		s.release(convID)
		return nil, fmt.Errorf("discard assistant turn: %w", err)
	}

	return s.startStream(ctx, convID, entry, newAssistantTurn(), req, d.APIKey)
}

// Continue extends the most recent assistant turn in place: streaming resumes
// onto the same turn, so the persisted result is a strict extension of the
// content already there.
func (s *Service) Continue(ctx context.Context, convID uuid.UUID, d Directive) (<-chan models.StreamEvent, error) {
	conv, err := s.store.LoadConversation(ctx, convID)
	if err != nil {
		return nil, err
	}

	last := conv.LastTurn()
	if last == nil || last.Role != models.RoleAssistant || last.Status != models.TurnComplete {
		return nil, fmt.Errorf("%w: continue requires a complete assistant turn", chat.ErrInvalidState)
	}

	entry, err := s.acquire(convID)
	if err != nil {
		return nil, err
	}

	req, err := s.asm.Assemble(conv, nil, models.ModeContinue, d.Model)
	if err != nil {
		s.release(convID)
		return nil, err
	}

	return s.startStream(ctx, convID, entry, last.Clone(), req, d.APIKey)
}

// Assistant output is markdown-formatted text.
func newAssistantTurn() *models.Turn {
	turn := models.NewTurn(models.RoleAssistant)
	turn.ContentType = "markdown"
	return turn
}

func (s *Service) startStream(ctx context.Context, convID uuid.UUID, entry *activeStream, turn *models.Turn, req models.OutgoingRequest, apiKey string) (<-chan models.StreamEvent, error) {
	sctx, cancel := context.WithCancel(ctx)
	events, done := s.relay.Stream(sctx, convID, turn, req, apiKey)

	s.mu.Lock()
	entry.turnID = turn.ID
	entry.cancel = cancel
	entry.done = done
	s.mu.Unlock()

	go func() {
		<-done
		cancel()
		s.release(convID)
	}()

	log.Info().
		Str("conversation_id", convID.String()).
		Str("turn_id", turn.ID.String()).
		Msg("Directive dispatched")

	return events, nil
}

// Stop cancels the conversation's in-flight stream and waits, up to the grace
// period, for the turn to settle into its terminal state. Stopping an idle
// conversation is a warning no-op reported through the stopped flag.
func (s *Service) Stop(ctx context.Context, convID uuid.UUID) (bool, error) {
	s.mu.Lock()
	entry, ok := s.active[convID]
	var cancel context.CancelFunc
	var done <-chan struct{}
	if ok {
		cancel = entry.cancel
		done = entry.done
	}
	s.mu.Unlock()

	if !ok || cancel == nil {
		log.Warn().
			Str("conversation_id", convID.String()).
			Msg("Stop directive on idle conversation")
		return false, nil
	}

	cancel()

	select {
	case <-done:
		return true, nil
	case <-time.After(s.grace):
		return true, fmt.Errorf("stream did not settle within %s grace period", s.grace)
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// Busy reports whether the conversation has a directive in flight.
func (s *Service) Busy(convID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[convID]
	return ok
}
