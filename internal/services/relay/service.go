package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/internal/domain/chat"
	"github.com/parley-chat/parley/internal/domain/chat/models"
)

// Delta is one upstream increment, already split into channels.
// Reasoning-capable models interleave both; others fill Answer only.
type Delta struct {
	Reasoning string
	Answer    string
}

// DeltaStream yields upstream deltas. Recv returns io.EOF on natural
// completion.
type DeltaStream interface {
	Recv() (Delta, error)
	Close() error
}

// Streamer opens one upstream completion request for an assembled payload.
type Streamer interface {
	StreamCompletion(ctx context.Context, req models.OutgoingRequest, apiKey string) (DeltaStream, error)
}

// TurnSaver is the slice of the storage collaborator the relay needs.
type TurnSaver interface {
	SaveTurn(ctx context.Context, convID uuid.UUID, turn *models.Turn) error
}

// terminalEmitTimeout bounds how long the relay waits for a consumer to take
// the terminal event before giving up on delivery (the turn is already
// persisted by then).
const terminalEmitTimeout = 5 * time.Second

// Service drives one turn through streaming -> {complete|cancelled|failed}.
// Terminal states are final: once persisted, a turn is never re-entered by
// the same streaming session.
type Service struct {
	upstream Streamer
	store    TurnSaver
}

func NewService(upstream Streamer, store TurnSaver) *Service {
	return &Service{
		upstream: upstream,
		store:    store,
	}
}

// Stream starts streaming into turn. Deltas append to the turn's content as
// they arrive, so a continue directive sees prior content as its prefix.
//
// The returned events channel carries per-turn sequence-numbered events and
// is closed after the single terminal event; done closes once the turn has
// reached a terminal state and been persisted. Cancelling ctx aborts the
// upstream request and resolves the turn to cancelled.
func (s *Service) Stream(ctx context.Context, convID uuid.UUID, turn *models.Turn, req models.OutgoingRequest, apiKey string) (<-chan models.StreamEvent, <-chan struct{}) {
	events := make(chan models.StreamEvent, 4)
	done := make(chan struct{})

	go s.run(ctx, convID, turn, req, apiKey, events, done)

	return events, done
}

type session struct {
	convID uuid.UUID
	turn   *models.Turn
	events chan<- models.StreamEvent
	seq    uint64

	persistOnce sync.Once
}

func (s *Service) run(ctx context.Context, convID uuid.UUID, turn *models.Turn, req models.OutgoingRequest, apiKey string, events chan<- models.StreamEvent, done chan struct{}) {
	defer close(done)
	defer close(events)

	sess := &session{convID: convID, turn: turn, events: events}
	turn.Status = models.TurnStreaming

	log.Info().
		Str("conversation_id", convID.String()).
		Str("turn_id", turn.ID.String()).
		Str("model", req.Model).
		Bool("continuation", req.Continuation).
		Msg("Opening upstream stream")

	upstream, err := s.upstream.StreamCompletion(ctx, req, apiKey)
	if err != nil {
		s.fail(sess, err)
		return
	}
	defer upstream.Close()

	for {
		delta, err := upstream.Recv()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.finish(sess, models.TurnComplete, false)
			case ctx.Err() != nil, errors.Is(err, context.Canceled):
				s.finish(sess, models.TurnCancelled, true)
			default:
				s.fail(sess, err)
			}
			return
		}

		if delta.Reasoning != "" {
			turn.Reasoning += delta.Reasoning
			sess.emit(ctx, models.StreamEvent{Type: models.EventDeltaReasoning, Content: delta.Reasoning})
		}
		if delta.Answer != "" {
			turn.AppendText(delta.Answer)
			sess.emit(ctx, models.StreamEvent{Type: models.EventDeltaAnswer, Content: delta.Answer})
		}
	}
}

// emit pushes one event with the turn's next sequence number. All emission
// runs on the single run goroutine, which keeps sequence numbers gap-free and
// strictly increasing without locking.
func (sess *session) emit(ctx context.Context, ev models.StreamEvent) bool {
	ev.Seq = sess.seq
	select {
	case sess.events <- ev:
		sess.seq++
		return true
	case <-ctx.Done():
		// Consumer is gone; the next Recv observes cancellation. Count the
		// sequence number anyway so content and numbering stay aligned.
		sess.seq++
		return false
	}
}

// finish resolves the turn to a terminal state, persists it exactly once, and
// emits the terminal done event. Partial content is always retained: a
// cancelled or failed turn keeps everything streamed so far.
func (s *Service) finish(sess *session, status models.TurnStatus, cancelled bool) {
	s.persist(sess, status)
	sess.emitTerminal(models.StreamEvent{
		Type:      models.EventDone,
		Cancelled: cancelled,
		Turn:      sess.turn.Clone(),
	})
}

// fail resolves the turn to failed and emits the terminal error event.
func (s *Service) fail(sess *session, cause error) {
	log.Error().
		Err(cause).
		Str("conversation_id", sess.convID.String()).
		Str("turn_id", sess.turn.ID.String()).
		Msg("Stream failed")

	s.persist(sess, models.TurnFailed)
	sess.emitTerminal(models.StreamEvent{
		Type:      models.EventError,
		ErrorKind: chat.ErrorKind(classify(cause)),
		Detail:    cause.Error(),
		Turn:      sess.turn.Clone(),
	})
}

// persist writes the terminal snapshot through the storage collaborator.
// Guarded by a sync.Once so duplicate terminal delivery from the provider
// cannot double-write.
func (s *Service) persist(sess *session, status models.TurnStatus) {
	sess.persistOnce.Do(func() {
		sess.turn.Status = status

		// Detached context: persistence must survive the directive's
		// cancellation, otherwise stop would lose partial content.
		pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.store.SaveTurn(pctx, sess.convID, sess.turn); err != nil {
			log.Error().
				Err(err).
				Str("turn_id", sess.turn.ID.String()).
				Msg("Failed to persist terminal turn")
		}
	})
}

func (sess *session) emitTerminal(ev models.StreamEvent) {
	ev.Seq = sess.seq
	sess.seq++
	select {
	case sess.events <- ev:
	case <-time.After(terminalEmitTimeout):
		log.Warn().
			Str("turn_id", sess.turn.ID.String()).
			Msg("No consumer for terminal stream event")
	}
}

// classify maps an upstream failure to the error taxonomy: wire-level JSON
// problems are malformed deltas, everything else (network failure, non-2xx
// response) is an upstream error.
func classify(err error) error {
	if errors.Is(err, chat.ErrMalformedDelta) {
		return chat.ErrMalformedDelta
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return chat.ErrMalformedDelta
	}
	return chat.ErrUpstream
}
