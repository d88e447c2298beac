package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/internal/domain/chat"
	"github.com/parley-chat/parley/internal/domain/chat/models"
)

// Engine turns raw attachment bytes into text. One implementation per file
// kind, selected via the registry's lookup table.
type Engine interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Registry dispatches extraction by declared file kind. Unknown kinds fail
// fast; there is no best-effort sniffing.
type Registry struct {
	mu      sync.RWMutex
	engines map[models.FileKind]Engine
	timeout time.Duration
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		engines: make(map[models.FileKind]Engine),
		timeout: timeout,
	}
}

// Register installs the engine for a kind, replacing any previous one.
func (r *Registry) Register(kind models.FileKind, engine Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[kind] = engine
}

func (r *Registry) lookup(kind models.FileKind) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	engine, ok := r.engines[kind]
	return engine, ok
}

type outcome struct {
	text string
	err  error
}

// Extract runs the engine for the attachment's declared kind under the
// registry's time bound. Failures are folded into the result rather than
// returned, so a bad attachment never aborts its batch.
func (r *Registry) Extract(ctx context.Context, att models.Attachment, data []byte) models.ExtractionResult {
	result := models.ExtractionResult{
		AttachmentID: att.ID,
		Name:         att.Name,
		Kind:         att.Kind,
	}

	engine, ok := r.lookup(att.Kind)
	if !ok {
		result.Err = fmt.Sprintf("%v: %s", chat.ErrUnsupportedKind, att.Kind)
		return result
	}

	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Buffered so a late engine can still exit after we stop waiting.
	ch := make(chan outcome, 1)
	go func() {
		text, err := engine.Extract(tctx, data)
		ch <- outcome{text: text, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			log.Warn().
				Err(o.err).
				Str("attachment", att.Name).
				Str("kind", string(att.Kind)).
				Msg("Extraction failed")
			result.Err = o.err.Error()
			return result
		}
		result.Text = o.text
		result.Empty = strings.TrimSpace(o.text) == ""
		return result
	case <-tctx.Done():
		log.Warn().
			Str("attachment", att.Name).
			Str("kind", string(att.Kind)).
			Dur("timeout", r.timeout).
			Msg("Extraction timed out")
		result.Err = chat.ErrExtractionTimeout.Error()
		return result
	}
}
