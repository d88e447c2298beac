package upstream

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/domain/chat"
	"github.com/parley-chat/parley/internal/domain/chat/models"
	"github.com/parley-chat/parley/internal/services/relay"
)

// Service talks to the upstream model provider over the OpenAI-compatible
// streaming wire. A per-request API key override builds a throwaway client;
// the key is never stored.
type Service struct {
	mu       sync.RWMutex
	client   *openai.Client
	baseURL  string
	model    string
	reasoner string
}

func NewService() *Service {
	baseURL := config.GetUpstreamBaseURL()
	key := config.GetUpstreamAPIKey()

	svc := &Service{
		baseURL:  baseURL,
		model:    config.GetUpstreamModel(),
		reasoner: config.GetUpstreamReasonerModel(),
	}

	if key == "" {
		log.Warn().Msg("Upstream API key not configured - requests must carry their own key")
		return svc
	}

	svc.client = newClient(key, baseURL)
	return svc
}

func newClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return openai.NewClientWithConfig(cfg)
}

func (s *Service) clientFor(apiKey string) (*openai.Client, error) {
	if apiKey != "" {
		return newClient(apiKey, s.baseURL), nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, fmt.Errorf("%w: no API key available", chat.ErrUpstream)
	}
	return s.client, nil
}

// resolveModel maps the directive's model field to a provider model name.
// The "reasoner" alias selects the configured reasoning-capable model.
func (s *Service) resolveModel(requested string) string {
	switch requested {
	case "":
		return s.model
	case "reasoner":
		return s.reasoner
	default:
		return requested
	}
}

// StreamCompletion opens one streaming completion request for the assembled
// payload.
func (s *Service) StreamCompletion(ctx context.Context, req models.OutgoingRequest, apiKey string) (relay.DeltaStream, error) {
	client, err := s.clientFor(apiKey)
	if err != nil {
		return nil, err
	}

	model := s.resolveModel(req.Model)

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrUpstream, err)
	}

	return &deltaStream{stream: stream}, nil
}

type deltaStream struct {
	stream *openai.ChatCompletionStream
}

// Recv maps one provider chunk onto the reasoning/answer channel split.
// Chunks without choices (keep-alives, usage frames) come back as empty
// deltas the relay skips over.
func (d *deltaStream) Recv() (relay.Delta, error) {
	resp, err := d.stream.Recv()
	if err != nil {
		return relay.Delta{}, err
	}
	if len(resp.Choices) == 0 {
		return relay.Delta{}, nil
	}

	delta := resp.Choices[0].Delta
	return relay.Delta{
		Reasoning: delta.ReasoningContent,
		Answer:    delta.Content,
	}, nil
}

func (d *deltaStream) Close() error {
	return d.stream.Close()
}
