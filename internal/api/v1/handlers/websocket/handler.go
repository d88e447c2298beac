package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/internal/api/v1/middleware"
	"github.com/parley-chat/parley/internal/connections"
	"github.com/parley-chat/parley/internal/domain/chat"
	"github.com/parley-chat/parley/internal/domain/chat/models"
	"github.com/parley-chat/parley/internal/services/dispatch"
	"github.com/parley-chat/parley/internal/services/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking based on configuration
		return true
	},
}

// directiveFrame is one client control frame over the socket.
type directiveFrame struct {
	Directive string `json:"directive"`
	Content   string `json:"content,omitempty"`
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
}

// errorFrame reports a rejected directive without closing the socket.
type errorFrame struct {
	Type      string `json:"type"`
	ErrorKind string `json:"error_kind"`
	Detail    string `json:"detail"`
}

// HandleConversationSocket runs the socket transport for one conversation.
// The client sends directive frames (send, regenerate, continue, stop) and
// receives the same StreamEvent sequence the SSE transport carries.
// Attachments are not supported over the socket; use the HTTP endpoint.
func HandleConversationSocket(store storage.Store, dispatcher *dispatch.Service, manager *connections.Manager, w http.ResponseWriter, r *http.Request) {
	convID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid conversation id", http.StatusBadRequest)
		return
	}

	conv, err := store.LoadConversation(r.Context(), convID)
	if err != nil || conv.OwnerID != middleware.GetOwnerID(r) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := manager.AddClient(conn)
	defer func() {
		manager.RemoveClient(client)
		client.Close()
	}()
	client.PrepareRead()

	// Socket-scoped context: closing the socket cancels any in-flight stream
	// started from it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go pingLoop(ctx, client, manager.GetTimeouts().PingPeriod)

	log.Info().
		Str("conversation_id", convID.String()).
		Msg("Stream socket opened")

	for {
		var frame directiveFrame
		if err := client.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected socket closure")
			}
			return
		}

		d := dispatch.Directive{
			Content: frame.Content,
			Model:   frame.Model,
			APIKey:  frame.APIKey,
		}

		var events <-chan models.StreamEvent
		var dispatchErr error
		switch frame.Directive {
		case "send":
			events, dispatchErr = dispatcher.Send(ctx, convID, d)
		case "regenerate":
			events, dispatchErr = dispatcher.Regenerate(ctx, convID, d)
		case "continue":
			events, dispatchErr = dispatcher.Continue(ctx, convID, d)
		case "stop":
			stopped, err := dispatcher.Stop(ctx, convID)
			if err != nil {
				log.Error().Err(err).Msg("Stop directive failed")
			}
			client.WriteJSON(map[string]any{"type": "stopped", "stopped": stopped})
			continue
		default:
			client.WriteJSON(errorFrame{
				Type:      "rejected",
				ErrorKind: "unknown_directive",
				Detail:    frame.Directive,
			})
			continue
		}

		if dispatchErr != nil {
			client.WriteJSON(errorFrame{
				Type:      "rejected",
				ErrorKind: directiveErrorKind(dispatchErr),
				Detail:    dispatchErr.Error(),
			})
			continue
		}

		// The read loop pauses while a stream is active; stop arrives through
		// the HTTP endpoint or by closing the socket.
		for ev := range events {
			if err := client.WriteJSON(ev); err != nil {
				log.Warn().Err(err).Msg("Client write failed mid-stream")
				return
			}
		}
	}
}

func pingLoop(ctx context.Context, client *connections.Client, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
		}
	}
}

func directiveErrorKind(err error) string {
	switch {
	case errors.Is(err, chat.ErrConversationBusy):
		return "conversation_busy"
	case errors.Is(err, chat.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, chat.ErrBudgetExhausted):
		return "budget_exhausted"
	case errors.Is(err, chat.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
