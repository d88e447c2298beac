package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/domain/chat"
	"github.com/parley-chat/parley/internal/domain/chat/models"
	"github.com/parley-chat/parley/internal/services/dispatch"
	"github.com/parley-chat/parley/internal/services/storage"
	"github.com/parley-chat/parley/pkg/httpext"
	"github.com/parley-chat/parley/pkg/sse"
)

// upstreamKeyHeader lets a request override the configured provider key for
// itself only.
const upstreamKeyHeader = "X-Upstream-API-Key"

// maxUploadBytes bounds one multipart send request.
const maxUploadBytes = 32 << 20

type sendMessageRequest struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

type redoRequest struct {
	Directive string `json:"directive" validate:"required,oneof=regenerate continue"`
	Model     string `json:"model"`
}

// HandleSendMessage accepts a new-turn directive and streams the assistant's
// reply as Server-Sent Events. JSON bodies carry text only; multipart bodies
// additionally carry attachments.
func HandleSendMessage(store storage.Store, dispatcher *dispatch.Service, w http.ResponseWriter, r *http.Request) {
	conv, ok := loadOwned(store, w, r)
	if !ok {
		return
	}

	d, ok := parseSendDirective(store, w, r)
	if !ok {
		return
	}

	events, err := dispatcher.Send(r.Context(), conv.ID, d)
	if err != nil {
		writeDirectiveError(w, err)
		return
	}

	streamEvents(w, dispatcher, conv.ID, events)
}

// HandleRedo accepts a regenerate or continue directive over the existing
// history and streams the result.
func HandleRedo(store storage.Store, dispatcher *dispatch.Service, w http.ResponseWriter, r *http.Request) {
	conv, ok := loadOwned(store, w, r)
	if !ok {
		return
	}

	var req redoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed JSON request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpext.JsonError(w, "Directive must be regenerate or continue", http.StatusBadRequest)
		return
	}

	d := dispatch.Directive{
		Model:  req.Model,
		APIKey: r.Header.Get(upstreamKeyHeader),
	}

	var events <-chan models.StreamEvent
	var err error
	switch req.Directive {
	case "continue":
		events, err = dispatcher.Continue(r.Context(), conv.ID, d)
	default:
		events, err = dispatcher.Regenerate(r.Context(), conv.ID, d)
	}
	if err != nil {
		writeDirectiveError(w, err)
		return
	}

	streamEvents(w, dispatcher, conv.ID, events)
}

// HandleStop cancels the conversation's in-flight stream. Stopping an idle
// conversation reports stopped=false rather than an error.
func HandleStop(store storage.Store, dispatcher *dispatch.Service, w http.ResponseWriter, r *http.Request) {
	conv, ok := loadOwned(store, w, r)
	if !ok {
		return
	}

	stopped, err := dispatcher.Stop(r.Context(), conv.ID)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Stop directive failed")
		httpext.JsonError(w, "Failed to stop stream", http.StatusInternalServerError)
		return
	}

	httpext.JsonResponse(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func parseSendDirective(store storage.Store, w http.ResponseWriter, r *http.Request) (dispatch.Directive, bool) {
	d := dispatch.Directive{APIKey: r.Header.Get(upstreamKeyHeader)}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Warn().Err(err).Msg("Client sent malformed JSON request")
			httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
			return d, false
		}
		d.Content = req.Content
		d.Model = req.Model
		return d, true
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpext.JsonError(w, "Invalid multipart request", http.StatusBadRequest)
		return d, false
	}
	d.Content = r.FormValue("content")
	d.Model = r.FormValue("model")

	for _, header := range r.MultipartForm.File["attachments"] {
		file, err := header.Open()
		if err != nil {
			httpext.JsonError(w, "Failed to read attachment", http.StatusBadRequest)
			return d, false
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			httpext.JsonError(w, "Failed to read attachment", http.StatusBadRequest)
			return d, false
		}

		att := models.NewAttachment(header.Filename, int64(len(data)))
		if err := store.SaveAttachmentBytes(r.Context(), att.ID, data); err != nil {
			log.Error().Err(err).Str("attachment", att.Name).Msg("Failed to store attachment bytes")
			httpext.JsonError(w, "Failed to store attachment", http.StatusInternalServerError)
			return d, false
		}
		d.Attachments = append(d.Attachments, att)
	}

	return d, true
}

// streamEvents relays the dispatcher's event channel to the client as SSE.
// A client write failure stops the upstream stream; the relay still persists
// whatever was produced, so the remaining events are drained, not abandoned.
func streamEvents(w http.ResponseWriter, dispatcher *dispatch.Service, convID uuid.UUID, events <-chan models.StreamEvent) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		httpext.JsonError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	keepAlive := time.NewTicker(config.GetStreamKeepAliveInterval())
	defer keepAlive.Stop()

	clientGone := false
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if clientGone {
				continue
			}
			if err := writer.Event(string(ev.Type), ev); err != nil {
				clientGone = stopAfterDisconnect(dispatcher, convID, err)
			}
		case <-keepAlive.C:
			if clientGone {
				continue
			}
			if err := writer.Comment("keep-alive"); err != nil {
				clientGone = stopAfterDisconnect(dispatcher, convID, err)
			}
		}
	}
}

// stopAfterDisconnect cancels the in-flight stream once the client is gone.
// The relay persists whatever was produced, so the caller keeps draining the
// event channel instead of abandoning it.
func stopAfterDisconnect(dispatcher *dispatch.Service, convID uuid.UUID, cause error) bool {
	log.Warn().
		Err(cause).
		Str("conversation_id", convID.String()).
		Msg("Client disconnected mid-stream")

	// Detached context: the request context is already dying with the client
	// connection.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := dispatcher.Stop(ctx, convID); err != nil {
		log.Warn().Err(err).Msg("Failed to stop stream after disconnect")
	}
	return true
}

func writeDirectiveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrConversationBusy):
		httpext.JsonErrorWithDetails(w, http.StatusConflict, httpext.ErrorResponse{
			Error:     err.Error(),
			ErrorKind: "conversation_busy",
		})
	case errors.Is(err, chat.ErrInvalidState):
		httpext.JsonErrorWithDetails(w, http.StatusConflict, httpext.ErrorResponse{
			Error:     err.Error(),
			ErrorKind: "invalid_state",
		})
	case errors.Is(err, chat.ErrBudgetExhausted):
		httpext.JsonErrorWithDetails(w, http.StatusRequestEntityTooLarge, httpext.ErrorResponse{
			Error:     err.Error(),
			ErrorKind: "budget_exhausted",
		})
	case errors.Is(err, chat.ErrNotFound):
		httpext.JsonError(w, "Conversation not found", http.StatusNotFound)
	default:
		log.Error().Err(err).Msg("Directive failed")
		httpext.JsonError(w, "Failed to process directive", http.StatusInternalServerError)
	}
}
