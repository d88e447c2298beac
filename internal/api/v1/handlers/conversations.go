package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley/internal/api/v1/middleware"
	"github.com/parley-chat/parley/internal/domain/chat"
	"github.com/parley-chat/parley/internal/domain/chat/models"
	"github.com/parley-chat/parley/internal/services/storage"
	"github.com/parley-chat/parley/pkg/httpext"
)

// use a single instance of Validate, it caches struct info
var validate = validator.New(validator.WithRequiredStructEnabled())

type createConversationRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type renameConversationRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// loadOwned resolves the path id to a conversation owned by the caller.
// Conversations owned by someone else read as not found, never as forbidden.
func loadOwned(store storage.Store, w http.ResponseWriter, r *http.Request) (*models.Conversation, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpext.JsonError(w, "Invalid conversation id", http.StatusBadRequest)
		return nil, false
	}

	conv, err := store.LoadConversation(r.Context(), id)
	if errors.Is(err, chat.ErrNotFound) {
		httpext.JsonError(w, "Conversation not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("conversation_id", id.String()).Msg("Failed to load conversation")
		httpext.JsonError(w, "Failed to load conversation", http.StatusInternalServerError)
		return nil, false
	}

	if conv.OwnerID != middleware.GetOwnerID(r) {
		httpext.JsonError(w, "Conversation not found", http.StatusNotFound)
		return nil, false
	}
	return conv, true
}

// HandleCreateConversation creates an empty conversation for the caller
func HandleCreateConversation(store storage.Store, w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Warn().Err(err).Msg("Client sent malformed JSON request")
			httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
			return
		}
	}

	if err := validate.Struct(req); err != nil {
		httpext.JsonError(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	title := req.Title
	if title == "" {
		title = "New conversation"
	}

	conv := models.NewConversation(middleware.GetOwnerID(r), title)
	if err := store.CreateConversation(r.Context(), conv); err != nil {
		log.Error().Err(err).Msg("Failed to create conversation")
		httpext.JsonError(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}

	log.Info().Str("conversation_id", conv.ID.String()).Msg("Conversation created")
	httpext.JsonResponse(w, http.StatusCreated, conv)
}

// HandleListConversations lists the caller's conversations, newest first
func HandleListConversations(store storage.Store, w http.ResponseWriter, r *http.Request) {
	convs, err := store.ListConversations(r.Context(), middleware.GetOwnerID(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list conversations")
		httpext.JsonError(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}

	httpext.JsonResponse(w, http.StatusOK, map[string]any{
		"conversations": convs,
	})
}

// HandleGetConversation returns one conversation with its full turn history
func HandleGetConversation(store storage.Store, w http.ResponseWriter, r *http.Request) {
	conv, ok := loadOwned(store, w, r)
	if !ok {
		return
	}
	httpext.JsonResponse(w, http.StatusOK, conv)
}

// HandleRenameConversation updates a conversation's title
func HandleRenameConversation(store storage.Store, w http.ResponseWriter, r *http.Request) {
	conv, ok := loadOwned(store, w, r)
	if !ok {
		return
	}

	var req renameConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed JSON request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpext.JsonError(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	if err := store.RenameConversation(r.Context(), conv.ID, req.Title); err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to rename conversation")
		httpext.JsonError(w, "Failed to rename conversation", http.StatusInternalServerError)
		return
	}

	conv.Title = req.Title
	httpext.JsonResponse(w, http.StatusOK, conv)
}

// HandleDeleteConversation removes one conversation
func HandleDeleteConversation(store storage.Store, w http.ResponseWriter, r *http.Request) {
	conv, ok := loadOwned(store, w, r)
	if !ok {
		return
	}

	if err := store.DeleteConversation(r.Context(), conv.ID); err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to delete conversation")
		httpext.JsonError(w, "Failed to delete conversation", http.StatusInternalServerError)
		return
	}

	log.Info().Str("conversation_id", conv.ID.String()).Msg("Conversation deleted")
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteAllConversations removes every conversation the caller owns
func HandleDeleteAllConversations(store storage.Store, w http.ResponseWriter, r *http.Request) {
	count, err := store.DeleteAllConversations(r.Context(), middleware.GetOwnerID(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete conversations")
		httpext.JsonError(w, "Failed to delete conversations", http.StatusInternalServerError)
		return
	}

	httpext.JsonResponse(w, http.StatusOK, map[string]int{"deleted": count})
}
