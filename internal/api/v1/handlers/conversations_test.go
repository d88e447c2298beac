package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/parley-chat/parley/internal/api/v1/middleware"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/domain/chat/models"
	"github.com/parley-chat/parley/internal/services/auth"
	"github.com/parley-chat/parley/internal/services/storage"
)

func testRouter(store storage.Store) *mux.Router {
	r := mux.NewRouter()
	protected := r.NewRoute().Subrouter()
	protected.Use(middleware.RequireAuth())

	protected.HandleFunc("/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		HandleCreateConversation(store, w, r)
	}).Methods("POST")
	protected.HandleFunc("/v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		HandleListConversations(store, w, r)
	}).Methods("GET")
	protected.HandleFunc("/v1/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleGetConversation(store, w, r)
	}).Methods("GET")
	protected.HandleFunc("/v1/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleRenameConversation(store, w, r)
	}).Methods("PATCH")
	protected.HandleFunc("/v1/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleDeleteConversation(store, w, r)
	}).Methods("DELETE")
	return r
}

func bearerFor(t *testing.T, ownerID string) string {
	t.Helper()
	token, err := auth.IssueToken(ownerID, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	return "Bearer " + token
}

func TestConversationEndpoints(t *testing.T) {
	restore := config.SetJWTSecret([]byte("handler-test-secret"))
	defer restore()

	store := storage.NewMemoryStore()
	router := testRouter(store)

	t.Run("requires a bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rec.Code)
		}
	})

	t.Run("create and fetch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/conversations", strings.NewReader(`{"title":"project notes"}`))
		req.Header.Set("Authorization", bearerFor(t, "owner-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var created models.Conversation
		if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if created.Title != "project notes" || created.OwnerID != "owner-1" {
			t.Errorf("Unexpected conversation %+v", created)
		}

		req = httptest.NewRequest(http.MethodGet, "/v1/conversations/"+created.ID.String(), nil)
		req.Header.Set("Authorization", bearerFor(t, "owner-1"))
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rec.Code)
		}
	})

	t.Run("other owners cannot see the conversation", func(t *testing.T) {
		conv := models.NewConversation("owner-1", "private")
		store.CreateConversation(context.Background(), conv)

		req := httptest.NewRequest(http.MethodGet, "/v1/conversations/"+conv.ID.String(), nil)
		req.Header.Set("Authorization", bearerFor(t, "owner-2"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for foreign conversation, got %d", rec.Code)
		}
	})

	t.Run("rename", func(t *testing.T) {
		conv := models.NewConversation("owner-1", "draft")
		store.CreateConversation(context.Background(), conv)

		req := httptest.NewRequest(http.MethodPatch, "/v1/conversations/"+conv.ID.String(), strings.NewReader(`{"title":"final"}`))
		req.Header.Set("Authorization", bearerFor(t, "owner-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		loaded, _ := store.LoadConversation(context.Background(), conv.ID)
		if loaded.Title != "final" {
			t.Errorf("Expected renamed title, got %q", loaded.Title)
		}
	})

	t.Run("rename rejects an empty title", func(t *testing.T) {
		conv := models.NewConversation("owner-1", "keep me")
		store.CreateConversation(context.Background(), conv)

		req := httptest.NewRequest(http.MethodPatch, "/v1/conversations/"+conv.ID.String(), strings.NewReader(`{"title":""}`))
		req.Header.Set("Authorization", bearerFor(t, "owner-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		conv := models.NewConversation("owner-1", "ephemeral")
		store.CreateConversation(context.Background(), conv)

		req := httptest.NewRequest(http.MethodDelete, "/v1/conversations/"+conv.ID.String(), nil)
		req.Header.Set("Authorization", bearerFor(t, "owner-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", rec.Code)
		}
		if _, err := store.LoadConversation(context.Background(), conv.ID); err == nil {
			t.Error("Conversation still loadable after delete")
		}
	})

	t.Run("invalid id is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/conversations/not-a-uuid", nil)
		req.Header.Set("Authorization", bearerFor(t, "owner-1"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})
}
