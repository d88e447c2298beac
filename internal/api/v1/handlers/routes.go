package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	v1ws "github.com/parley-chat/parley/internal/api/v1/handlers/websocket"
	v1mware "github.com/parley-chat/parley/internal/api/v1/middleware"
	"github.com/parley-chat/parley/internal/connections"
	"github.com/parley-chat/parley/internal/services"
)

func RegisterV1Routes(router *mux.Router, services *services.Services) {
	// v1 routes
	v1 := router.PathPrefix("/v1").Subrouter()

	store := services.GetStore()
	dispatcher := services.GetDispatchService()
	manager := connections.NewManager(connections.DefaultTimeouts)

	// Protected v1 routes (require auth)
	v1protectedRouter := v1.NewRoute().Subrouter()
	v1protectedRouter.Use(v1mware.RequireAuth())
	v1protectedRouter.Use(v1mware.RateLimit("global"))

	// Conversation CRUD routes
	convRouter := v1protectedRouter.PathPrefix("/conversations").Subrouter()
	convRouter.Handle("", v1mware.RateLimit("conversations")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleCreateConversation(store, w, r)
	}))).Methods("POST")
	convRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		HandleListConversations(store, w, r)
	}).Methods("GET")
	convRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		HandleDeleteAllConversations(store, w, r)
	}).Methods("DELETE")
	convRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleGetConversation(store, w, r)
	}).Methods("GET")
	convRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleRenameConversation(store, w, r)
	}).Methods("PATCH")
	convRouter.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		HandleDeleteConversation(store, w, r)
	}).Methods("DELETE")

	// Streaming directive routes
	convRouter.Handle("/{id}/messages", v1mware.RateLimit("chat_stream")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleSendMessage(store, dispatcher, w, r)
	}))).Methods("POST")
	convRouter.Handle("/{id}/regenerate", v1mware.RateLimit("chat_stream")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleRedo(store, dispatcher, w, r)
	}))).Methods("POST")
	convRouter.HandleFunc("/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		HandleStop(store, dispatcher, w, r)
	}).Methods("POST")

	// Socket transport for clients that prefer one duplex connection
	convRouter.HandleFunc("/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
		v1ws.HandleConversationSocket(store, dispatcher, manager, w, r)
	}).Methods("GET")
}
