package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/medivuno/medivuno-backend/internal/handlers"
)

// Handlers bundles the chat boundary handlers the router mounts.
type Handlers struct {
	ChatWS   *handlers.ChatWSHandler
	ChatHTTP *handlers.ChatHTTPHandler
	Upload   *handlers.UploadHandler
}

func SetupRoutes(r *chi.Mux, h Handlers) {
	// Real-time chat session (WebSocket)
	r.Get("/api/chat/ws", h.ChatWS.Serve)

	// Chat read side
	r.Get("/api/chat/history", h.ChatHTTP.History)
	r.Get("/api/chat/conversations", h.ChatHTTP.Conversations)
	r.Get("/api/chat/unread", h.ChatHTTP.UnreadCount)

	// Chat write side (REST fallback for clients without a live socket)
	r.Post("/api/chat/messages", h.ChatHTTP.SendMessage)
	r.Post("/api/chat/read", h.ChatHTTP.MarkRead)

	// Attachment upload
	r.Post("/api/upload", h.Upload.Upload)
}
