package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/medivuno/medivuno-backend/internal/channel"
	"github.com/medivuno/medivuno-backend/internal/models"
	"github.com/medivuno/medivuno-backend/internal/services"
	"github.com/medivuno/medivuno-backend/internal/store"
)

// ChatHTTPHandler serves the request/response side of the chat boundary:
// history, conversation summaries, unread counts, and a REST fallback for
// sending and marking read.
type ChatHTTPHandler struct {
	sessions  *services.SessionService
	presence  *services.PresenceService
	directory *services.ContactDirectory
	store     *store.MessageStore
	queries   *store.ConversationQueries
	cache     *store.RecentCache
	events    *channel.EventChannel
}

func NewChatHTTPHandler(
	sessions *services.SessionService,
	presence *services.PresenceService,
	directory *services.ContactDirectory,
	st *store.MessageStore,
	queries *store.ConversationQueries,
	cache *store.RecentCache,
	events *channel.EventChannel,
) *ChatHTTPHandler {
	return &ChatHTTPHandler{
		sessions:  sessions,
		presence:  presence,
		directory: directory,
		store:     st,
		queries:   queries,
		cache:     cache,
		events:    events,
	}
}

// authUser resolves the request's session token. Writes a 401 and returns
// "" when the token is missing or invalid.
func (h *ChatHTTPHandler) authUser(w http.ResponseWriter, r *http.Request) string {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	userID, ok, err := h.sessions.ValidateSession(r.Context(), token)
	if err != nil || !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "invalid session token",
		})
		return ""
	}
	return userID
}

// History returns the full conversation with a contact, oldest first.
// Query params: contact_id (required).
func (h *ChatHTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := h.authUser(w, r)
	if userID == "" {
		return
	}

	contactID := r.URL.Query().Get("contact_id")
	if contactID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "contact_id is required",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if msgs, ok := h.cache.Recent(ctx, userID, contactID); ok {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"messages": msgs,
		})
		return
	}

	msgs, err := h.queries.Conversation(ctx, userID, contactID)
	if err != nil {
		log.Printf("chat history: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "failed to load messages",
		})
		return
	}
	h.cache.Warm(ctx, userID, contactID, msgs)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": msgs,
	})
}

// conversationEntry is one conversation in the inbox listing, enriched with
// the counterparty's profile and presence.
type conversationEntry struct {
	store.ConversationSummary
	ContactKind models.ContactKind `json:"contact_kind,omitempty"`
	ContactName string             `json:"contact_name,omitempty"`
	Specialty   string             `json:"specialty,omitempty"`
	Condition   string             `json:"condition,omitempty"`
	Online      bool               `json:"online"`
}

// Conversations returns the viewer's inbox: one summary per counterparty,
// newest conversation first.
func (h *ChatHTTPHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID := h.authUser(w, r)
	if userID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	summaries, err := h.queries.Summaries(ctx, userID)
	if err != nil {
		log.Printf("chat conversations: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "failed to load conversations",
		})
		return
	}

	entries := make([]conversationEntry, 0, len(summaries))
	for _, s := range summaries {
		e := conversationEntry{
			ConversationSummary: s,
			Online:              h.presence.IsOnline(ctx, s.PartnerID),
		}
		contact, err := h.directory.Contact(ctx, s.PartnerID)
		if err != nil && !errors.Is(err, services.ErrContactNotFound) {
			log.Printf("chat conversations: contact %s: %v", s.PartnerID, err)
		}
		if contact != nil {
			e.ContactKind = contact.Kind()
			e.ContactName = contact.DisplayName()
			switch c := contact.(type) {
			case models.Doctor:
				e.Specialty = c.Specialty
			case models.Patient:
				e.Condition = c.Condition
			}
		}
		entries = append(entries, e)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"conversations": entries,
	})
}

// UnreadCount returns the viewer's total and urgent unread counts.
func (h *ChatHTTPHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := h.authUser(w, r)
	if userID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	unread, err := h.queries.UnreadCount(ctx, userID)
	if err != nil {
		log.Printf("chat unread: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "failed to count unread messages",
		})
		return
	}
	urgent, err := h.queries.UrgentUnreadCount(ctx, userID)
	if err != nil {
		urgent = 0
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"unread":        unread,
		"urgent_unread": urgent,
	})
}

type sendMessageRequest struct {
	RecipientID string          `json:"recipient_id"`
	Text        string          `json:"text"`
	IsUrgent    bool            `json:"is_urgent"`
	File        *models.FileRef `json:"file,omitempty"`
}

// valid requires a recipient and at least text or an uploaded file, the same
// rule the store enforces, so empty sends fail as 400 instead of 500.
func (req sendMessageRequest) valid() bool {
	if req.RecipientID == "" {
		return false
	}
	return req.Text != "" || (req.File != nil && req.File.URL != "")
}

// SendMessage is the REST fallback for clients without a live WebSocket.
// Persists, publishes the derived event, and returns the confirmed message.
func (h *ChatHTTPHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := h.authUser(w, r)
	if userID == "" {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "recipient_id and text or file are required",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	saved, err := h.store.InsertMessage(ctx, userID, req.RecipientID, req.Text, req.IsUrgent, req.File)
	if err != nil {
		log.Printf("chat send: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "failed to persist message",
		})
		return
	}

	if err := h.events.PublishMessage(ctx, *saved); err != nil {
		log.Printf("chat send: publish: %v", err)
	}
	h.cache.Push(ctx, *saved)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    saved,
	})
}

type markReadRequest struct {
	ContactID string `json:"contact_id"`
}

// MarkRead flips every unread message from contact_id to the viewer and
// publishes the read receipt back to the sender.
func (h *ChatHTTPHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := h.authUser(w, r)
	if userID == "" {
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContactID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "contact_id is required",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.MarkRead(ctx, userID, req.ContactID); err != nil {
		log.Printf("chat mark read: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "failed to mark conversation read",
		})
		return
	}

	if err := h.events.PublishRead(ctx, userID, req.ContactID); err != nil {
		log.Printf("chat mark read: publish: %v", err)
	}
	h.cache.Invalidate(ctx, userID, req.ContactID)

	unread, err := h.queries.UnreadCount(ctx, userID)
	if err != nil {
		unread = 0
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"unread":  unread,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
