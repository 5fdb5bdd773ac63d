package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medivuno/medivuno-backend/internal/models"
	"github.com/medivuno/medivuno-backend/internal/services"
	"github.com/medivuno/medivuno-backend/internal/session"
)

// chatUpgrader is the shared upgrader for chat WebSocket connections.
var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

// ChatClientMessage represents messages coming from the frontend over WebSocket.
type ChatClientMessage struct {
	Type        string          `json:"type"` // "message", "file", "typing_start", "typing_stop", "read", "select", "ping"
	RecipientID string          `json:"recipient_id,omitempty"`
	ContactID   string          `json:"contact_id,omitempty"`
	Text        string          `json:"text,omitempty"`
	IsUrgent    bool            `json:"is_urgent,omitempty"`
	File        *models.FileRef `json:"file,omitempty"`
}

// ChatServerMessage is the envelope pushed to the frontend: reactive state
// snapshots plus per-operation acks and errors.
type ChatServerMessage struct {
	Type    string          `json:"type"` // "state", "message_ack", "error", "pong"
	State   *session.State  `json:"state,omitempty"`
	Message *models.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ChatWSHandler binds one chat session controller to each WebSocket
// connection and streams its snapshots to the client.
type ChatWSHandler struct {
	sessions *services.SessionService
	presence *services.PresenceService
	store    session.Store
	events   session.Channel
}

func NewChatWSHandler(sessions *services.SessionService, presence *services.PresenceService, st session.Store, events session.Channel) *ChatWSHandler {
	return &ChatWSHandler{sessions: sessions, presence: presence, store: st, events: events}
}

// Serve handles real-time chat over WebSocket. Authentication uses the
// existing session token (Authorization: Bearer <token>, or ?token= for
// browser clients).
func (h *ChatWSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing session token", http.StatusUnauthorized)
			return
		}
	}

	userID, ok, err := h.sessions.ValidateSession(r.Context(), token)
	if err != nil || !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.presence.SetOnline(ctx, userID)

	ctrl := session.New(userID, h.store, h.events, session.Options{})
	ctrl.Start()
	defer ctrl.Close()

	// gorilla allows one concurrent writer; acks from the reader loop and
	// snapshots from the update loop share this mutex.
	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	ctrl.LoadMessages(ctx)

	// Snapshot pusher: one coalesced state frame per change.
	go func() {
		st := ctrl.Snapshot()
		if err := writeJSON(ChatServerMessage{Type: "state", State: &st}); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ctrl.Updates():
				st := ctrl.Snapshot()
				if err := writeJSON(ChatServerMessage{Type: "state", State: &st}); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop: handle client operations.
	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// On disconnect, rely on TTL-based presence expiry.
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var msg ChatClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		msg.RecipientID = strings.TrimSpace(msg.RecipientID)
		msg.ContactID = strings.TrimSpace(msg.ContactID)

		switch msg.Type {
		case "message":
			h.handleSend(ctx, ctrl, writeJSON, msg)
		case "file":
			h.handleSendFile(ctx, ctrl, writeJSON, msg)
		case "typing_start":
			if msg.RecipientID != "" {
				ctrl.StartTyping(msg.RecipientID)
			}
		case "typing_stop":
			if msg.RecipientID != "" {
				ctrl.StopTyping(msg.RecipientID)
			}
		case "read":
			if msg.ContactID != "" {
				if err := ctrl.MarkConversationAsRead(ctx, msg.ContactID); err != nil {
					_ = writeJSON(ChatServerMessage{Type: "error", Error: "failed to mark conversation read"})
				}
			}
		case "select":
			ctrl.SelectContact(msg.ContactID)
		case "ping":
			h.presence.SetOnline(ctx, userID)
			_ = writeJSON(ChatServerMessage{Type: "pong"})
		default:
			// Ignore unknown types
		}
	}
}

func (h *ChatWSHandler) handleSend(ctx context.Context, ctrl *session.Controller, writeJSON func(interface{}) error, msg ChatClientMessage) {
	text := strings.TrimSpace(msg.Text)
	if text == "" || msg.RecipientID == "" {
		return
	}

	saved, err := ctrl.SendMessage(ctx, msg.RecipientID, text, msg.IsUrgent)
	if err != nil {
		// The optimistic entry is already rolled back; the client decides
		// how to surface the failure (retry, edit, cancel).
		_ = writeJSON(ChatServerMessage{Type: "error", Error: "failed to send message"})
		return
	}
	_ = writeJSON(ChatServerMessage{Type: "message_ack", Message: saved})
}

func (h *ChatWSHandler) handleSendFile(ctx context.Context, ctrl *session.Controller, writeJSON func(interface{}) error, msg ChatClientMessage) {
	if msg.RecipientID == "" || msg.File == nil || msg.File.URL == "" {
		return
	}

	saved, err := ctrl.SendFile(ctx, msg.RecipientID, *msg.File, strings.TrimSpace(msg.Text), msg.IsUrgent)
	if err != nil {
		_ = writeJSON(ChatServerMessage{Type: "error", Error: "failed to send file"})
		return
	}
	_ = writeJSON(ChatServerMessage{Type: "message_ack", Message: saved})
}

// extractBearerToken pulls the token out of an Authorization header.
func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
