package store

import (
	"context"

	"github.com/medivuno/medivuno-backend/internal/models"
)

// ConversationSummary is the inbox view of one conversation: the counterparty,
// the newest message, and the viewer's unread state.
type ConversationSummary struct {
	PartnerID       string         `json:"partner_id"`
	LastMessage     models.Message `json:"last_message"`
	UnreadCount     int            `json:"unread_count"`
	HasUrgentUnread bool           `json:"has_urgent_unread"`
}

// ConversationQueries is the read side of the chat layer, built directly on
// the MessageStore.
type ConversationQueries struct {
	store *MessageStore
}

func NewConversationQueries(store *MessageStore) *ConversationQueries {
	return &ConversationQueries{store: store}
}

// Conversation returns the full ordered conversation between two parties.
func (q *ConversationQueries) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	return q.store.QueryConversation(ctx, a, b)
}

// Summaries returns one summary per conversation partner for the viewer,
// ordered newest conversation first.
func (q *ConversationQueries) Summaries(ctx context.Context, viewerID string) ([]ConversationSummary, error) {
	msgs, err := q.store.QueryAllForUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return BuildSummaries(viewerID, msgs), nil
}

// UnreadCount returns the viewer's total unread message count.
func (q *ConversationQueries) UnreadCount(ctx context.Context, viewerID string) (int, error) {
	return q.store.CountUnread(ctx, viewerID)
}

// UrgentUnreadCount returns the viewer's unread count restricted to urgent
// messages.
func (q *ConversationQueries) UrgentUnreadCount(ctx context.Context, viewerID string) (int, error) {
	return q.store.CountUrgentUnread(ctx, viewerID)
}

// BuildSummaries aggregates the viewer's inbox (messages ordered newest
// first, as returned by QueryAllForUser) into per-partner summaries. The
// first message seen per partner is that conversation's latest, so the output
// preserves newest-conversation-first order.
func BuildSummaries(viewerID string, msgs []models.Message) []ConversationSummary {
	index := make(map[string]int)
	var out []ConversationSummary

	for _, m := range msgs {
		partner := m.PartnerOf(viewerID)
		if partner == "" {
			continue
		}

		i, ok := index[partner]
		if !ok {
			index[partner] = len(out)
			out = append(out, ConversationSummary{PartnerID: partner, LastMessage: m})
			i = len(out) - 1
		}

		if m.RecipientID == viewerID && !m.IsRead {
			out[i].UnreadCount++
			if m.IsUrgent {
				out[i].HasUrgentUnread = true
			}
		}
	}

	return out
}
