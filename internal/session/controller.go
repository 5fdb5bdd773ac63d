package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medivuno/medivuno-backend/internal/channel"
	"github.com/medivuno/medivuno-backend/internal/models"
)

// DeliveryStatus tags a session entry's place in the optimistic-send
// lifecycle.
type DeliveryStatus string

const (
	// StatusPending: sent optimistically, awaiting server confirmation.
	StatusPending DeliveryStatus = "pending"
	// StatusConfirmed: persisted with a server id.
	StatusConfirmed DeliveryStatus = "confirmed"
	// StatusFailed: the pending fail-safe elapsed without an outcome. The
	// entry stays visible and still merges if the confirmed event arrives
	// later.
	StatusFailed DeliveryStatus = "failed"
)

// Entry is one message as the session sees it: the message plus its delivery
// status. Optimistic entries carry a LocalID and no server id until
// reconciliation replaces them with the confirmed message.
type Entry struct {
	models.Message
	Status  DeliveryStatus `json:"status"`
	LocalID string         `json:"local_id,omitempty"`
}

// Store is the slice of the Message Store the controller consumes.
type Store interface {
	InsertMessage(ctx context.Context, senderID, recipientID, text string, urgent bool, file *models.FileRef) (*models.Message, error)
	MarkRead(ctx context.Context, recipientID, senderID string) error
	QueryAllForUser(ctx context.Context, userID string) ([]models.Message, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Subscription is a cancelable event-channel subscription.
type Subscription interface {
	Unsubscribe()
}

// Channel is the slice of the Event Channel the controller consumes.
type Channel interface {
	SubscribeMessages(userID string, onEvent func(channel.MessageEvent), onState func(connected bool)) Subscription
	SubscribeTyping(userID string, onEvent func(channel.TypingEvent)) Subscription
	PublishMessage(ctx context.Context, msg models.Message) error
	PublishRead(ctx context.Context, readerID, senderID string) error
	BroadcastTyping(ctx context.Context, toUserID, fromUserID string, typing bool) error
}

// WrapChannel adapts the concrete event channel to the Channel interface
// consumed here (the concrete subscribe methods return a concrete handle).
func WrapChannel(ec *channel.EventChannel) Channel {
	return channelAdapter{ec}
}

type channelAdapter struct {
	*channel.EventChannel
}

func (a channelAdapter) SubscribeMessages(userID string, onEvent func(channel.MessageEvent), onState func(bool)) Subscription {
	return a.EventChannel.SubscribeMessages(userID, onEvent, onState)
}

func (a channelAdapter) SubscribeTyping(userID string, onEvent func(channel.TypingEvent)) Subscription {
	return a.EventChannel.SubscribeTyping(userID, onEvent)
}

// Options sets the controller's timing knobs. Zero values take the defaults
// below, which match observed production behavior.
type Options struct {
	LoadTimeout    time.Duration // guard on initial history load (10s)
	PendingTimeout time.Duration // fail-safe on optimistic sends (10s)
	TypingAutoStop time.Duration // quiet period before auto stop-typing (3s)
	TypingExpiry   time.Duration // hard expiry of a remote typing flag (5s)
	MarkReadDelay  time.Duration // debounce before auto mark-read (1s)
}

func (o *Options) withDefaults() {
	if o.LoadTimeout == 0 {
		o.LoadTimeout = 10 * time.Second
	}
	if o.PendingTimeout == 0 {
		o.PendingTimeout = 10 * time.Second
	}
	if o.TypingAutoStop == 0 {
		o.TypingAutoStop = 3 * time.Second
	}
	if o.TypingExpiry == 0 {
		o.TypingExpiry = 5 * time.Second
	}
	if o.MarkReadDelay == 0 {
		o.MarkReadDelay = 1 * time.Second
	}
}

// State is the reactive snapshot the presentation surface consumes.
type State struct {
	Messages        []Entry  `json:"messages"`
	IsConnected     bool     `json:"is_connected"`
	UnreadCount     int      `json:"unread_count"`
	TypingUsers     []string `json:"typing_users"`
	PendingMessages []string `json:"pending_messages"`
}

// ErrClosed is returned by operations on a torn-down controller.
var ErrClosed = errors.New("session: controller closed")

// Controller is the per-session chat state machine. It loads history,
// subscribes to the user's event channel, sends with optimistic local
// insertion, reconciles optimistic entries against confirmed events, tracks
// read and typing state, and reflects channel health as IsConnected.
//
// The in-memory message list is a read-through cache with optimistic
// write-ahead entries on top; it is never authoritative for the unread count,
// which is re-fetched from the store after every mutation.
type Controller struct {
	userID string
	store  Store
	events Channel
	opts   Options
	timers *timerArena

	mu          sync.Mutex
	selected    string
	entries     []Entry
	pending     map[string]struct{}
	typingUsers map[string]struct{}
	connected   bool
	unread      int
	closed      bool

	msgSub    Subscription
	typingSub Subscription
	updates   chan struct{}
}

// New builds a controller for one user session. Call Start to subscribe and
// Close to tear down.
func New(userID string, store Store, events Channel, opts Options) *Controller {
	opts.withDefaults()
	return &Controller{
		userID:      userID,
		store:       store,
		events:      events,
		opts:        opts,
		timers:      newTimerArena(),
		pending:     make(map[string]struct{}),
		typingUsers: make(map[string]struct{}),
		updates:     make(chan struct{}, 1),
	}
}

// Start opens the message and typing subscriptions. Changing the selected
// contact later never re-subscribes; the subscription is per user, not per
// conversation.
func (c *Controller) Start() {
	c.msgSub = c.events.SubscribeMessages(c.userID, c.handleMessageEvent, c.handleConnState)
	c.typingSub = c.events.SubscribeTyping(c.userID, c.handleTypingEvent)
}

// Close unsubscribes and cancels every outstanding timer. After Close
// returns, no callback touches the controller again.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.msgSub != nil {
		c.msgSub.Unsubscribe()
	}
	if c.typingSub != nil {
		c.typingSub.Unsubscribe()
	}
	c.timers.CancelAll()
}

// Updates signals (coalesced) whenever the snapshot changed.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Messages:        make([]Entry, len(c.entries)),
		IsConnected:     c.connected,
		UnreadCount:     c.unread,
		TypingUsers:     make([]string, 0, len(c.typingUsers)),
		PendingMessages: make([]string, 0, len(c.pending)),
	}
	copy(st.Messages, c.entries)
	for id := range c.typingUsers {
		st.TypingUsers = append(st.TypingUsers, id)
	}
	for id := range c.pending {
		st.PendingMessages = append(st.PendingMessages, id)
	}
	sort.Strings(st.TypingUsers)
	sort.Strings(st.PendingMessages)
	return st
}

// SelectContact changes which conversation is open. Only read-marking and
// filtering are affected.
func (c *Controller) SelectContact(contactID string) {
	c.mu.Lock()
	c.selected = contactID
	c.mu.Unlock()
	c.notify()
}

// LoadMessages fetches the user's full inbox and unread count. Failures
// degrade to an empty state rather than leaving the caller hanging; the
// context deadline guards against a store call that never settles.
func (c *Controller) LoadMessages(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.LoadTimeout)
	defer cancel()

	msgs, err := c.store.QueryAllForUser(ctx, c.userID)
	if err != nil {
		log.Printf("session: load messages for %s failed: %v", c.userID, err)
		c.replaceMessages(nil, 0)
		return
	}

	unread, err := c.store.CountUnread(ctx, c.userID)
	if err != nil {
		log.Printf("session: unread count for %s failed: %v", c.userID, err)
		c.replaceMessages(nil, 0)
		return
	}

	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, Entry{Message: m, Status: StatusConfirmed})
	}
	// Inbox query is newest-first; the session list is kept ascending.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	c.replaceMessages(entries, unread)
}

func (c *Controller) replaceMessages(entries []Entry, unread int) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.entries = entries
	c.unread = unread
	c.mu.Unlock()
	c.notify()
}

// SendMessage sends a plain text message with optimistic local insertion and
// returns the confirmed message. On store failure the optimistic entry is
// rolled back and the error propagates; the caller decides how to surface it.
func (c *Controller) SendMessage(ctx context.Context, recipientID, text string, urgent bool) (*models.Message, error) {
	return c.send(ctx, recipientID, text, urgent, nil)
}

// SendFile sends a message carrying an already-uploaded attachment, with an
// optional text caption.
func (c *Controller) SendFile(ctx context.Context, recipientID string, file models.FileRef, caption string, urgent bool) (*models.Message, error) {
	return c.send(ctx, recipientID, caption, urgent, &file)
}

func (c *Controller) send(ctx context.Context, recipientID, text string, urgent bool, file *models.FileRef) (*models.Message, error) {
	localID := uuid.NewString()
	optimistic := Entry{
		Message: models.Message{
			SenderID:    c.userID,
			RecipientID: recipientID,
			Text:        text,
			Timestamp:   time.Now().UTC(),
			IsUrgent:    urgent,
		},
		Status:  StatusPending,
		LocalID: localID,
	}
	if file != nil {
		optimistic.FileURL = file.URL
		optimistic.FileName = file.Name
		optimistic.FileType = file.Type
		optimistic.FileSize = file.Size
		optimistic.MimeType = file.MimeType
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.entries = append(c.entries, optimistic)
	c.pending[localID] = struct{}{}
	c.mu.Unlock()
	c.notify()

	// Fail-safe: stop reporting "sending" after the timeout even though the
	// true outcome is unknown. The entry stays; a late confirmed event still
	// merges through the dedup path.
	c.timers.Set(pendingKey(localID), c.opts.PendingTimeout, func() {
		c.mu.Lock()
		if _, ok := c.pending[localID]; ok {
			delete(c.pending, localID)
			if i := c.indexByLocalID(localID); i >= 0 {
				c.entries[i].Status = StatusFailed
			}
		}
		c.mu.Unlock()
		c.notify()
	})

	saved, err := c.store.InsertMessage(ctx, c.userID, recipientID, text, urgent, file)
	if err != nil {
		c.timers.Cancel(pendingKey(localID))
		c.mu.Lock()
		delete(c.pending, localID)
		c.removeByLocalID(localID)
		c.mu.Unlock()
		c.notify()
		return nil, fmt.Errorf("send message: %w", err)
	}

	// Derived event for both parties' channels; our own echo is deduped below.
	if err := c.events.PublishMessage(ctx, *saved); err != nil {
		log.Printf("session: publish message %s failed: %v", saved.ID, err)
	}

	c.timers.Cancel(pendingKey(localID))
	c.mu.Lock()
	delete(c.pending, localID)
	c.removeByLocalID(localID)
	if c.indexByID(saved.ID) < 0 {
		// The echoed event did not beat us back; append the confirmed entry.
		c.insertSorted(Entry{Message: *saved, Status: StatusConfirmed})
	}
	c.mu.Unlock()
	c.notify()

	// Sending implies the user stopped typing.
	if c.timers.Active(typingStopKey(recipientID)) {
		c.StopTyping(recipientID)
	}

	return saved, nil
}

// MarkConversationAsRead flips every unread message from contactID in the
// store, then locally, then re-fetches the unread count from the store so it
// stays authoritative under multi-tab use.
func (c *Controller) MarkConversationAsRead(ctx context.Context, contactID string) error {
	if contactID == "" {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.timers.Cancel(markReadKey(contactID))

	if err := c.store.MarkRead(ctx, c.userID, contactID); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}

	c.mu.Lock()
	for i := range c.entries {
		e := &c.entries[i]
		if e.SenderID == contactID && e.RecipientID == c.userID {
			e.IsRead = true
		}
	}
	c.mu.Unlock()

	if err := c.events.PublishRead(ctx, c.userID, contactID); err != nil {
		log.Printf("session: publish read receipt to %s failed: %v", contactID, err)
	}

	if unread, err := c.store.CountUnread(ctx, c.userID); err == nil {
		c.mu.Lock()
		c.unread = unread
		c.mu.Unlock()
	} else {
		log.Printf("session: unread refresh failed: %v", err)
	}

	c.notify()
	return nil
}

// StartTyping broadcasts a typing indicator and (re)arms the auto-stop timer.
// Each keystroke restarts the quiet period.
func (c *Controller) StartTyping(recipientID string) {
	c.broadcastTyping(recipientID, true)
	c.timers.Set(typingStopKey(recipientID), c.opts.TypingAutoStop, func() {
		c.broadcastTyping(recipientID, false)
	})
}

// StopTyping cancels the auto-stop timer and broadcasts stop immediately.
// Called on blur and on send.
func (c *Controller) StopTyping(recipientID string) {
	c.timers.Cancel(typingStopKey(recipientID))
	c.broadcastTyping(recipientID, false)
}

func (c *Controller) broadcastTyping(recipientID string, typing bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// Typing indicators are non-critical; failures are swallowed.
	if err := c.events.BroadcastTyping(ctx, recipientID, c.userID, typing); err != nil {
		log.Printf("session: typing broadcast to %s failed: %v", recipientID, err)
	}
}

// ConversationMessages is a pure filter over the session's messages for the
// conversation with contactID, ascending by timestamp. Empty contactID
// returns nil.
func (c *Controller) ConversationMessages(contactID string) []Entry {
	if contactID == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Entry
	for _, e := range c.entries {
		if e.InConversation(c.userID, contactID) {
			out = append(out, e)
		}
	}
	return out
}

func (c *Controller) handleConnState(connected bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.connected = connected
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) handleMessageEvent(evt channel.MessageEvent) {
	switch evt.Type {
	case channel.EventTypeMessageNew:
		if evt.Message != nil {
			c.ingestMessage(*evt.Message)
		}
	case channel.EventTypeMessageRead:
		c.ingestReadReceipt(evt.ReaderID)
	}
}

func (c *Controller) ingestMessage(m models.Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	// Dedup by server id: covers both the echo of our own send and
	// re-delivery after a channel reconnect.
	if c.indexByID(m.ID) >= 0 {
		c.mu.Unlock()
		return
	}

	if m.SenderID == c.userID && len(c.pending) > 0 {
		// Our own echo arrived before the insert call returned: merge into
		// the matching optimistic entry instead of appending a second bubble.
		if i := c.matchPending(&m); i >= 0 {
			localID := c.entries[i].LocalID
			delete(c.pending, localID)
			c.entries[i] = Entry{Message: m, Status: StatusConfirmed}
			c.mu.Unlock()
			c.timers.Cancel(pendingKey(localID))
			c.notify()
			return
		}
	}

	c.insertSorted(Entry{Message: m, Status: StatusConfirmed})

	fromSelected := false
	if m.SenderID != c.userID {
		// Optimistic local increment; corrected on the next CountUnread.
		c.unread++
		fromSelected = m.SenderID == c.selected
	}
	sender := m.SenderID
	c.mu.Unlock()
	c.notify()

	if fromSelected {
		// Let the message render before flipping it read.
		c.timers.Set(markReadKey(sender), c.opts.MarkReadDelay, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.MarkConversationAsRead(ctx, sender); err != nil && !errors.Is(err, ErrClosed) {
				log.Printf("session: auto mark-read for %s failed: %v", sender, err)
			}
		})
	}
}

func (c *Controller) ingestReadReceipt(readerID string) {
	if readerID == "" {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	for i := range c.entries {
		e := &c.entries[i]
		if e.SenderID == c.userID && e.RecipientID == readerID {
			e.IsRead = true
		}
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) handleTypingEvent(evt channel.TypingEvent) {
	if evt.FromUserID == "" || evt.FromUserID == c.userID {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if evt.IsTyping {
		c.typingUsers[evt.FromUserID] = struct{}{}
	} else {
		delete(c.typingUsers, evt.FromUserID)
	}
	c.mu.Unlock()

	if evt.IsTyping {
		// Hard expiry in case the stop broadcast is lost.
		c.timers.Set(typingExpireKey(evt.FromUserID), c.opts.TypingExpiry, func() {
			c.mu.Lock()
			delete(c.typingUsers, evt.FromUserID)
			c.mu.Unlock()
			c.notify()
		})
	} else {
		c.timers.Cancel(typingExpireKey(evt.FromUserID))
	}
	c.notify()
}

func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// indexByID finds an entry by server id. Callers hold c.mu.
func (c *Controller) indexByID(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.entries {
		if c.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// indexByLocalID finds an optimistic entry. Callers hold c.mu.
func (c *Controller) indexByLocalID(localID string) int {
	for i := range c.entries {
		if c.entries[i].LocalID == localID {
			return i
		}
	}
	return -1
}

func (c *Controller) removeByLocalID(localID string) {
	if i := c.indexByLocalID(localID); i >= 0 {
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
	}
}

// matchPending finds the oldest pending entry matching the confirmed
// message's conversation and content. Callers hold c.mu.
func (c *Controller) matchPending(m *models.Message) int {
	for i := range c.entries {
		e := &c.entries[i]
		if e.Status != StatusPending && e.Status != StatusFailed {
			continue
		}
		if e.LocalID == "" {
			continue
		}
		if _, ok := c.pending[e.LocalID]; !ok && e.Status == StatusPending {
			continue
		}
		if e.SenderID == m.SenderID && e.RecipientID == m.RecipientID &&
			e.Text == m.Text && e.FileURL == m.FileURL {
			return i
		}
	}
	return -1
}

// insertSorted places a confirmed entry keeping the list ascending by
// timestamp. Most inserts land at the tail. Callers hold c.mu.
func (c *Controller) insertSorted(e Entry) {
	i := len(c.entries)
	for i > 0 && c.entries[i-1].Timestamp.After(e.Timestamp) {
		i--
	}
	c.entries = append(c.entries, Entry{})
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = e
}

func pendingKey(localID string) string      { return "pending:" + localID }
func typingStopKey(recipient string) string { return "typing-stop:" + recipient }
func typingExpireKey(from string) string    { return "typing-expire:" + from }
func markReadKey(contact string) string     { return "mark-read:" + contact }
