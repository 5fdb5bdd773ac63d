package channel

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medivuno/medivuno-backend/internal/models"
)

// DefaultBackoff is the fixed delay before a dropped subscription is retried.
const DefaultBackoff = 5 * time.Second

// receiver is the slice of redis.PubSub the subscriber loop needs.
type receiver interface {
	ReceiveMessage(ctx context.Context) (*redis.Message, error)
	Close() error
}

type subscribeFunc func(ctx context.Context, channelKey string) receiver

// EventChannel delivers near-real-time message and typing events over Redis
// pub/sub, one channel per user. Dropped subscriptions are retried forever
// with a fixed backoff; duplicate suppression across reconnects is the
// consumer's job (dedup by message id).
type EventChannel struct {
	rdb       *redis.Client
	backoff   time.Duration
	subscribe subscribeFunc
}

func New(rdb *redis.Client) *EventChannel {
	c := &EventChannel{rdb: rdb, backoff: DefaultBackoff}
	c.subscribe = func(ctx context.Context, channelKey string) receiver {
		return rdb.Subscribe(ctx, channelKey)
	}
	return c
}

// Subscription is a handle to one running channel subscription.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Unsubscribe tears down the underlying channel and its backoff timer, then
// waits for the delivery loop to exit. No callbacks fire after it returns.
func (s *Subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}

// SubscribeMessages delivers every message event targeted at userID:
// insertions where the user is sender or recipient (self-notifications
// included) and read-state updates for messages the user sent. onState, if
// non-nil, reports connection transitions.
func (c *EventChannel) SubscribeMessages(userID string, onEvent func(MessageEvent), onState func(connected bool)) *Subscription {
	return c.start(userChannel(userID), onState, func(payload []byte) {
		var evt MessageEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			log.Printf("event channel: bad message event: %v", err)
			return
		}
		onEvent(evt)
	})
}

// SubscribeTyping delivers typing broadcasts targeted at userID.
// Best-effort: nothing is replayed after a reconnect.
func (c *EventChannel) SubscribeTyping(userID string, onEvent func(TypingEvent)) *Subscription {
	return c.start(typingChannel(userID), nil, func(payload []byte) {
		var evt TypingEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return
		}
		onEvent(evt)
	})
}

func (c *EventChannel) start(channelKey string, onState func(bool), deliver func([]byte)) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go c.run(ctx, channelKey, onState, deliver, sub.done)
	return sub
}

// run is the per-subscription loop: Connecting → Subscribed → (error) →
// Connecting after a fixed backoff, forever, until the subscription context
// is cancelled. Events are only handed out while subscribed; nothing is
// buffered while connecting.
func (c *EventChannel) run(ctx context.Context, channelKey string, onState func(bool), deliver func([]byte), done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		rc := c.subscribe(ctx, channelKey)
		if onState != nil {
			onState(true)
		}

		for {
			msg, err := rc.ReceiveMessage(ctx)
			if err != nil {
				rc.Close()
				if onState != nil {
					onState(false)
				}
				if ctx.Err() != nil {
					return
				}
				log.Printf("event channel: subscription on %s dropped: %v (retrying in %s)", channelKey, err, c.backoff)
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.backoff):
				}
				break
			}
			deliver([]byte(msg.Payload))
		}
	}
}

// PublishMessage publishes a message-inserted event to both parties' channels
// so the sender's other open sessions observe the send too.
func (c *EventChannel) PublishMessage(ctx context.Context, msg models.Message) error {
	evt := MessageEvent{Type: EventTypeMessageNew, Message: &msg, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := c.rdb.Publish(ctx, userChannel(msg.SenderID), data).Err(); err != nil {
		return err
	}
	return c.rdb.Publish(ctx, userChannel(msg.RecipientID), data).Err()
}

// PublishRead notifies senderID that readerID marked all their messages as
// read, so read receipts propagate back to the sender's UI.
func (c *EventChannel) PublishRead(ctx context.Context, readerID, senderID string) error {
	evt := MessageEvent{Type: EventTypeMessageRead, ReaderID: readerID, SenderID: senderID, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, userChannel(senderID), data).Err()
}

// BroadcastTyping sends an ephemeral typing signal to toUserID. Fire and
// forget: callers swallow the error, typing indicators are non-critical.
func (c *EventChannel) BroadcastTyping(ctx context.Context, toUserID, fromUserID string, typing bool) error {
	evt := TypingEvent{
		FromUserID:      fromUserID,
		ConversationKey: models.ConversationKey(toUserID, fromUserID),
		IsTyping:        typing,
		Timestamp:       time.Now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, typingChannel(toUserID), data).Err()
}
