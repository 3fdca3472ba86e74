package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/nimasrn/smm-storefront/pkg/redis"
)

type Subscriber struct {
	adapter redis.RedisAdapter
	buffer  int
}

func NewSubscriber(adapter redis.RedisAdapter) *Subscriber {
	return &Subscriber{adapter: adapter, buffer: 64}
}

// Subscription delivers order changes until it is closed or its context
// ends. Events is closed afterwards; callers resubscribe and pull the order
// list again, since changes published while disconnected are lost.
type Subscription struct {
	pubsub *redis.PubSub
	events chan model.OrderChange
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe returns once redis confirmed the subscription, so no change
// published after it returns is missed.
func (s *Subscriber) Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	pubsub := s.adapter.Subscribe(ctx, Channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(userID), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		pubsub: pubsub,
		events: make(chan model.OrderChange, s.buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(ctx, userID)
	return sub, nil
}

func (s *Subscription) run(ctx context.Context, userID uuid.UUID) {
	defer close(s.done)
	defer close(s.events)

	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var change model.OrderChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				logger.Warn("dropping malformed order change", "user_id", userID, "error", err)
				continue
			}
			select {
			case s.events <- change:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Subscription) Events() <-chan model.OrderChange {
	return s.events
}

// Done is closed once the subscription stopped delivering.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}
