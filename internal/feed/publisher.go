package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/redis"
)

// Channel is the pub/sub channel carrying one user's order changes.
func Channel(userID uuid.UUID) string {
	return "orders:" + userID.String()
}

type Publisher struct {
	adapter redis.RedisAdapter
}

func NewPublisher(adapter redis.RedisAdapter) *Publisher {
	return &Publisher{adapter: adapter}
}

func (p *Publisher) PublishOrderChange(ctx context.Context, change model.OrderChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal order change: %w", err)
	}
	if err := p.adapter.Publish(ctx, Channel(change.UserID), payload); err != nil {
		return fmt.Errorf("publish order change: %w", err)
	}
	return nil
}
