package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusFailed},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusFailed},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusFailed:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// Rank orders statuses along the lifecycle. Both terminal statuses share
// the top rank; unknown statuses rank below pending.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderStatusPending:
		return 1
	case OrderStatusProcessing:
		return 2
	case OrderStatusCompleted, OrderStatusFailed:
		return 3
	}
	return 0
}

// CanTransitionTo reports whether next is a forward move from s. Staying in
// the same status is not a transition; callers treat it as a no-op.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Order struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	ServiceID   uuid.UUID       `json:"service_id"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	TargetURL   string          `json:"target_url"`
	Status      OrderStatus     `json:"status"`
	APIOrderID  *string         `json:"api_order_id,omitempty"`
	APIResponse datatypes.JSON  `json:"api_response,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OrderView is an order joined with the service fields shown next to it.
type OrderView struct {
	Order
	ServiceName     string `json:"service_name"`
	ServiceCategory string `json:"service_category"`
}

type OrderCreateRequest struct {
	ServiceID uuid.UUID `json:"service_id"`
	Quantity  int       `json:"quantity"`
	TargetURL string    `json:"target_url"`
}

// OrderStatusUpdate is what the fulfillment side reports for an order. Nil
// fields keep their stored value.
type OrderStatusUpdate struct {
	Status      OrderStatus    `json:"status"`
	APIOrderID  *string        `json:"api_order_id,omitempty"`
	APIResponse datatypes.JSON `json:"api_response,omitempty"`
}

type OrderFilter struct {
	UserID       *uuid.UUID
	Statuses     []OrderStatus
	HasAPIOrder  *bool
	CreatedUntil *time.Time
	Limit        int // default 50, max 1000
	Offset       int
}

func (f *OrderFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// OrderPlaced is the event handed to the fulfillment stream.
type OrderPlaced struct {
	OrderID   uuid.UUID `json:"order_id"`
	UserID    uuid.UUID `json:"user_id"`
	ServiceID uuid.UUID `json:"service_id"`
	PlacedAt  time.Time `json:"placed_at"`
}

// OrderChange is published on a user's feed whenever an order status moves.
type OrderChange struct {
	OrderID    uuid.UUID   `json:"order_id"`
	UserID     uuid.UUID   `json:"user_id"`
	Status     OrderStatus `json:"status"`
	Previous   OrderStatus `json:"previous"`
	APIOrderID *string     `json:"api_order_id,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
