package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	gateway "github.com/nimasrn/smm-storefront/internal/gateways"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/queue"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/internal/services"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"gorm.io/datatypes"
)

type OrderReader interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Order, error)
	List(ctx context.Context, f model.OrderFilter) ([]*model.OrderView, int64, error)
}

type ServiceLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Service, error)
}

type StatusApplier interface {
	ApplyStatus(ctx context.Context, session model.Session, id uuid.UUID, update model.OrderStatusUpdate) (*model.Order, error)
}

type OrderCharger interface {
	DebitOrder(ctx context.Context, order *model.Order) (*model.Transaction, error)
}

type ProviderClient interface {
	AddOrder(ctx context.Context, provider string, req gateway.AddOrderRequest) (*gateway.AddOrderResponse, error)
	GetOrderStatus(ctx context.Context, provider, apiOrderID string) (*gateway.OrderStatus, error)
}

// FulfillmentProcessor turns an order.placed event into a charged order
// that the provider is working on, or into a failed one.
type FulfillmentProcessor struct {
	orders      OrderReader
	catalog     ServiceLookup
	status      StatusApplier
	ledger      OrderCharger
	provider    ProviderClient
	idempotency *IdempotencyService
}

func NewFulfillmentProcessor(orders OrderReader, catalog ServiceLookup, status StatusApplier, ledger OrderCharger, provider ProviderClient, idempotency *IdempotencyService) *FulfillmentProcessor {
	return &FulfillmentProcessor{
		orders:      orders,
		catalog:     catalog,
		status:      status,
		ledger:      ledger,
		provider:    provider,
		idempotency: idempotency,
	}
}

func (p *FulfillmentProcessor) GetType() string {
	return services.EventOrderPlaced
}

// Process returns nil to ack the event and an error to have it redelivered.
func (p *FulfillmentProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var event model.OrderPlaced
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.Error("malformed order event", "stream_id", msg.ID, "error", err)
		return fmt.Errorf("malformed order event %s: %w", msg.ID, err)
	}
	if event.OrderID == uuid.Nil {
		return fmt.Errorf("order event %s has no order id", msg.ID)
	}
	key := event.OrderID.String()

	pc, err := p.idempotency.AcquireProcessingLock(ctx, key)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Info("order already fulfilled, skipping", "order_id", key)
		return nil
	case errors.Is(err, ErrMaxRetriesExceeded):
		logger.Error("giving up on order", "order_id", key, "error", err)
		p.fail(ctx, event.OrderID, map[string]string{"error": "fulfillment attempts exhausted"})
		return nil
	case err != nil:
		return err
	}
	defer func() {
		_ = p.idempotency.ReleaseLock(ctx, pc)
	}()

	done, err := p.fulfill(ctx, event.OrderID, pc)
	if err != nil && done {
		logger.Error("order needs manual reconciliation", "order_id", key, "error", err)
		err = nil
	}
	if err != nil {
		if markErr := p.idempotency.MarkFailure(ctx, pc, err); markErr != nil {
			logger.Error("failed to mark failure", "order_id", key, "error", markErr)
		}
		return err
	}
	if done {
		if markErr := p.idempotency.MarkSuccess(ctx, pc); markErr != nil {
			logger.Error("failed to mark success", "order_id", key, "error", markErr)
		}
	}
	return nil
}

// fulfill reports done=true when the order needs no further event delivery,
// even when err is set.
func (p *FulfillmentProcessor) fulfill(ctx context.Context, orderID uuid.UUID, pc *ProcessingContext) (bool, error) {
	order, err := p.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			// the insert that published this event was rolled back
			logger.Warn("order event without order, dropping", "order_id", orderID)
			return true, nil
		}
		return false, fmt.Errorf("get order: %w", err)
	}
	if order.Status != model.OrderStatusPending || order.APIOrderID != nil {
		return true, nil
	}

	logger.Info("fulfilling order",
		"order_id", order.ID,
		"user_id", order.UserID,
		"amount", order.Amount.String(),
		"retry_count", pc.RetryCount)

	if _, err := p.ledger.DebitOrder(ctx, order); err != nil {
		if errors.Is(err, services.ErrInsufficientBalance) || errors.Is(err, services.ErrProfileNotFound) {
			logger.Warn("order cannot be charged", "order_id", order.ID, "error", err)
			return p.failed(ctx, order.ID, err)
		}
		return false, fmt.Errorf("debit order: %w", err)
	}

	svc, err := p.catalog.Get(ctx, order.ServiceID)
	if err != nil {
		return false, fmt.Errorf("get service: %w", err)
	}
	if svc.APIServiceID == nil || *svc.APIServiceID == "" {
		logger.Info("service has no provider mapping, left for manual fulfillment", "order_id", order.ID, "service_id", svc.ID)
		return true, nil
	}
	providerName := ""
	if svc.APIProvider != nil {
		providerName = *svc.APIProvider
	}

	accepted, err := p.provider.AddOrder(ctx, providerName, gateway.AddOrderRequest{
		Service:  *svc.APIServiceID,
		Link:     order.TargetURL,
		Quantity: order.Quantity,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrRejected) || errors.Is(err, gateway.ErrUnknownProvider) {
			logger.Warn("provider refused order", "order_id", order.ID, "provider", providerName, "error", err)
			return p.failed(ctx, order.ID, err)
		}
		return false, fmt.Errorf("submit order: %w", err)
	}

	apiOrderID := accepted.OrderID
	_, err = p.status.ApplyStatus(ctx, model.SystemSession(), order.ID, model.OrderStatusUpdate{
		Status:      model.OrderStatusProcessing,
		APIOrderID:  &apiOrderID,
		APIResponse: datatypes.JSON(accepted.Raw),
	})
	if err != nil {
		// the provider already holds this order; a redelivery would submit it twice
		logger.Error("provider accepted order but it was not recorded", "order_id", order.ID, "api_order_id", apiOrderID, "error", err)
		return true, err
	}
	return true, nil
}

func (p *FulfillmentProcessor) failed(ctx context.Context, id uuid.UUID, cause error) (bool, error) {
	if err := p.applyFailed(ctx, id, map[string]string{"error": cause.Error()}); err != nil {
		return false, fmt.Errorf("fail order: %w", err)
	}
	return true, nil
}

func (p *FulfillmentProcessor) applyFailed(ctx context.Context, id uuid.UUID, reason map[string]string) error {
	raw, _ := json.Marshal(reason)
	_, err := p.status.ApplyStatus(ctx, model.SystemSession(), id, model.OrderStatusUpdate{
		Status:      model.OrderStatusFailed,
		APIResponse: datatypes.JSON(raw),
	})
	if errors.Is(err, services.ErrInvalidTransition) {
		// an admin settled the order in the meantime
		return nil
	}
	return err
}

func (p *FulfillmentProcessor) fail(ctx context.Context, id uuid.UUID, reason map[string]string) {
	if err := p.applyFailed(ctx, id, reason); err != nil && !errors.Is(err, services.ErrOrderNotFound) {
		logger.Error("failed to fail order", "order_id", id, "error", err)
	}
}
