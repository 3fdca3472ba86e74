package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/nimasrn/smm-storefront/pkg/prom"
)

const EventOrderPlaced = "order.placed"

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) (*model.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.OrderView, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from model.OrderStatus, update model.OrderStatusUpdate) (*model.Order, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type ServiceLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Service, error)
}

// EventPublisher hands events to the fulfillment stream.
type EventPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

type ChangePublisher interface {
	PublishOrderChange(ctx context.Context, change model.OrderChange) error
}

type OrderRefunder interface {
	RefundOrder(ctx context.Context, order *model.Order) (*model.Transaction, error)
}

type OrderService struct {
	orderRepo OrderRepository
	services  ServiceLookup
	roles     RoleChecker
	events    EventPublisher
	changes   ChangePublisher
	refunder  OrderRefunder
}

func NewOrderService(orderRepo OrderRepository, services ServiceLookup, roles RoleChecker, events EventPublisher, changes ChangePublisher, refunder OrderRefunder) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		services:  services,
		roles:     roles,
		events:    events,
		changes:   changes,
		refunder:  refunder,
	}
}

// Place validates the request against the catalog and stores a pending
// order. The amount is frozen here; no funds move until fulfillment.
func (s *OrderService) Place(ctx context.Context, session model.Session, req model.OrderCreateRequest) (*model.Order, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	if req.ServiceID == uuid.Nil {
		return nil, fmt.Errorf("%w: service_id", ErrMissingField)
	}
	target := strings.TrimSpace(req.TargetURL)
	if target == "" {
		return nil, fmt.Errorf("%w: target_url", ErrMissingField)
	}
	if !validTargetURL(target) {
		return nil, ErrInvalidTargetURL
	}

	svc, err := s.services.Get(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) || errors.Is(err, ErrServiceNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, unavailable("get service", err)
	}
	if !svc.Active {
		return nil, ErrServiceInactive
	}
	if !svc.Accepts(req.Quantity) {
		return nil, fmt.Errorf("%w: quantity must be between %d and %d", ErrInvalidQuantity, svc.MinQuantity, svc.MaxQuantity)
	}

	order := &model.Order{
		UserID:    session.UserID,
		ServiceID: svc.ID,
		Quantity:  req.Quantity,
		Amount:    svc.Cost(req.Quantity),
		TargetURL: target,
		Status:    model.OrderStatusPending,
	}

	created, err := s.orderRepo.Create(ctx, order)
	if err != nil {
		return nil, unavailable("create order", err)
	}
	prom.IncOrdersPlaced(svc.Category)
	logger.Info("order placed", "order_id", created.ID, "user_id", created.UserID, "service_id", svc.ID, "quantity", created.Quantity, "amount", created.Amount.String())

	// The row is committed before the event goes out so that a consumer never
	// reads a missing order. An order whose event is lost stays pending and
	// is re-enqueued by the pending sweep.
	event := model.OrderPlaced{
		OrderID:   created.ID,
		UserID:    created.UserID,
		ServiceID: created.ServiceID,
		PlacedAt:  created.CreatedAt,
	}
	if _, err := s.events.PublishJSON(ctx, event, map[string]string{"type": EventOrderPlaced}); err != nil {
		logger.Warn("order stored but not enqueued, left to the pending sweep", "order_id", created.ID, "error", err)
	}
	return created, nil
}

func validTargetURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// List returns the caller's orders, newest first.
func (s *OrderService) List(ctx context.Context, session model.Session, limit, offset int) ([]*model.OrderView, int64, error) {
	if err := requireUser(session); err != nil {
		return nil, 0, err
	}
	orders, total, err := s.orderRepo.ListByUser(ctx, session.UserID, limit, offset)
	if err != nil {
		return nil, 0, unavailable("list orders", err)
	}
	return orders, total, nil
}

// Get returns an order to its owner or to a privileged caller.
func (s *OrderService) Get(ctx context.Context, session model.Session, id uuid.UUID) (*model.Order, error) {
	if !session.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}
	order, err := s.orderRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, unavailable("get order", err)
	}
	if order.UserID != session.UserID {
		if err := requirePrivileged(ctx, s.roles, session); err != nil {
			if errors.Is(err, ErrForbidden) {
				return nil, ErrOrderNotFound
			}
			return nil, err
		}
	}
	return order, nil
}

// ApplyStatus moves an order along pending -> processing -> completed,
// with failed reachable from either non-terminal state. Reapplying the
// current status returns the order untouched. Failing a charged order
// refunds it in the same transaction.
func (s *OrderService) ApplyStatus(ctx context.Context, session model.Session, id uuid.UUID, update model.OrderStatusUpdate) (*model.Order, error) {
	if err := requirePrivileged(ctx, s.roles, session); err != nil {
		return nil, err
	}
	if !update.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, update.Status)
	}

	var (
		result   *model.Order
		previous model.OrderStatus
		changed  bool
	)
	err := s.orderRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := s.orderRepo.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrOrderNotFound) {
				return ErrOrderNotFound
			}
			return unavailable("get order", err)
		}

		if current.Status == update.Status {
			result = current
			return nil
		}
		if !current.Status.CanTransitionTo(update.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, update.Status)
		}

		updated, err := s.orderRepo.UpdateStatus(ctx, id, current.Status, update)
		if err != nil {
			if errors.Is(err, repository.ErrStatusChanged) {
				return fmt.Errorf("%w: order changed concurrently", ErrInvalidTransition)
			}
			return unavailable("update order", err)
		}

		if updated.Status == model.OrderStatusFailed && s.refunder != nil {
			if _, err := s.refunder.RefundOrder(ctx, updated); err != nil {
				return err
			}
		}

		result = updated
		previous = current.Status
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		prom.IncOrderTransition(string(previous), string(result.Status))
		logger.Info("order status changed", "order_id", id, "from", previous, "to", result.Status, "by", session.UserID)
		s.publishChange(ctx, result, previous)
	}
	return result, nil
}

func (s *OrderService) publishChange(ctx context.Context, order *model.Order, previous model.OrderStatus) {
	if s.changes == nil {
		return
	}
	change := model.OrderChange{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		Previous:   previous,
		APIOrderID: order.APIOrderID,
		UpdatedAt:  order.UpdatedAt,
	}
	if change.UpdatedAt.IsZero() {
		change.UpdatedAt = time.Now()
	}
	// subscribers reconcile by pulling, so a lost push is tolerated
	if err := s.changes.PublishOrderChange(ctx, change); err != nil {
		logger.Warn("order change not published", "order_id", order.ID, "error", err)
	}
}
