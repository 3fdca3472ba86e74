package processor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	gateway "github.com/nimasrn/smm-storefront/internal/gateways"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/services"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"gorm.io/datatypes"
)

const jobPageSize = 200

type EventPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// StatusSync polls the provider for every order it is working on and moves
// the order once the provider reports a final state.
type StatusSync struct {
	orders   OrderReader
	catalog  ServiceLookup
	status   StatusApplier
	provider ProviderClient
}

func NewStatusSync(orders OrderReader, catalog ServiceLookup, status StatusApplier, provider ProviderClient) *StatusSync {
	return &StatusSync{
		orders:   orders,
		catalog:  catalog,
		status:   status,
		provider: provider,
	}
}

type SyncResult struct {
	Checked int
	Changed int
	Errors  int
}

func (j *StatusSync) Name() string {
	return "status_sync"
}

func (j *StatusSync) Run(ctx context.Context) (SyncResult, error) {
	hasAPIOrder := true
	views, err := collectOrders(ctx, j.orders, model.OrderFilter{
		Statuses:    []model.OrderStatus{model.OrderStatusProcessing},
		HasAPIOrder: &hasAPIOrder,
	})
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	providers := newProviderNames(j.catalog)
	for _, view := range views {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++

		changed, err := j.syncOne(ctx, providers, &view.Order)
		if err != nil {
			result.Errors++
			logger.Warn("status sync failed", "order_id", view.ID, "error", err)
			continue
		}
		if changed {
			result.Changed++
		}
	}
	return result, nil
}

func (j *StatusSync) syncOne(ctx context.Context, providers *providerNames, order *model.Order) (bool, error) {
	providerName, err := providers.lookup(ctx, order.ServiceID)
	if err != nil {
		return false, err
	}

	remote, err := j.provider.GetOrderStatus(ctx, providerName, *order.APIOrderID)
	if err != nil {
		return false, err
	}

	next, ok := gateway.MapStatus(remote.Status)
	if !ok {
		logger.Warn("unknown provider status", "order_id", order.ID, "provider_status", remote.Status)
		return false, nil
	}
	if next == order.Status {
		return false, nil
	}

	_, err = j.status.ApplyStatus(ctx, model.SystemSession(), order.ID, model.OrderStatusUpdate{
		Status:      next,
		APIResponse: datatypes.JSON(remote.Raw),
	})
	if errors.Is(err, services.ErrInvalidTransition) {
		return false, nil
	}
	return err == nil, err
}

// PendingSweep re-enqueues pending orders that never reached the provider,
// for example because their event landed in the dead letter stream.
type PendingSweep struct {
	orders      OrderReader
	catalog     ServiceLookup
	events      EventPublisher
	idempotency *IdempotencyService
	maxAge      time.Duration
	now         func() time.Time
}

func NewPendingSweep(orders OrderReader, catalog ServiceLookup, events EventPublisher, idempotency *IdempotencyService, maxAge time.Duration) *PendingSweep {
	return &PendingSweep{
		orders:      orders,
		catalog:     catalog,
		events:      events,
		idempotency: idempotency,
		maxAge:      maxAge,
		now:         time.Now,
	}
}

func (j *PendingSweep) Name() string {
	return "pending_sweep"
}

func (j *PendingSweep) Run(ctx context.Context) (SyncResult, error) {
	hasAPIOrder := false
	until := j.now().Add(-j.maxAge)
	views, err := collectOrders(ctx, j.orders, model.OrderFilter{
		Statuses:     []model.OrderStatus{model.OrderStatusPending},
		HasAPIOrder:  &hasAPIOrder,
		CreatedUntil: &until,
	})
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	for _, view := range views {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++

		svc, err := j.catalog.Get(ctx, view.ServiceID)
		if err != nil {
			result.Errors++
			continue
		}
		if svc.APIServiceID == nil || *svc.APIServiceID == "" {
			continue
		}

		if err := j.idempotency.Forget(ctx, view.ID.String()); err != nil {
			result.Errors++
			logger.Warn("failed to reset fulfillment markers", "order_id", view.ID, "error", err)
			continue
		}
		event := model.OrderPlaced{
			OrderID:   view.ID,
			UserID:    view.UserID,
			ServiceID: view.ServiceID,
			PlacedAt:  view.CreatedAt,
		}
		if _, err := j.events.PublishJSON(ctx, event, map[string]string{"type": services.EventOrderPlaced, "source": j.Name()}); err != nil {
			result.Errors++
			logger.Warn("failed to re-enqueue order", "order_id", view.ID, "error", err)
			continue
		}
		result.Changed++
		logger.Info("pending order re-enqueued", "order_id", view.ID, "age", j.now().Sub(view.CreatedAt).String())
	}
	return result, nil
}

// collectOrders reads every page before the caller starts mutating, so that
// rows leaving the filter do not shift later pages.
func collectOrders(ctx context.Context, orders OrderReader, f model.OrderFilter) ([]*model.OrderView, error) {
	f.Limit = jobPageSize
	var all []*model.OrderView
	for {
		page, _, err := orders.List(ctx, f)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < f.Limit {
			return all, nil
		}
		f.Offset += len(page)
	}
}

// providerNames caches service -> provider name for one job run.
type providerNames struct {
	catalog ServiceLookup
	names   map[uuid.UUID]string
}

func newProviderNames(catalog ServiceLookup) *providerNames {
	return &providerNames{catalog: catalog, names: make(map[uuid.UUID]string)}
}

func (p *providerNames) lookup(ctx context.Context, serviceID uuid.UUID) (string, error) {
	if name, ok := p.names[serviceID]; ok {
		return name, nil
	}
	svc, err := p.catalog.Get(ctx, serviceID)
	if err != nil {
		return "", err
	}
	name := ""
	if svc.APIProvider != nil {
		name = *svc.APIProvider
	}
	p.names[serviceID] = name
	return name, nil
}
