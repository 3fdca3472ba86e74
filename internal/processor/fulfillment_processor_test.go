package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	gateway "github.com/nimasrn/smm-storefront/internal/gateways"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/queue"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fulfillmentDeps struct {
	orders   *MockOrderReader
	catalog  *MockServiceLookup
	status   *MockStatusApplier
	ledger   *MockOrderCharger
	provider *MockProviderClient
	idem     *IdempotencyService
}

func newFulfillment(t *testing.T) (*FulfillmentProcessor, *fulfillmentDeps) {
	_, adapter := setupTestRedis(t)
	d := &fulfillmentDeps{
		orders:   new(MockOrderReader),
		catalog:  new(MockServiceLookup),
		status:   new(MockStatusApplier),
		ledger:   new(MockOrderCharger),
		provider: new(MockProviderClient),
		idem:     NewIdempotencyService(adapter, testIdempotencyConfig()),
	}
	return NewFulfillmentProcessor(d.orders, d.catalog, d.status, d.ledger, d.provider, d.idem), d
}

func pendingOrder(serviceID uuid.UUID) *model.Order {
	return &model.Order{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ServiceID: serviceID,
		Quantity:  1000,
		Amount:    decimal.NewFromInt(50),
		TargetURL: "https://instagram.com/p/abc",
		Status:    model.OrderStatusPending,
	}
}

func mappedService() *model.Service {
	return &model.Service{
		ID:           uuid.New(),
		Name:         "Instagram Likes",
		APIProvider:  strPtr("panel"),
		APIServiceID: strPtr("101"),
		Active:       true,
	}
}

func eventFor(t *testing.T, order *model.Order) *queue.Message {
	data, err := json.Marshal(model.OrderPlaced{OrderID: order.ID, UserID: order.UserID, ServiceID: order.ServiceID})
	require.NoError(t, err)
	return &queue.Message{ID: "1-0", Data: data}
}

func statusIs(status model.OrderStatus) interface{} {
	return mock.MatchedBy(func(u model.OrderStatusUpdate) bool { return u.Status == status })
}

func TestFulfillment_SubmitsToProvider(t *testing.T) {
	p, d := newFulfillment(t)
	ctx := context.Background()
	svc := mappedService()
	order := pendingOrder(svc.ID)

	d.orders.On("Get", mock.Anything, order.ID).Return(order, nil)
	d.ledger.On("DebitOrder", mock.Anything, order).Return(&model.Transaction{}, nil)
	d.catalog.On("Get", mock.Anything, svc.ID).Return(svc, nil)
	d.provider.On("AddOrder", mock.Anything, "panel", gateway.AddOrderRequest{Service: "101", Link: order.TargetURL, Quantity: 1000}).
		Return(&gateway.AddOrderResponse{OrderID: "9001", Raw: json.RawMessage(`{"order":9001}`)}, nil)
	d.status.On("ApplyStatus", mock.Anything, model.SystemSession(), order.ID, mock.MatchedBy(func(u model.OrderStatusUpdate) bool {
		return u.Status == model.OrderStatusProcessing && *u.APIOrderID == "9001" && string(u.APIResponse) == `{"order":9001}`
	})).Return(order, nil)

	require.NoError(t, p.Process(ctx, eventFor(t, order)))

	processed, err := d.idem.IsProcessed(ctx, order.ID.String())
	require.NoError(t, err)
	assert.True(t, processed)

	// a redelivery is acked without touching anything
	require.NoError(t, p.Process(ctx, eventFor(t, order)))
	d.provider.AssertNumberOfCalls(t, "AddOrder", 1)
}

func TestFulfillment_InsufficientBalanceFailsOrder(t *testing.T) {
	p, d := newFulfillment(t)
	svc := mappedService()
	order := pendingOrder(svc.ID)

	d.orders.On("Get", mock.Anything, order.ID).Return(order, nil)
	d.ledger.On("DebitOrder", mock.Anything, order).Return(nil, services.ErrInsufficientBalance)
	d.status.On("ApplyStatus", mock.Anything, mock.Anything, order.ID, statusIs(model.OrderStatusFailed)).Return(order, nil)

	require.NoError(t, p.Process(context.Background(), eventFor(t, order)))
	d.provider.AssertNotCalled(t, "AddOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestFulfillment_ProviderRejectionFailsOrder(t *testing.T) {
	p, d := newFulfillment(t)
	svc := mappedService()
	order := pendingOrder(svc.ID)

	d.orders.On("Get", mock.Anything, order.ID).Return(order, nil)
	d.ledger.On("DebitOrder", mock.Anything, order).Return(&model.Transaction{}, nil)
	d.catalog.On("Get", mock.Anything, svc.ID).Return(svc, nil)
	d.provider.On("AddOrder", mock.Anything, "panel", mock.Anything).Return(nil, gateway.ErrRejected)
	d.status.On("ApplyStatus", mock.Anything, mock.Anything, order.ID, mock.MatchedBy(func(u model.OrderStatusUpdate) bool {
		return u.Status == model.OrderStatusFailed && len(u.APIResponse) > 0
	})).Return(order, nil)

	require.NoError(t, p.Process(context.Background(), eventFor(t, order)))
	d.status.AssertExpectations(t)
}

func TestFulfillment_TransientProviderErrorRetries(t *testing.T) {
	p, d := newFulfillment(t)
	ctx := context.Background()
	svc := mappedService()
	order := pendingOrder(svc.ID)

	d.orders.On("Get", mock.Anything, order.ID).Return(order, nil)
	d.ledger.On("DebitOrder", mock.Anything, order).Return(nil, nil)
	d.catalog.On("Get", mock.Anything, svc.ID).Return(svc, nil)
	d.provider.On("AddOrder", mock.Anything, "panel", mock.Anything).Return(nil, errors.New("connection reset"))

	err := p.Process(ctx, eventFor(t, order))
	assert.Error(t, err)
	d.status.AssertNotCalled(t, "ApplyStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	count, err := d.idem.GetRetryCount(ctx, order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFulfillment_GivesUpAfterMaxRetries(t *testing.T) {
	p, d := newFulfillment(t)
	ctx := context.Background()
	order := pendingOrder(uuid.New())

	for i := 0; i < 3; i++ {
		pc, err := d.idem.AcquireProcessingLock(ctx, order.ID.String())
		require.NoError(t, err)
		require.NoError(t, d.idem.MarkFailure(ctx, pc, errors.New("boom")))
	}
	d.status.On("ApplyStatus", mock.Anything, mock.Anything, order.ID, statusIs(model.OrderStatusFailed)).Return(order, nil)

	require.NoError(t, p.Process(ctx, eventFor(t, order)))
	d.status.AssertExpectations(t)
	d.orders.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestFulfillment_MissingOrderIsAcked(t *testing.T) {
	p, d := newFulfillment(t)
	order := pendingOrder(uuid.New())
	d.orders.On("Get", mock.Anything, order.ID).Return(nil, repository.ErrOrderNotFound)

	require.NoError(t, p.Process(context.Background(), eventFor(t, order)))
	d.ledger.AssertNotCalled(t, "DebitOrder", mock.Anything, mock.Anything)
}

func TestFulfillment_SkipsSettledOrders(t *testing.T) {
	p, d := newFulfillment(t)
	order := pendingOrder(uuid.New())
	order.Status = model.OrderStatusCompleted
	d.orders.On("Get", mock.Anything, order.ID).Return(order, nil)

	require.NoError(t, p.Process(context.Background(), eventFor(t, order)))
	d.ledger.AssertNotCalled(t, "DebitOrder", mock.Anything, mock.Anything)
}

func TestFulfillment_ManualServiceStaysPending(t *testing.T) {
	p, d := newFulfillment(t)
	svc := mappedService()
	svc.APIServiceID = nil
	order := pendingOrder(svc.ID)

	d.orders.On("Get", mock.Anything, order.ID).Return(order, nil)
	d.ledger.On("DebitOrder", mock.Anything, order).Return(&model.Transaction{}, nil)
	d.catalog.On("Get", mock.Anything, svc.ID).Return(svc, nil)

	require.NoError(t, p.Process(context.Background(), eventFor(t, order)))
	d.provider.AssertNotCalled(t, "AddOrder", mock.Anything, mock.Anything, mock.Anything)
	d.status.AssertNotCalled(t, "ApplyStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFulfillment_MalformedEvent(t *testing.T) {
	p, _ := newFulfillment(t)

	assert.Error(t, p.Process(context.Background(), &queue.Message{ID: "1-0", Data: []byte("{")}))
	assert.Error(t, p.Process(context.Background(), &queue.Message{ID: "1-1", Data: []byte("{}")}))
}

func TestFulfillment_AcceptedButNotRecorded(t *testing.T) {
	p, d := newFulfillment(t)
	ctx := context.Background()
	svc := mappedService()
	order := pendingOrder(svc.ID)

	d.orders.On("Get", mock.Anything, order.ID).Return(order, nil)
	d.ledger.On("DebitOrder", mock.Anything, order).Return(nil, nil)
	d.catalog.On("Get", mock.Anything, svc.ID).Return(svc, nil)
	d.provider.On("AddOrder", mock.Anything, "panel", mock.Anything).
		Return(&gateway.AddOrderResponse{OrderID: "77", Raw: json.RawMessage(`{"order":77}`)}, nil)
	d.status.On("ApplyStatus", mock.Anything, mock.Anything, order.ID, statusIs(model.OrderStatusProcessing)).
		Return(nil, errors.New("db down"))

	// acked so the provider is not asked twice
	require.NoError(t, p.Process(ctx, eventFor(t, order)))
	processed, err := d.idem.IsProcessed(ctx, order.ID.String())
	require.NoError(t, err)
	assert.True(t, processed)
}
