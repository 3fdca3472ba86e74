package processor

import (
	"context"

	"github.com/google/uuid"
	gateway "github.com/nimasrn/smm-storefront/internal/gateways"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockOrderReader struct {
	mock.Mock
}

func (m *MockOrderReader) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderReader) List(ctx context.Context, f model.OrderFilter) ([]*model.OrderView, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*model.OrderView), args.Get(1).(int64), args.Error(2)
}

type MockServiceLookup struct {
	mock.Mock
}

func (m *MockServiceLookup) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Service), args.Error(1)
}

type MockStatusApplier struct {
	mock.Mock
}

func (m *MockStatusApplier) ApplyStatus(ctx context.Context, session model.Session, id uuid.UUID, update model.OrderStatusUpdate) (*model.Order, error) {
	args := m.Called(ctx, session, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

type MockOrderCharger struct {
	mock.Mock
}

func (m *MockOrderCharger) DebitOrder(ctx context.Context, order *model.Order) (*model.Transaction, error) {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

type MockProviderClient struct {
	mock.Mock
}

func (m *MockProviderClient) AddOrder(ctx context.Context, provider string, req gateway.AddOrderRequest) (*gateway.AddOrderResponse, error) {
	args := m.Called(ctx, provider, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.AddOrderResponse), args.Error(1)
}

func (m *MockProviderClient) GetOrderStatus(ctx context.Context, provider, apiOrderID string) (*gateway.OrderStatus, error) {
	args := m.Called(ctx, provider, apiOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.OrderStatus), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error) {
	args := m.Called(ctx, data, metadata)
	return args.String(0), args.Error(1)
}

func strPtr(s string) *string {
	return &s
}
