package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) ListActive(ctx context.Context) ([]*model.Service, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Service), args.Error(1)
}

func (m *MockCatalogService) ListAll(ctx context.Context, session model.Session) ([]*model.Service, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Service), args.Error(1)
}

func (m *MockCatalogService) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Service), args.Error(1)
}

func (m *MockCatalogService) Create(ctx context.Context, session model.Session, req model.ServiceUpsertRequest) (*model.Service, error) {
	args := m.Called(ctx, session, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Service), args.Error(1)
}

func (m *MockCatalogService) Update(ctx context.Context, session model.Session, id uuid.UUID, req model.ServiceUpsertRequest) (*model.Service, error) {
	args := m.Called(ctx, session, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Service), args.Error(1)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Place(ctx context.Context, session model.Session, req model.OrderCreateRequest) (*model.Order, error) {
	args := m.Called(ctx, session, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) List(ctx context.Context, session model.Session, limit, offset int) ([]*model.OrderView, int64, error) {
	args := m.Called(ctx, session, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.OrderView), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderService) Get(ctx context.Context, session model.Session, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, session, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) ApplyStatus(ctx context.Context, session model.Session, id uuid.UUID, update model.OrderStatusUpdate) (*model.Order, error) {
	args := m.Called(ctx, session, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) Deposit(ctx context.Context, session model.Session, req model.DepositRequest) (*model.DepositReceipt, error) {
	args := m.Called(ctx, session, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DepositReceipt), args.Error(1)
}

func (m *MockLedgerService) Record(ctx context.Context, session model.Session, txn model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, session, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockLedgerService) List(ctx context.Context, session model.Session, limit, offset int) ([]*model.Transaction, int64, error) {
	args := m.Called(ctx, session, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Transaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockLedgerService) Summary(ctx context.Context, session model.Session) (model.LedgerSummary, error) {
	args := m.Called(ctx, session)
	return args.Get(0).(model.LedgerSummary), args.Error(1)
}

func (m *MockLedgerService) Confirm(ctx context.Context, session model.Session, id uuid.UUID) (*model.Transaction, error) {
	args := m.Called(ctx, session, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockLedgerService) Fail(ctx context.Context, session model.Session, id uuid.UUID) (*model.Transaction, error) {
	args := m.Called(ctx, session, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

type MockProfileService struct {
	mock.Mock
}

func (m *MockProfileService) Ensure(ctx context.Context, session model.Session, fullName *string) (*model.Profile, error) {
	args := m.Called(ctx, session, fullName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProfileService) Get(ctx context.Context, session model.Session) (*model.ProfileView, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProfileView), args.Error(1)
}

func (m *MockProfileService) SetUserBalance(ctx context.Context, session model.Session, target uuid.UUID, balance decimal.Decimal) (*model.Profile, error) {
	args := m.Called(ctx, session, target, balance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProfileService) ListProfiles(ctx context.Context, session model.Session, f model.ProfileFilter) ([]*model.Profile, int64, error) {
	args := m.Called(ctx, session, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Profile), args.Get(1).(int64), args.Error(2)
}

type MockReferralService struct {
	mock.Mock
}

func (m *MockReferralService) Resolve(ctx context.Context, code string) (*model.Profile, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockReferralService) Register(ctx context.Context, session model.Session, code string) (*model.ReferralResult, error) {
	args := m.Called(ctx, session, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReferralResult), args.Error(1)
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
