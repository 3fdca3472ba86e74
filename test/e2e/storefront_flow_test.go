package e2e

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/feed"
	gateway "github.com/nimasrn/smm-storefront/internal/gateways"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/processor"
	"github.com/nimasrn/smm-storefront/internal/queue"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/internal/services"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"github.com/nimasrn/smm-storefront/pkg/redis"
	"github.com/nimasrn/smm-storefront/test/fixtures"
	"github.com/nimasrn/smm-storefront/test/helpers"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestEnvironment struct {
	DB              *pg.DB
	RedisAdapter    redis.RedisAdapter
	Queue           *queue.Queue
	ServiceRepo     *repository.ServiceRepository
	ProfileRepo     *repository.ProfileRepository
	OrderRepo       *repository.OrderRepository
	TransactionRepo *repository.TransactionRepository
	ReferralRepo    *repository.ReferralRepository
	Catalog         *services.CatalogService
	Ledger          *services.LedgerService
	Orders          *services.OrderService
	Profiles        *services.ProfileService
	Referrals       *services.ReferralService
}

var referralBonus = decimal.RequireFromString("500")

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	db := helpers.SetupTestDB(t)
	_, adapter := helpers.SetupTestRedis(t)

	q, err := queue.NewQueue(adapter, queue.QueueConfig{
		Name:              "orders:placed",
		ConsumerGroup:     "fulfillment",
		ConsumerName:      "e2e",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      20 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Stop(5 * time.Second) })

	env := &TestEnvironment{
		DB:              db,
		RedisAdapter:    adapter,
		Queue:           q,
		ServiceRepo:     repository.NewServiceRepository(db),
		ProfileRepo:     repository.NewProfileRepository(db),
		OrderRepo:       repository.NewOrderRepository(db),
		TransactionRepo: repository.NewTransactionRepository(db),
		ReferralRepo:    repository.NewReferralRepository(db),
	}
	env.Catalog = services.NewCatalogService(env.ServiceRepo, env.ProfileRepo)
	env.Ledger = services.NewLedgerService(env.TransactionRepo, env.ProfileRepo, env.ProfileRepo, services.DepositConfig{
		USSDCode:    "*170#",
		Description: "Deposit via MTN Mobile Money",
		Currency:    "RWF",
	})
	env.Orders = services.NewOrderService(env.OrderRepo, env.Catalog, env.ProfileRepo, q, feed.NewPublisher(adapter), env.Ledger)
	env.Profiles = services.NewProfileService(env.ProfileRepo, env.ReferralRepo)
	env.Referrals = services.NewReferralService(env.ReferralRepo, env.ProfileRepo, env.Ledger, referralBonus)
	return env
}

// stubPanel accepts every order and hands out sequential ids.
type stubPanel struct {
	mu     sync.Mutex
	added  []gateway.AddOrderRequest
	reject bool
}

func (p *stubPanel) AddOrder(_ context.Context, _ string, req gateway.AddOrderRequest) (*gateway.AddOrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return nil, gateway.ErrRejected
	}
	p.added = append(p.added, req)
	return &gateway.AddOrderResponse{OrderID: "9001", Raw: json.RawMessage(`{"order":9001}`)}, nil
}

func (p *stubPanel) GetOrderStatus(_ context.Context, _, _ string) (*gateway.OrderStatus, error) {
	return &gateway.OrderStatus{Status: "Completed", Raw: json.RawMessage(`{"status":"Completed"}`)}, nil
}

func (p *stubPanel) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.added)
}

func (env *TestEnvironment) startFulfillment(t *testing.T, panel *stubPanel) {
	idem := processor.NewIdempotencyService(env.RedisAdapter, processor.DefaultIdempotencyConfig())
	fp := processor.NewFulfillmentProcessor(env.OrderRepo, env.Catalog, env.Orders, env.Ledger, panel, idem)
	require.NoError(t, env.Queue.Consume(fp.Process))
}

func (env *TestEnvironment) orderStatus(t *testing.T, id uuid.UUID) model.OrderStatus {
	order, err := env.OrderRepo.Get(context.Background(), id)
	require.NoError(t, err)
	return order.Status
}

func TestE2E_ProfileCreatedOnFirstSignIn(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	session := model.Session{UserID: uuid.New(), Email: "new@example.com", Role: "authenticated"}

	first, err := env.Profiles.Ensure(ctx, session, helpers.Ptr("  Kofi Boateng "))
	require.NoError(t, err)
	assert.Len(t, first.ReferralCode, 8)
	assert.True(t, first.Balance.IsZero())
	assert.Equal(t, "Kofi Boateng", *first.FullName)

	again, err := env.Profiles.Ensure(ctx, session, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ReferralCode, again.ReferralCode)

	view, err := env.Profiles.Get(ctx, session)
	require.NoError(t, err)
	assert.False(t, view.IsAdmin)
	assert.Zero(t, view.ReferralCount)
}

func TestE2E_ReferralCountsOnce(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	referrer := helpers.CreateTestProfile(t, env.DB, "0")
	referred := helpers.CreateTestProfile(t, env.DB, "0")

	result, err := env.Referrals.Register(ctx, helpers.SessionFor(referred), referrer.ReferralCode)
	require.NoError(t, err)
	assert.True(t, result.Registered)
	assert.True(t, referralBonus.Equal(result.Bonus))

	result, err = env.Referrals.Register(ctx, helpers.SessionFor(referred), referrer.ReferralCode)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Registered)

	count, err := env.ReferralRepo.CountByReferrer(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.True(t, referralBonus.Equal(helpers.BalanceOf(t, env.DB, referrer.ID)))

	// self referral is rejected without touching anything
	_, err = env.Referrals.Register(ctx, helpers.SessionFor(referrer), referrer.ReferralCode)
	assert.ErrorIs(t, err, services.ErrInvalidReferralCode)

	view, err := env.Profiles.Get(ctx, helpers.SessionFor(referrer))
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.ReferralCount)
}

func TestE2E_DepositsConfirmedIntoSummary(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	user := helpers.CreateTestProfile(t, env.DB, "0")
	admin := helpers.CreateTestAdmin(t, env.DB)

	var ids []uuid.UUID
	for _, amount := range []string{"1000", "2000", "500"} {
		receipt, err := env.Ledger.Deposit(ctx, helpers.SessionFor(user), fixtures.DepositRequest(amount))
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusPending, receipt.Transaction.Status)
		assert.Contains(t, receipt.Instructions, "Dial *170# and send "+amount+".00 RWF")
		ids = append(ids, receipt.Transaction.ID)
	}

	summary, err := env.Ledger.Summary(ctx, helpers.SessionFor(user))
	require.NoError(t, err)
	assert.True(t, summary.ConfirmedFunds.IsZero())
	assert.Equal(t, "3500", summary.PendingFunds.String())
	assert.True(t, helpers.BalanceOf(t, env.DB, user.ID).IsZero())

	for _, id := range ids {
		_, err := env.Ledger.Confirm(ctx, helpers.SessionFor(admin), id)
		require.NoError(t, err)
	}
	// confirming twice changes nothing
	_, err = env.Ledger.Confirm(ctx, helpers.SessionFor(admin), ids[0])
	require.NoError(t, err)

	summary, err = env.Ledger.Summary(ctx, helpers.SessionFor(user))
	require.NoError(t, err)
	assert.Equal(t, "3500", summary.ConfirmedFunds.String())
	assert.True(t, summary.PendingFunds.IsZero())
	assert.Equal(t, "3500", helpers.BalanceOf(t, env.DB, user.ID).String())

	_, err = env.Ledger.Confirm(ctx, helpers.SessionFor(user), ids[0])
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestE2E_SetUserBalance(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	user := helpers.CreateTestProfile(t, env.DB, "120.50")
	admin := helpers.CreateTestAdmin(t, env.DB)

	for _, raw := range fixtures.InvalidBalances {
		_, err := services.ParseBalance(raw)
		assert.ErrorIs(t, err, services.ErrInvalidBalance, raw)
	}

	zero, err := services.ParseBalance("0")
	require.NoError(t, err)
	updated, err := env.Profiles.SetUserBalance(ctx, helpers.SessionFor(admin), user.ID, zero)
	require.NoError(t, err)
	assert.True(t, updated.Balance.IsZero())
	assert.True(t, helpers.BalanceOf(t, env.DB, user.ID).IsZero())

	_, err = env.Profiles.SetUserBalance(ctx, helpers.SessionFor(user), user.ID, decimal.NewFromInt(1_000_000))
	assert.ErrorIs(t, err, services.ErrForbidden)
	assert.True(t, helpers.BalanceOf(t, env.DB, user.ID).IsZero())
}

func TestE2E_OrderPlacementRejections(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	user := helpers.CreateTestProfile(t, env.DB, "1000")
	svc := helpers.CreateTestService(t, env.DB, fixtures.InstagramFollowers)
	retired := helpers.CreateTestService(t, env.DB, fixtures.RetiredService)

	_, err := env.Orders.Place(ctx, helpers.SessionFor(user), fixtures.OrderRequest(svc.ID, svc.MinQuantity-1))
	assert.ErrorIs(t, err, services.ErrInvalidQuantity)

	_, err = env.Orders.Place(ctx, helpers.SessionFor(user), fixtures.OrderRequest(retired.ID, 100))
	assert.ErrorIs(t, err, services.ErrServiceInactive)

	for _, target := range fixtures.InvalidTargetURLs {
		req := fixtures.OrderRequest(svc.ID, 100)
		req.TargetURL = target
		_, err = env.Orders.Place(ctx, helpers.SessionFor(user), req)
		assert.ErrorIs(t, err, services.ErrInvalidTargetURL, target)
	}

	_, total, err := env.OrderRepo.ListByUser(ctx, user.ID, 50, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	stats, err := env.Queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalMessages)
}

func TestE2E_OrderFulfilledAndCharged(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	user := helpers.CreateTestProfile(t, env.DB, "1000")
	svc := helpers.CreateTestService(t, env.DB, fixtures.InstagramFollowers)

	order, err := env.Orders.Place(ctx, helpers.SessionFor(user), fixtures.OrderRequest(svc.ID, 100))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, "250", order.Amount.String())
	// placing moves no funds
	assert.Equal(t, "1000", helpers.BalanceOf(t, env.DB, user.ID).String())

	stats, err := env.Queue.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalMessages)

	panel := &stubPanel{}
	env.startFulfillment(t, panel)

	helpers.AssertEventually(t, 5*time.Second, func() bool {
		return env.orderStatus(t, order.ID) == model.OrderStatusProcessing
	}, "order never reached processing")

	stored, err := env.OrderRepo.Get(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.APIOrderID)
	assert.Equal(t, "9001", *stored.APIOrderID)
	assert.Equal(t, "750", helpers.BalanceOf(t, env.DB, user.ID).String())
	assert.Equal(t, 1, panel.calls())
	assert.Equal(t, "101", panel.added[0].Service)

	// a redelivered event neither charges nor submits again
	_, err = env.Queue.PublishJSON(ctx, model.OrderPlaced{OrderID: order.ID, UserID: user.ID, ServiceID: svc.ID}, map[string]string{"type": services.EventOrderPlaced})
	require.NoError(t, err)
	helpers.AssertEventually(t, 5*time.Second, func() bool {
		s, err := env.Queue.GetStats(ctx)
		return err == nil && s.PendingMessages == 0 && s.TotalMessages == 2
	}, "redelivered event not consumed")
	assert.Equal(t, "750", helpers.BalanceOf(t, env.DB, user.ID).String())
	assert.Equal(t, 1, panel.calls())

	statusSync := processor.NewStatusSync(env.OrderRepo, env.Catalog, env.Orders, panel)
	result, err := statusSync.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, processor.SyncResult{Checked: 1, Changed: 1}, result)
	assert.Equal(t, model.OrderStatusCompleted, env.orderStatus(t, order.ID))

	summary, err := env.Ledger.Summary(ctx, helpers.SessionFor(user))
	require.NoError(t, err)
	assert.Equal(t, "250", summary.Spent.String())
}

func TestE2E_RejectedOrderIsRefunded(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	user := helpers.CreateTestProfile(t, env.DB, "100")
	svc := helpers.CreateTestService(t, env.DB, fixtures.TikTokViews)

	order, err := env.Orders.Place(ctx, helpers.SessionFor(user), fixtures.OrderRequest(svc.ID, 200))
	require.NoError(t, err)

	env.startFulfillment(t, &stubPanel{reject: true})

	helpers.AssertEventually(t, 5*time.Second, func() bool {
		return env.orderStatus(t, order.ID) == model.OrderStatusFailed
	}, "rejected order never failed")

	assert.Equal(t, "100", helpers.BalanceOf(t, env.DB, user.ID).String())

	debited, err := env.TransactionRepo.ExistsForOrder(ctx, order.ID, model.TransactionTypeOrderDebit)
	require.NoError(t, err)
	refunded, err := env.TransactionRepo.ExistsForOrder(ctx, order.ID, model.TransactionTypeRefund)
	require.NoError(t, err)
	assert.True(t, debited)
	assert.True(t, refunded)
}

func TestE2E_InsufficientBalanceFailsWithoutCharge(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	user := helpers.CreateTestProfile(t, env.DB, "10")
	svc := helpers.CreateTestService(t, env.DB, fixtures.InstagramFollowers)

	order, err := env.Orders.Place(ctx, helpers.SessionFor(user), fixtures.OrderRequest(svc.ID, 100))
	require.NoError(t, err)

	panel := &stubPanel{}
	env.startFulfillment(t, panel)

	helpers.AssertEventually(t, 5*time.Second, func() bool {
		return env.orderStatus(t, order.ID) == model.OrderStatusFailed
	}, "uncharged order never failed")

	assert.Equal(t, "10", helpers.BalanceOf(t, env.DB, user.ID).String())
	assert.Zero(t, panel.calls())

	refunded, err := env.TransactionRepo.ExistsForOrder(ctx, order.ID, model.TransactionTypeRefund)
	require.NoError(t, err)
	assert.False(t, refunded)
}

func TestE2E_AdminFailsProcessingOrder(t *testing.T) {
	env := setupE2EEnvironment(t)
	ctx := context.Background()

	user := helpers.CreateTestProfile(t, env.DB, "1000")
	admin := helpers.CreateTestAdmin(t, env.DB)
	svc := helpers.CreateTestService(t, env.DB, fixtures.InstagramFollowers)

	sub, err := feed.NewSubscriber(env.RedisAdapter).Subscribe(ctx, user.ID)
	require.NoError(t, err)
	defer sub.Close()

	order, err := env.Orders.Place(ctx, helpers.SessionFor(user), fixtures.OrderRequest(svc.ID, 100))
	require.NoError(t, err)
	env.startFulfillment(t, &stubPanel{})
	helpers.AssertEventually(t, 5*time.Second, func() bool {
		return env.orderStatus(t, order.ID) == model.OrderStatusProcessing
	}, "order never reached processing")

	_, err = env.Orders.ApplyStatus(ctx, helpers.SessionFor(user), order.ID, model.OrderStatusUpdate{Status: model.OrderStatusFailed})
	assert.ErrorIs(t, err, services.ErrForbidden)

	failed, err := env.Orders.ApplyStatus(ctx, helpers.SessionFor(admin), order.ID, model.OrderStatusUpdate{Status: model.OrderStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFailed, failed.Status)
	assert.Equal(t, "1000", helpers.BalanceOf(t, env.DB, user.ID).String())

	// terminal orders do not move again
	_, err = env.Orders.ApplyStatus(ctx, helpers.SessionFor(admin), order.ID, model.OrderStatusUpdate{Status: model.OrderStatusCompleted})
	assert.ErrorIs(t, err, services.ErrInvalidTransition)

	seen := map[model.OrderStatus]bool{}
	timeout := time.After(3 * time.Second)
	for !seen[model.OrderStatusFailed] {
		select {
		case change := <-sub.Events():
			assert.Equal(t, order.ID, change.OrderID)
			seen[change.Status] = true
		case <-timeout:
			t.Fatalf("missing order changes, saw %v", seen)
		}
	}
	assert.True(t, seen[model.OrderStatusProcessing])
}
