package helpers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"github.com/nimasrn/smm-storefront/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupTestDB opens an in-memory sqlite database with every storefront table.
func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// a second connection would see an empty database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(repository.Entities()...))
	return pg.New(db, db)
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	// adapters are cached by name
	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestService(t *testing.T, db *pg.DB, svc model.Service) *model.Service {
	created, err := repository.NewServiceRepository(db).Create(context.Background(), &svc)
	require.NoError(t, err)
	return created
}

func CreateTestProfile(t *testing.T, db *pg.DB, balance string) *model.Profile {
	id := uuid.New()
	created, err := repository.NewProfileRepository(db).Create(context.Background(), &model.Profile{
		ID:           id,
		Email:        id.String()[:8] + "@example.com",
		Balance:      decimal.RequireFromString(balance),
		ReferralCode: RandomReferralCode(),
	})
	require.NoError(t, err)
	return created
}

func CreateTestAdmin(t *testing.T, db *pg.DB) *model.Profile {
	admin := CreateTestProfile(t, db, "0")
	require.NoError(t, repository.NewProfileRepository(db).GrantRole(context.Background(), admin.ID, model.RoleAdmin))
	return admin
}

func SessionFor(p *model.Profile) model.Session {
	return model.Session{UserID: p.ID, Email: p.Email, Role: "authenticated"}
}

func BalanceOf(t *testing.T, db *pg.DB, userID uuid.UUID) decimal.Decimal {
	balance, err := repository.NewProfileRepository(db).GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return balance
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// RandomReferralCode returns 8 uppercase characters that are unique per call.
func RandomReferralCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

func Ptr[T any](v T) *T {
	return &v
}
