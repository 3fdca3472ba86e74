package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	p := seedProfile(t, db, "AB12CD34", "0")

	got, err := repo.GetByReferralCode(ctx, "AB12CD34")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	t.Run("same id", func(t *testing.T) {
		_, err := repo.Create(ctx, &model.Profile{ID: p.ID, Email: "x@example.com", ReferralCode: "FFFFFFFF"})
		assert.ErrorIs(t, err, ErrDuplicateProfile)
	})

	t.Run("same referral code", func(t *testing.T) {
		_, err := repo.Create(ctx, &model.Profile{ID: uuid.New(), Email: "y@example.com", ReferralCode: "AB12CD34"})
		assert.ErrorIs(t, err, ErrDuplicateCode)

		exists, err := repo.ReferralCodeExists(ctx, "AB12CD34")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	_, err = repo.GetByReferralCode(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestProfileRepository_Balance(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	t.Run("add", func(t *testing.T) {
		p := seedProfile(t, db, "00000001", "500")
		require.NoError(t, repo.AddBalance(ctx, p.ID, decimal.RequireFromString("250.25")))

		balance, err := repo.GetBalance(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("750.25").Equal(balance), balance.String())
	})

	t.Run("deduct exact balance", func(t *testing.T) {
		p := seedProfile(t, db, "00000002", "250")
		require.NoError(t, repo.DeductBalance(ctx, p.ID, decimal.NewFromInt(250)))

		balance, err := repo.GetBalance(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		p := seedProfile(t, db, "00000003", "100")
		err := repo.DeductBalance(ctx, p.ID, decimal.NewFromInt(200))
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		balance, err := repo.GetBalance(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(100).Equal(balance))
	})

	t.Run("profile not found", func(t *testing.T) {
		assert.ErrorIs(t, repo.AddBalance(ctx, uuid.New(), decimal.NewFromInt(1)), ErrProfileNotFound)
		assert.ErrorIs(t, repo.DeductBalance(ctx, uuid.New(), decimal.NewFromInt(1)), ErrProfileNotFound)
	})

	t.Run("set balance", func(t *testing.T) {
		p := seedProfile(t, db, "00000004", "100")
		updated, err := repo.SetBalance(ctx, p.ID, decimal.Zero)
		require.NoError(t, err)
		assert.True(t, updated.Balance.IsZero())

		_, err = repo.SetBalance(ctx, uuid.New(), decimal.Zero)
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})
}

func TestProfileRepository_ConcurrentCredits(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	p := seedProfile(t, db, "0000000C", "0")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.WithinTransaction(ctx, func(ctx context.Context) error {
				return repo.AddBalance(ctx, p.ID, decimal.NewFromInt(10))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := repo.GetBalance(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(balance), balance.String())
}

func TestProfileRepository_WithRetry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	busy := errors.New("could not obtain lock")

	t.Run("retries on its own connection", func(t *testing.T) {
		attempts := 0
		err := repo.withRetry(context.Background(), func() error {
			attempts++
			return busy
		})
		assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
		assert.Equal(t, 4, attempts)
	})

	t.Run("runs once inside a transaction", func(t *testing.T) {
		attempts := 0
		err := db.WithinTransaction(context.Background(), func(ctx context.Context) error {
			return repo.withRetry(ctx, func() error {
				attempts++
				return busy
			})
		})
		assert.ErrorIs(t, err, busy)
		assert.Equal(t, 1, attempts)
	})

	t.Run("does not retry business errors", func(t *testing.T) {
		attempts := 0
		err := repo.withRetry(context.Background(), func() error {
			attempts++
			return ErrInsufficientBalance
		})
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, 1, attempts)
	})
}

func TestProfileRepository_RolesAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	admin := seedProfile(t, db, "ADMIN001", "0")
	user := seedProfile(t, db, "USER0001", "0")

	require.NoError(t, repo.GrantRole(ctx, admin.ID, model.RoleAdmin))
	require.NoError(t, repo.GrantRole(ctx, admin.ID, model.RoleAdmin))
	require.NoError(t, repo.GrantRole(ctx, user.ID, model.RoleUser))

	isAdmin, err := repo.IsAdmin(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	isAdmin, err = repo.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	profiles, total, err := repo.List(ctx, model.ProfileFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, profiles, 2)
}
