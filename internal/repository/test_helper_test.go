package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Entities()...))

	return pg.New(db, db)
}

func seedService(t *testing.T, db *pg.DB, name, category string, active bool) *model.Service {
	svc, err := NewServiceRepository(db).Create(context.Background(), &model.Service{
		Name:        name,
		Category:    category,
		Price:       decimal.RequireFromString("0.50"),
		MinQuantity: 10,
		MaxQuantity: 1000,
		Active:      active,
	})
	require.NoError(t, err)
	return svc
}

func seedProfile(t *testing.T, db *pg.DB, code string, balance string) *model.Profile {
	p, err := NewProfileRepository(db).Create(context.Background(), &model.Profile{
		ID:           uuid.New(),
		Email:        code + "@example.com",
		Balance:      decimal.RequireFromString(balance),
		ReferralCode: code,
	})
	require.NoError(t, err)
	return p
}
