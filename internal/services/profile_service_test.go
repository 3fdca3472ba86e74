package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newProfileService() (*ProfileService, *MockProfileRepository, *MockReferralRepository) {
	profiles := new(MockProfileRepository)
	referrals := new(MockReferralRepository)
	return NewProfileService(profiles, referrals), profiles, referrals
}

func TestNewReferralCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := NewReferralCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 90)
}

func TestProfileService_Ensure(t *testing.T) {
	ctx := context.Background()
	session := userSession()

	t.Run("returns existing profile", func(t *testing.T) {
		svc, profiles, _ := newProfileService()
		existing := &model.Profile{ID: session.UserID, ReferralCode: "ABCDEF12"}
		profiles.On("Get", ctx, session.UserID).Return(existing, nil)

		got, err := svc.Ensure(ctx, session, nil)
		require.NoError(t, err)
		assert.Equal(t, "ABCDEF12", got.ReferralCode)
		profiles.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("retries on code collision", func(t *testing.T) {
		svc, profiles, _ := newProfileService()
		codes := []string{"AAAAAAAA", "BBBBBBBB"}
		svc.generateCode = func() (string, error) {
			c := codes[0]
			codes = codes[1:]
			return c, nil
		}

		name := "  Ada Lovelace "
		profiles.On("Get", ctx, session.UserID).Return(nil, repository.ErrProfileNotFound)
		profiles.On("Create", ctx, mock.MatchedBy(func(p *model.Profile) bool { return p.ReferralCode == "AAAAAAAA" })).
			Return(nil, repository.ErrDuplicateCode)
		profiles.On("Create", ctx, mock.MatchedBy(func(p *model.Profile) bool {
			return p.ReferralCode == "BBBBBBBB" && p.Email == session.Email && *p.FullName == "Ada Lovelace" && p.Balance.IsZero()
		})).Return(func(_ context.Context, p *model.Profile) *model.Profile { return p }, nil)

		got, err := svc.Ensure(ctx, session, &name)
		require.NoError(t, err)
		assert.Equal(t, "BBBBBBBB", got.ReferralCode)
		assert.Equal(t, session.UserID, got.ID)
	})

	t.Run("concurrent creation returns the stored profile", func(t *testing.T) {
		svc, profiles, _ := newProfileService()
		stored := &model.Profile{ID: session.UserID, ReferralCode: "CCCCCCCC"}
		profiles.On("Get", ctx, session.UserID).Return(nil, repository.ErrProfileNotFound).Once()
		profiles.On("Create", ctx, mock.Anything).Return(nil, repository.ErrDuplicateProfile)
		profiles.On("Get", ctx, session.UserID).Return(stored, nil).Once()

		got, err := svc.Ensure(ctx, session, nil)
		require.NoError(t, err)
		assert.Equal(t, "CCCCCCCC", got.ReferralCode)
	})
}

func TestProfileService_Get(t *testing.T) {
	ctx := context.Background()
	session := userSession()
	svc, profiles, referrals := newProfileService()

	profiles.On("Get", ctx, session.UserID).Return(&model.Profile{ID: session.UserID, Balance: decimal.NewFromInt(10)}, nil)
	profiles.On("IsAdmin", ctx, session.UserID).Return(true, nil)
	referrals.On("CountByReferrer", ctx, session.UserID).Return(int64(3), nil)

	view, err := svc.Get(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.ReferralCount)
	assert.True(t, view.IsAdmin)
}

func TestProfileService_SetUserBalance(t *testing.T) {
	ctx := context.Background()
	admin := userSession()
	target := uuid.New()

	t.Run("negative balance is rejected", func(t *testing.T) {
		svc, profiles, _ := newProfileService()
		profiles.On("IsAdmin", ctx, admin.UserID).Return(true, nil)

		_, err := svc.SetUserBalance(ctx, admin, target, decimal.NewFromInt(-5))
		assert.ErrorIs(t, err, ErrInvalidBalance)
		assert.Equal(t, KindValidation, KindOf(err))
		profiles.AssertNotCalled(t, "SetBalance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("sub-cent balance is rejected", func(t *testing.T) {
		svc, profiles, _ := newProfileService()
		profiles.On("IsAdmin", ctx, admin.UserID).Return(true, nil)

		_, err := svc.SetUserBalance(ctx, admin, target, decimal.RequireFromString("12.345"))
		assert.ErrorIs(t, err, ErrInvalidBalance)
		profiles.AssertNotCalled(t, "SetBalance", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("zero is accepted", func(t *testing.T) {
		svc, profiles, _ := newProfileService()
		profiles.On("IsAdmin", ctx, admin.UserID).Return(true, nil)
		profiles.On("SetBalance", ctx, target, decimal.Zero).Return(&model.Profile{ID: target, Balance: decimal.Zero}, nil)

		got, err := svc.SetUserBalance(ctx, admin, target, decimal.Zero)
		require.NoError(t, err)
		assert.True(t, got.Balance.IsZero())
	})

	t.Run("non-admin", func(t *testing.T) {
		svc, profiles, _ := newProfileService()
		profiles.On("IsAdmin", ctx, admin.UserID).Return(false, nil)

		_, err := svc.SetUserBalance(ctx, admin, target, decimal.NewFromInt(5))
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, profiles, _ := newProfileService()
		profiles.On("IsAdmin", ctx, admin.UserID).Return(true, nil)
		profiles.On("SetBalance", ctx, target, decimal.NewFromInt(5)).Return(nil, repository.ErrProfileNotFound)

		_, err := svc.SetUserBalance(ctx, admin, target, decimal.NewFromInt(5))
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})
}

func TestParseBalance(t *testing.T) {
	for _, raw := range []string{"NaN", "Inf", "-Inf", "+Inf", "abc", "1,5"} {
		_, err := ParseBalance(raw)
		assert.ErrorIs(t, err, ErrInvalidBalance, raw)
	}

	_, err := ParseBalance("")
	assert.ErrorIs(t, err, ErrMissingField)

	d, err := ParseBalance(`"12.50"`)
	require.NoError(t, err)
	assert.Equal(t, "12.5", d.String())
}

func TestProfileService_ListProfiles(t *testing.T) {
	ctx := context.Background()
	admin := userSession()
	svc, profiles, _ := newProfileService()

	profiles.On("IsAdmin", ctx, admin.UserID).Return(true, nil)
	profiles.On("List", ctx, model.ProfileFilter{Limit: 10}).Return([]*model.Profile{{}, {}}, int64(2), nil)

	list, total, err := svc.ListProfiles(ctx, admin, model.ProfileFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, int64(2), total)
}
