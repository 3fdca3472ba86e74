package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

type ReferralRepository interface {
	Create(ctx context.Context, referrerID, referredID uuid.UUID) (bool, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type ReferrerLookup interface {
	GetByReferralCode(ctx context.Context, code string) (*model.Profile, error)
}

type BonusGranter interface {
	GrantReferralBonus(ctx context.Context, referrerID, referredID uuid.UUID, amount decimal.Decimal) (*model.Transaction, error)
}

type ReferralService struct {
	referralRepo ReferralRepository
	profiles     ReferrerLookup
	bonus        BonusGranter
	bonusAmount  decimal.Decimal
}

func NewReferralService(referralRepo ReferralRepository, profiles ReferrerLookup, bonus BonusGranter, bonusAmount decimal.Decimal) *ReferralService {
	return &ReferralService{
		referralRepo: referralRepo,
		profiles:     profiles,
		bonus:        bonus,
		bonusAmount:  bonusAmount,
	}
}

func (s *ReferralService) Resolve(ctx context.Context, code string) (*model.Profile, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrInvalidReferralCode
	}
	p, err := s.profiles.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, ErrInvalidReferralCode
		}
		return nil, unavailable("resolve referral code", err)
	}
	return p, nil
}

// Register links the caller to the owner of code. Only the first
// registration of a user counts; repeats succeed with Registered=false and
// grant nothing.
func (s *ReferralService) Register(ctx context.Context, session model.Session, code string) (*model.ReferralResult, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}

	referrer, err := s.Resolve(ctx, code)
	if err == nil && referrer.ID == session.UserID {
		err = ErrInvalidReferralCode
	}
	if err != nil {
		if errors.Is(err, ErrInvalidReferralCode) {
			logger.Warn("referral code rejected", "code", code, "user_id", session.UserID)
		}
		return nil, err
	}

	result := &model.ReferralResult{ReferrerID: referrer.ID, Bonus: decimal.Zero}
	err = s.referralRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		inserted, err := s.referralRepo.Create(ctx, referrer.ID, session.UserID)
		if err != nil {
			return unavailable("create referral", err)
		}
		if !inserted {
			return nil
		}
		if _, err := s.bonus.GrantReferralBonus(ctx, referrer.ID, session.UserID, s.bonusAmount); err != nil {
			return err
		}
		result.Registered = true
		result.Bonus = s.bonusAmount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Registered {
		logger.Info("referral already recorded", "referred_id", session.UserID)
		return result, nil
	}
	logger.Info("referral registered", "referrer_id", referrer.ID, "referred_id", session.UserID, "bonus", s.bonusAmount.String())
	return result, nil
}
