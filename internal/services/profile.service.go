package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/internal/repository"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/shopspring/decimal"
)

const referralCodeAttempts = 5

type ProfileRepository interface {
	Create(ctx context.Context, p *model.Profile) (*model.Profile, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (*model.Profile, error)
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
	List(ctx context.Context, f model.ProfileFilter) ([]*model.Profile, int64, error)
}

type ReferralCounter interface {
	CountByReferrer(ctx context.Context, referrerID uuid.UUID) (int64, error)
}

type ProfileService struct {
	profileRepo  ProfileRepository
	referrals    ReferralCounter
	generateCode func() (string, error)
}

func NewProfileService(profileRepo ProfileRepository, referrals ReferralCounter) *ProfileService {
	return &ProfileService{
		profileRepo:  profileRepo,
		referrals:    referrals,
		generateCode: NewReferralCode,
	}
}

// NewReferralCode returns 8 uppercase hex characters.
func NewReferralCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// Ensure returns the caller's profile, creating it on first sign-in. The
// referral code is assigned once here and never changes.
func (s *ProfileService) Ensure(ctx context.Context, session model.Session, fullName *string) (*model.Profile, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}

	existing, err := s.profileRepo.Get(ctx, session.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, unavailable("get profile", err)
	}

	if fullName != nil {
		trimmed := strings.TrimSpace(*fullName)
		fullName = &trimmed
		if trimmed == "" {
			fullName = nil
		}
	}

	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return nil, fmt.Errorf("generate referral code: %w", err)
		}

		created, err := s.profileRepo.Create(ctx, &model.Profile{
			ID:           session.UserID,
			Email:        session.Email,
			FullName:     fullName,
			Balance:      decimal.Zero,
			ReferralCode: code,
		})
		switch {
		case err == nil:
			logger.Info("profile created", "user_id", created.ID, "referral_code", created.ReferralCode)
			return created, nil
		case errors.Is(err, repository.ErrDuplicateCode):
			logger.Debug("referral code collision", "code", code, "attempt", attempt+1)
			continue
		case errors.Is(err, repository.ErrDuplicateProfile):
			// created concurrently by another request of the same user
			return s.get(ctx, session.UserID)
		default:
			return nil, unavailable("create profile", err)
		}
	}
	return nil, fmt.Errorf("%w: no free referral code after %d attempts", ErrUnavailable, referralCodeAttempts)
}

func (s *ProfileService) get(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	p, err := s.profileRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, unavailable("get profile", err)
	}
	return p, nil
}

func (s *ProfileService) Get(ctx context.Context, session model.Session) (*model.ProfileView, error) {
	if err := requireUser(session); err != nil {
		return nil, err
	}
	p, err := s.get(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	count, err := s.referrals.CountByReferrer(ctx, p.ID)
	if err != nil {
		return nil, unavailable("count referrals", err)
	}
	admin, err := s.IsAdmin(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &model.ProfileView{Profile: *p, ReferralCount: count, IsAdmin: admin}, nil
}

func (s *ProfileService) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	admin, err := s.profileRepo.IsAdmin(ctx, userID)
	if err != nil {
		return false, unavailable("check role", err)
	}
	return admin, nil
}

// ParseBalance reads a balance typed by an operator. NaN, infinities and
// anything that is not a plain decimal are rejected.
func ParseBalance(raw string) (decimal.Decimal, error) {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: balance", ErrMissingField)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidBalance, raw)
	}
	return d, nil
}

// SetUserBalance overwrites a user's balance. Admins only.
func (s *ProfileService) SetUserBalance(ctx context.Context, session model.Session, target uuid.UUID, balance decimal.Decimal) (*model.Profile, error) {
	if err := requirePrivileged(ctx, s.profileRepo, session); err != nil {
		return nil, err
	}
	if balance.IsNegative() || !model.FitsMoney(balance) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBalance, balance.String())
	}

	updated, err := s.profileRepo.SetBalance(ctx, target, balance)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, unavailable("set balance", err)
	}
	logger.Info("balance overwritten", "user_id", target, "balance", balance.String(), "by", session.UserID)
	return updated, nil
}

func (s *ProfileService) ListProfiles(ctx context.Context, session model.Session, f model.ProfileFilter) ([]*model.Profile, int64, error) {
	if err := requirePrivileged(ctx, s.profileRepo, session); err != nil {
		return nil, 0, err
	}
	profiles, total, err := s.profileRepo.List(ctx, f)
	if err != nil {
		return nil, 0, unavailable("list profiles", err)
	}
	return profiles, total, nil
}
