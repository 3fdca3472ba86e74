package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository struct {
	*pg.DB
}

func NewProfileRepository(db *pg.DB) *ProfileRepository {
	return &ProfileRepository{
		db,
	}
}

func (r *ProfileRepository) Create(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	entity := toProfileEntity(p)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if _, getErr := r.get(ctx, r.Write(ctx), "id = ?", p.ID); getErr == nil {
				return nil, ErrDuplicateProfile
			}
			return nil, ErrDuplicateCode
		}
		return nil, err
	}

	return toProfileModel(entity), nil
}

func (r *ProfileRepository) Get(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	return r.get(ctx, r.Read(ctx), "id = ?", id)
}

func (r *ProfileRepository) GetByReferralCode(ctx context.Context, code string) (*model.Profile, error) {
	return r.get(ctx, r.Read(ctx), "referral_code = ?", code)
}

func (r *ProfileRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&ProfileEntity{}).
		Where("referral_code = ?", code).
		Count(&count).
		Error
	return count > 0, err
}

func (r *ProfileRepository) get(ctx context.Context, db *gorm.DB, query string, arg any) (*model.Profile, error) {
	var entity ProfileEntity
	err := db.WithContext(ctx).Where(query, arg).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return toProfileModel(&entity), nil
}

// List returns profiles newest first.
func (r *ProfileRepository) List(ctx context.Context, f model.ProfileFilter) ([]*model.Profile, int64, error) {
	f.Normalize()

	q := r.Read(ctx).WithContext(ctx).Model(&ProfileEntity{}).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*ProfileEntity
	if err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toProfileModels(entities), total, nil
}

func (r *ProfileRepository) GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	var entity ProfileEntity
	err := r.Read(ctx).WithContext(ctx).
		Select("balance").
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrProfileNotFound
		}
		return decimal.Zero, err
	}
	return entity.Balance, nil
}

// SetBalance overwrites the balance. Callers validate the value.
func (r *ProfileRepository) SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (*model.Profile, error) {
	result := r.Write(ctx).WithContext(ctx).
		Model(&ProfileEntity{}).
		Where("id = ?", id).
		Updates(map[string]any{"balance": balance, "updated_at": time.Now()})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrProfileNotFound
	}
	return r.get(ctx, r.Write(ctx), "id = ?", id)
}

// AddBalance credits the profile under a row lock, retrying transient
// failures with exponential backoff.
func (r *ProfileRepository) AddBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.withRetry(ctx, func() error {
		return r.adjustBalance(ctx, id, amount)
	})
}

// DeductBalance debits the profile. The balance never goes below zero.
func (r *ProfileRepository) DeductBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.withRetry(ctx, func() error {
		return r.adjustBalance(ctx, id, amount.Neg())
	})
}

// withRetry retries lock contention on its own connection. Inside a caller's
// transaction a failed statement aborts the transaction, so the attempt runs
// once and the caller decides.
func (r *ProfileRepository) withRetry(ctx context.Context, attempt func() error) error {
	const maxRetries = 3
	const baseDelay = 2 * time.Millisecond

	if pg.InTransaction(ctx) {
		return attempt()
	}

	for i := 0; i <= maxRetries; i++ {
		err := attempt()
		if err == nil {
			return nil
		}

		if errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrInsufficientBalance) {
			return err
		}

		if i < maxRetries {
			delay := baseDelay * time.Duration(1<<i) // 2ms, 4ms, 8ms
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
	}

	return fmt.Errorf("%w: failed after %d attempts", ErrMaxRetriesExceeded, maxRetries+1)
}

func (r *ProfileRepository) adjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	var entity ProfileEntity

	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProfileNotFound
		}
		return err
	}

	next := entity.Balance.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientBalance
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&ProfileEntity{}).
		Where("id = ?", id).
		Updates(map[string]any{"balance": next, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}

	return nil
}

func (r *ProfileRepository) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&UserRoleEntity{}).
		Where("user_id = ? AND role = ?", userID, string(model.RoleAdmin)).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GrantRole is idempotent.
func (r *ProfileRepository) GrantRole(ctx context.Context, userID uuid.UUID, role model.Role) error {
	entity := &UserRoleEntity{UserID: userID, Role: string(role)}
	return r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "role"}},
			DoNothing: true,
		}).
		Create(entity).
		Error
}
