package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralRepository struct {
	*pg.DB
}

func NewReferralRepository(db *pg.DB) *ReferralRepository {
	return &ReferralRepository{
		db,
	}
}

// Create inserts the referral unless the referred user already has one.
// The bool reports whether a row was written.
func (r *ReferralRepository) Create(ctx context.Context, referrerID, referredID uuid.UUID) (bool, error) {
	entity := &ReferralEntity{ReferrerID: referrerID, ReferredID: referredID}

	result := r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "referred_id"}},
			DoNothing: true,
		}).
		Create(entity)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ReferralRepository) GetByReferred(ctx context.Context, referredID uuid.UUID) (*model.Referral, error) {
	var entity ReferralEntity
	err := r.Read(ctx).WithContext(ctx).Where("referred_id = ?", referredID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toReferralModel(&entity), nil
}

func (r *ReferralRepository) CountByReferrer(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&ReferralEntity{}).
		Where("referrer_id = ?", referrerID).
		Count(&count).
		Error
	return count, err
}
