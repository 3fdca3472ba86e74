package repository

import (
	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
)

type ReferralEntity struct {
	pg.Model
	ReferrerID uuid.UUID `gorm:"column:referrer_id;type:uuid;not null;index"`
	ReferredID uuid.UUID `gorm:"column:referred_id;type:uuid;not null;uniqueIndex"`
}

func (ReferralEntity) TableName() string {
	return "referrals"
}

func toReferralModel(e *ReferralEntity) *model.Referral {
	if e == nil {
		return nil
	}
	return &model.Referral{
		ID:         e.ID,
		ReferrerID: e.ReferrerID,
		ReferredID: e.ReferredID,
		CreatedAt:  e.CreatedAt,
	}
}
