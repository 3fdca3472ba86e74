package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"github.com/shopspring/decimal"
)

// ProfileEntity shares its id with the identity provider's user id.
type ProfileEntity struct {
	pg.Model
	Email        string          `gorm:"column:email;not null"`
	FullName     *string         `gorm:"column:full_name"`
	Balance      decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null"`
	ReferralCode string          `gorm:"column:referral_code;not null;uniqueIndex"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProfileEntity) TableName() string {
	return "profiles"
}

type UserRoleEntity struct {
	pg.Model
	UserID uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_user_roles_user_role"`
	Role   string    `gorm:"column:role;not null;uniqueIndex:idx_user_roles_user_role"`
}

func (UserRoleEntity) TableName() string {
	return "user_roles"
}

func toProfileEntity(m *model.Profile) *ProfileEntity {
	if m == nil {
		return nil
	}
	return &ProfileEntity{
		Model:        pg.Model{ID: m.ID, CreatedAt: m.CreatedAt},
		Email:        m.Email,
		FullName:     m.FullName,
		Balance:      m.Balance,
		ReferralCode: m.ReferralCode,
		UpdatedAt:    m.UpdatedAt,
	}
}

func toProfileModel(e *ProfileEntity) *model.Profile {
	if e == nil {
		return nil
	}
	return &model.Profile{
		ID:           e.ID,
		Email:        e.Email,
		FullName:     e.FullName,
		Balance:      e.Balance,
		ReferralCode: e.ReferralCode,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toProfileModels(entities []*ProfileEntity) []*model.Profile {
	models := make([]*model.Profile, len(entities))
	for i, e := range entities {
		models[i] = toProfileModel(e)
	}
	return models
}
