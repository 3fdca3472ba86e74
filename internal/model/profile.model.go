package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Profile struct {
	ID           uuid.UUID       `json:"id"`
	Email        string          `json:"email"`
	FullName     *string         `json:"full_name,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
	ReferralCode string          `json:"referral_code"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProfileView is what a user sees about themselves.
type ProfileView struct {
	Profile
	ReferralCount int64 `json:"referral_count"`
	IsAdmin       bool  `json:"is_admin"`
}

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type UserRole struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type SetBalanceRequest struct {
	Balance decimal.Decimal `json:"balance"`
}

type ProfileFilter struct {
	Limit  int
	Offset int
}

func (f *ProfileFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
