package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Referral struct {
	ID         uuid.UUID `json:"id"`
	ReferrerID uuid.UUID `json:"referrer_id"`
	ReferredID uuid.UUID `json:"referred_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type ReferralRequest struct {
	Code string `json:"code"`
}

// ReferralResult reports whether a referral row was actually created. A
// repeated registration for the same referred user returns Registered=false.
type ReferralResult struct {
	Registered bool            `json:"registered"`
	ReferrerID uuid.UUID       `json:"referrer_id"`
	Bonus      decimal.Decimal `json:"bonus"`
}
