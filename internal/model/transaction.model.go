package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the scale of every stored price, amount and balance.
const MoneyPlaces = 2

// FitsMoney reports whether d can be stored without rounding.
func FitsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}

type TransactionType string

const (
	TransactionTypeDeposit       TransactionType = "deposit"
	TransactionTypeOrderDebit    TransactionType = "order-debit"
	TransactionTypeReferralBonus TransactionType = "referral-bonus"
	TransactionTypeRefund        TransactionType = "refund"
)

// IsCredit reports whether a completed entry of this type adds to balance.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeReferralBonus, TransactionTypeRefund:
		return true
	}
	return false
}

func (t TransactionType) Valid() bool {
	return t.IsCredit() || t == TransactionTypeOrderDebit
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

const (
	PaymentMethodMomo    = "momo"
	PaymentMethodBalance = "balance"
	PaymentMethodSystem  = "system"
)

// Transaction is a ledger entry. Amount is always positive; Type decides
// the direction.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"user_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	PaymentMethod string            `json:"payment_method"`
	Description   *string           `json:"description,omitempty"`
	OrderID       *uuid.UUID        `json:"order_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// LedgerSummary aggregates a user's entries. ConfirmedFunds only counts
// completed credits.
type LedgerSummary struct {
	ConfirmedFunds decimal.Decimal `json:"confirmed_funds"`
	PendingFunds   decimal.Decimal `json:"pending_funds"`
	Spent          decimal.Decimal `json:"spent"`
}

// Summarize folds entries into a LedgerSummary. Failed entries are ignored.
func Summarize(entries []*Transaction) LedgerSummary {
	s := LedgerSummary{
		ConfirmedFunds: decimal.Zero,
		PendingFunds:   decimal.Zero,
		Spent:          decimal.Zero,
	}
	for _, e := range entries {
		switch {
		case e.Status == TransactionStatusCompleted && e.Type.IsCredit():
			s.ConfirmedFunds = s.ConfirmedFunds.Add(e.Amount)
		case e.Status == TransactionStatusPending && e.Type.IsCredit():
			s.PendingFunds = s.PendingFunds.Add(e.Amount)
		case e.Status == TransactionStatusCompleted && e.Type == TransactionTypeOrderDebit:
			s.Spent = s.Spent.Add(e.Amount)
		}
	}
	return s
}

type DepositRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	PayerName string          `json:"payer_name"`
}

// DepositReceipt tells the user how to complete a pending deposit.
type DepositReceipt struct {
	Transaction  *Transaction `json:"transaction"`
	Instructions string       `json:"instructions"`
}

type TransactionFilter struct {
	UserID   *uuid.UUID
	Types    []TransactionType
	Statuses []TransactionStatus
	OrderID  *uuid.UUID
	Limit    int
	Offset   int
}

func (f *TransactionFilter) Normalize() {
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
