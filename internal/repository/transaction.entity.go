package repository

import (
	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"github.com/shopspring/decimal"
)

type TransactionEntity struct {
	pg.Model
	UserID        uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Type          string          `gorm:"column:type;not null"`
	Status        string          `gorm:"column:status;not null"`
	PaymentMethod string          `gorm:"column:payment_method;not null"`
	Description   *string         `gorm:"column:description"`
	OrderID       *uuid.UUID      `gorm:"column:order_id;type:uuid;index"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		Model:         pg.Model{ID: m.ID, CreatedAt: m.CreatedAt},
		UserID:        m.UserID,
		Amount:        m.Amount,
		Type:          string(m.Type),
		Status:        string(m.Status),
		PaymentMethod: m.PaymentMethod,
		Description:   m.Description,
		OrderID:       m.OrderID,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:            e.ID,
		UserID:        e.UserID,
		Amount:        e.Amount,
		Type:          model.TransactionType(e.Type),
		Status:        model.TransactionStatus(e.Status),
		PaymentMethod: e.PaymentMethod,
		Description:   e.Description,
		OrderID:       e.OrderID,
		CreatedAt:     e.CreatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
