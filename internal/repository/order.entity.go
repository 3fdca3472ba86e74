package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderEntity struct {
	pg.Model
	UserID      uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	ServiceID   uuid.UUID       `gorm:"column:service_id;type:uuid;not null;index"`
	Quantity    int             `gorm:"column:quantity;not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	TargetURL   string          `gorm:"column:target_url;not null"`
	Status      string          `gorm:"column:status;not null;index"`
	APIOrderID  *string         `gorm:"column:api_order_id"`
	APIResponse datatypes.JSON  `gorm:"column:api_response"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (OrderEntity) TableName() string {
	return "orders"
}

// OrderWithServiceEntity is the row shape of orders joined with services.
type OrderWithServiceEntity struct {
	OrderEntity
	ServiceName     string `gorm:"column:service_name"`
	ServiceCategory string `gorm:"column:service_category"`
}

func toOrderEntity(m *model.Order) *OrderEntity {
	if m == nil {
		return nil
	}
	return &OrderEntity{
		Model:       pg.Model{ID: m.ID, CreatedAt: m.CreatedAt},
		UserID:      m.UserID,
		ServiceID:   m.ServiceID,
		Quantity:    m.Quantity,
		Amount:      m.Amount,
		TargetURL:   m.TargetURL,
		Status:      string(m.Status),
		APIOrderID:  m.APIOrderID,
		APIResponse: m.APIResponse,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toOrderModel(e *OrderEntity) *model.Order {
	if e == nil {
		return nil
	}
	return &model.Order{
		ID:          e.ID,
		UserID:      e.UserID,
		ServiceID:   e.ServiceID,
		Quantity:    e.Quantity,
		Amount:      e.Amount,
		TargetURL:   e.TargetURL,
		Status:      model.OrderStatus(e.Status),
		APIOrderID:  e.APIOrderID,
		APIResponse: e.APIResponse,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func toOrderViewModels(entities []*OrderWithServiceEntity) []*model.OrderView {
	models := make([]*model.OrderView, len(entities))
	for i, e := range entities {
		models[i] = &model.OrderView{
			Order:           *toOrderModel(&e.OrderEntity),
			ServiceName:     e.ServiceName,
			ServiceCategory: e.ServiceCategory,
		}
	}
	return models
}
