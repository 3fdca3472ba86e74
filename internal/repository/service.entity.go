package repository

import (
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"github.com/shopspring/decimal"
)

type ServiceEntity struct {
	pg.Model
	Name         string          `gorm:"column:name;not null"`
	Description  *string         `gorm:"column:description"`
	Category     string          `gorm:"column:category;not null;index"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	MinQuantity  int             `gorm:"column:min_quantity;not null"`
	MaxQuantity  int             `gorm:"column:max_quantity;not null"`
	Active       bool            `gorm:"column:active;not null"`
	APIProvider  *string         `gorm:"column:api_provider"`
	APIServiceID *string         `gorm:"column:api_service_id"`
}

func (ServiceEntity) TableName() string {
	return "services"
}

func toServiceEntity(m *model.Service) *ServiceEntity {
	if m == nil {
		return nil
	}
	return &ServiceEntity{
		Model:        pg.Model{ID: m.ID, CreatedAt: m.CreatedAt},
		Name:         m.Name,
		Description:  m.Description,
		Category:     m.Category,
		Price:        m.Price,
		MinQuantity:  m.MinQuantity,
		MaxQuantity:  m.MaxQuantity,
		Active:       m.Active,
		APIProvider:  m.APIProvider,
		APIServiceID: m.APIServiceID,
	}
}

func toServiceModel(e *ServiceEntity) *model.Service {
	if e == nil {
		return nil
	}
	return &model.Service{
		ID:           e.ID,
		Name:         e.Name,
		Description:  e.Description,
		Category:     e.Category,
		Price:        e.Price,
		MinQuantity:  e.MinQuantity,
		MaxQuantity:  e.MaxQuantity,
		Active:       e.Active,
		APIProvider:  e.APIProvider,
		APIServiceID: e.APIServiceID,
		CreatedAt:    e.CreatedAt,
	}
}

func toServiceModels(entities []*ServiceEntity) []*model.Service {
	models := make([]*model.Service, len(entities))
	for i, e := range entities {
		models[i] = toServiceModel(e)
	}
	return models
}
