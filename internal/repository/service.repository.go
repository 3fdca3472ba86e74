package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"gorm.io/gorm"
)

type ServiceRepository struct {
	*pg.DB
}

func NewServiceRepository(db *pg.DB) *ServiceRepository {
	return &ServiceRepository{
		db,
	}
}

// ListActive returns the active catalog ordered by category, then name.
func (r *ServiceRepository) ListActive(ctx context.Context) ([]*model.Service, error) {
	var entities []*ServiceEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("active = ?", true).
		Order("category ASC").
		Order("name ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toServiceModels(entities), nil
}

// ListAll includes inactive services.
func (r *ServiceRepository) ListAll(ctx context.Context) ([]*model.Service, error) {
	var entities []*ServiceEntity
	err := r.Read(ctx).WithContext(ctx).
		Order("category ASC").
		Order("name ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toServiceModels(entities), nil
}

func (r *ServiceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	var entity ServiceEntity
	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return toServiceModel(&entity), nil
}

func (r *ServiceRepository) Create(ctx context.Context, svc *model.Service) (*model.Service, error) {
	entity := toServiceEntity(svc)
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toServiceModel(entity), nil
}

// Update overwrites every mutable column of the service.
func (r *ServiceRepository) Update(ctx context.Context, svc *model.Service) (*model.Service, error) {
	result := r.Write(ctx).WithContext(ctx).
		Model(&ServiceEntity{}).
		Where("id = ?", svc.ID).
		Updates(map[string]any{
			"name":           svc.Name,
			"description":    svc.Description,
			"category":       svc.Category,
			"price":          svc.Price,
			"min_quantity":   svc.MinQuantity,
			"max_quantity":   svc.MaxQuantity,
			"active":         svc.Active,
			"api_provider":   svc.APIProvider,
			"api_service_id": svc.APIServiceID,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrServiceNotFound
	}
	return r.Get(ctx, svc.ID)
}
