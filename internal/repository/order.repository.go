package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository struct {
	*pg.DB
}

func NewOrderRepository(db *pg.DB) *OrderRepository {
	return &OrderRepository{
		db,
	}
}

func (r *OrderRepository) Create(ctx context.Context, order *model.Order) (*model.Order, error) {
	entity := toOrderEntity(order)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toOrderModel(entity), nil
}

func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(ctx, r.Read(ctx), id)
}

// GetForUpdate locks the order row until the surrounding transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(ctx, r.Write(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *OrderRepository) get(ctx context.Context, db *gorm.DB, id uuid.UUID) (*model.Order, error) {
	var entity OrderEntity
	err := db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return toOrderModel(&entity), nil
}

// ListByUser returns the user's orders, newest first, with service details.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.OrderView, int64, error) {
	return r.List(ctx, model.OrderFilter{UserID: &userID, Limit: limit, Offset: offset})
}

func (r *OrderRepository) List(ctx context.Context, f model.OrderFilter) ([]*model.OrderView, int64, error) {
	f.Normalize()

	query := r.Read(ctx).WithContext(ctx).
		Table("orders AS o").
		Joins("JOIN services AS s ON s.id = o.service_id")

	if f.UserID != nil {
		query = query.Where("o.user_id = ?", *f.UserID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where("o.status IN ?", statuses)
	}
	if f.HasAPIOrder != nil {
		if *f.HasAPIOrder {
			query = query.Where("o.api_order_id IS NOT NULL")
		} else {
			query = query.Where("o.api_order_id IS NULL")
		}
	}
	if f.CreatedUntil != nil {
		query = query.Where("o.created_at < ?", *f.CreatedUntil)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*OrderWithServiceEntity
	err := query.
		Select("o.*, s.name AS service_name, s.category AS service_category").
		Order("o.created_at DESC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&entities).
		Error
	if err != nil {
		return nil, 0, err
	}

	return toOrderViewModels(entities), total, nil
}

// UpdateStatus moves the order from `from` to update.Status. It returns
// ErrStatusChanged when the row is no longer in `from`.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from model.OrderStatus, update model.OrderStatusUpdate) (*model.Order, error) {
	values := map[string]any{
		"status":     string(update.Status),
		"updated_at": time.Now(),
	}
	if update.APIOrderID != nil {
		values["api_order_id"] = *update.APIOrderID
	}
	if update.APIResponse != nil {
		values["api_response"] = update.APIResponse
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&OrderEntity{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(values)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.get(ctx, r.Write(ctx), id); err != nil {
			return nil, err
		}
		return nil, ErrStatusChanged
	}

	return r.get(ctx, r.Write(ctx), id)
}
