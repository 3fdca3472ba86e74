package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toTransactionModel(entity), nil
}

func (r *TransactionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	return r.get(ctx, r.Read(ctx), id)
}

func (r *TransactionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	return r.get(ctx, r.Write(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *TransactionRepository) get(ctx context.Context, db *gorm.DB, id uuid.UUID) (*model.Transaction, error) {
	var entity TransactionEntity
	err := db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// ListByUser returns the user's ledger, newest first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.Transaction, int64, error) {
	return r.List(ctx, model.TransactionFilter{UserID: &userID, Limit: limit, Offset: offset})
}

func (r *TransactionRepository) List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	f.Normalize()

	q := r.Read(ctx).WithContext(ctx).Model(&TransactionEntity{})

	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		q = q.Where("type IN ?", types)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.OrderID != nil {
		q = q.Where("order_id = ?", *f.OrderID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entities []*TransactionEntity
	if err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toTransactionModels(entities), total, nil
}

// UpdateStatus moves an entry out of `from`. Entries are otherwise immutable.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.TransactionStatus) (*model.Transaction, error) {
	result := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
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

// Summary aggregates every non-failed entry of the user.
func (r *TransactionRepository) Summary(ctx context.Context, userID uuid.UUID) (model.LedgerSummary, error) {
	var entities []*TransactionEntity
	err := r.Read(ctx).WithContext(ctx).
		Select("amount", "type", "status").
		Where("user_id = ? AND status <> ?", userID, string(model.TransactionStatusFailed)).
		Find(&entities).
		Error
	if err != nil {
		return model.LedgerSummary{}, err
	}
	return model.Summarize(toTransactionModels(entities)), nil
}

// ExistsForOrder reports whether an entry of the given type references the order.
func (r *TransactionRepository) ExistsForOrder(ctx context.Context, orderID uuid.UUID, typ model.TransactionType) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("order_id = ? AND type = ?", orderID, string(typ)).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
