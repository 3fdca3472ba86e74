package repository

import (
	"context"
	"errors"

	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CredentialRepository struct {
	*pg.DB
}

func NewCredentialRepository(db *pg.DB) *CredentialRepository {
	return &CredentialRepository{
		db,
	}
}

func (r *CredentialRepository) List(ctx context.Context) ([]*model.APICredential, error) {
	var entities []*APICredentialEntity
	if err := r.Read(ctx).WithContext(ctx).Order("provider ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	models := make([]*model.APICredential, len(entities))
	for i, e := range entities {
		models[i] = toAPICredentialModel(e)
	}
	return models, nil
}

func (r *CredentialRepository) GetByProvider(ctx context.Context, provider string) (*model.APICredential, error) {
	var entity APICredentialEntity
	err := r.Read(ctx).WithContext(ctx).Where("provider = ?", provider).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return toAPICredentialModel(&entity), nil
}

// Upsert replaces the url and key of an existing provider.
func (r *CredentialRepository) Upsert(ctx context.Context, c *model.APICredential) error {
	entity := &APICredentialEntity{Provider: c.Provider, APIURL: c.APIURL, APIKey: c.APIKey}
	return r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{"api_url", "api_key"}),
		}).
		Create(entity).
		Error
}
