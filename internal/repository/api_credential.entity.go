package repository

import (
	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/pg"
)

type APICredentialEntity struct {
	pg.Model
	Provider string `gorm:"column:provider;not null;uniqueIndex"`
	APIURL   string `gorm:"column:api_url;not null"`
	APIKey   string `gorm:"column:api_key;not null"`
}

func (APICredentialEntity) TableName() string {
	return "api_credentials"
}

func toAPICredentialModel(e *APICredentialEntity) *model.APICredential {
	if e == nil {
		return nil
	}
	return &model.APICredential{
		ID:        e.ID,
		Provider:  e.Provider,
		APIURL:    e.APIURL,
		APIKey:    e.APIKey,
		CreatedAt: e.CreatedAt,
	}
}
