package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is a sellable catalog package such as "1000 Instagram followers".
type Service struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Description  *string         `json:"description,omitempty"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	MinQuantity  int             `json:"min_quantity"`
	MaxQuantity  int             `json:"max_quantity"`
	Active       bool            `json:"active"`
	APIProvider  *string         `json:"api_provider,omitempty"`
	APIServiceID *string         `json:"api_service_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Cost is the frozen order amount for quantity units.
func (s *Service) Cost(quantity int) decimal.Decimal {
	return s.Price.Mul(decimal.NewFromInt(int64(quantity)))
}

// Accepts reports whether quantity is inside the inclusive bounds.
func (s *Service) Accepts(quantity int) bool {
	return quantity >= s.MinQuantity && quantity <= s.MaxQuantity
}

type ServiceUpsertRequest struct {
	Name         string          `json:"name"`
	Description  *string         `json:"description"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	MinQuantity  int             `json:"min_quantity"`
	MaxQuantity  int             `json:"max_quantity"`
	Active       *bool           `json:"active"`
	APIProvider  *string         `json:"api_provider"`
	APIServiceID *string         `json:"api_service_id"`
}

// Problem returns the first field that makes the request unusable, or "".
func (r ServiceUpsertRequest) Problem() string {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return "name is required"
	case strings.TrimSpace(r.Category) == "":
		return "category is required"
	case r.Price.IsNegative():
		return "price must not be negative"
	case !FitsMoney(r.Price):
		return "price must have at most 2 decimal places"
	case r.MinQuantity <= 0:
		return "min_quantity must be positive"
	case r.MaxQuantity < r.MinQuantity:
		return "max_quantity must be greater than or equal to min_quantity"
	}
	return ""
}
