package model

import (
	"time"

	"github.com/google/uuid"
)

// APICredential points at an SMM provider panel.
type APICredential struct {
	ID        uuid.UUID `json:"id"`
	Provider  string    `json:"provider"`
	APIURL    string    `json:"api_url"`
	APIKey    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
