package model

import (
	"time"

	"github.com/google/uuid"
)

// Tenant maps a tenant name to the connection string of its outbox store.
type Tenant struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	Name      string    `gorm:"uniqueIndex;not null"`
	DSN       string    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
