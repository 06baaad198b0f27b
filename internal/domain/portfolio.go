package domain

import (
	"time"

	"github.com/google/uuid"
)

// Portfolio is a named bucket of lots owned by exactly one owner.
// An owner has at most one default portfolio; stores enforce it.
type Portfolio struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Default   bool      `json:"default"`
	CreatedAt time.Time `json:"created_at"`
}

func NewPortfolio(ownerID, name string, isDefault bool) Portfolio {
	return Portfolio{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		Default:   isDefault,
		CreatedAt: time.Now().UTC(),
	}
}

func (p Portfolio) OwnedBy(ownerID string) bool {
	return ownerID != "" && p.OwnerID == ownerID
}
