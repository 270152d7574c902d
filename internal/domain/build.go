package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Build is a saved PC builder parts list, shared by ShareID.
type Build struct {
	ID         uuid.UUID          `json:"id"`
	ShareID    string             `json:"shareId"`
	UserID     *int64             `json:"userId,omitempty"`
	Name       string             `json:"name"`
	Components map[Category]int64 `json:"components"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

func (b *Build) OwnedBy(userID int64) bool {
	return b.UserID != nil && *b.UserID == userID
}

type BuildComponent struct {
	Category Category        `json:"category"`
	Product  ProductSnapshot `json:"product"`
}

type BuildView struct {
	Build
	Parts      []BuildComponent `json:"parts"`
	TotalPrice decimal.Decimal  `json:"totalPrice"`
	Compatible bool             `json:"compatible"`
	Issues     []string         `json:"issues"`
}
