package cartrepo

import (
	"context"
	"errors"

	"github.com/pcforge/storefront/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// CartRepository stores one cart document per user.
type CartRepository interface {
	GetCart(ctx context.Context, userID int64) (*domain.Cart, error)
	// AddItems merges lines by product id. Quantities are summed and clamped,
	// a non-empty custom build name replaces the stored one.
	AddItems(ctx context.Context, userID int64, lines []domain.NewLine) (*domain.Cart, error)
	UpdateLineQuantity(ctx context.Context, userID int64, lineID string, quantity int) error
	RemoveLine(ctx context.Context, userID int64, lineID string) error
	DeleteCart(ctx context.Context, userID int64) error
	OwnerOfLine(ctx context.Context, lineID string) (int64, error)
}
