package cache

import (
	"context"
	"errors"

	"github.com/pcforge/storefront/internal/domain"
)

// CartCache is a read-through cache in front of the server cart store.
type CartCache interface {
	Get(ctx context.Context, userID int64) (*domain.Cart, error)
	Set(ctx context.Context, userID int64, cart *domain.Cart) error
	Delete(ctx context.Context, userID int64) error
}

var ErrCacheMiss = errors.New("cache miss")
