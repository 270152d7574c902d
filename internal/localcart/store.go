// Package localcart holds cart lines for visitors without a session.
//
// A Store keeps the whole cart as one serialized array under a single key of
// its Backend. Storage failures never reach the caller: they are logged and
// the operation continues against an empty in-memory cart.
package localcart

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pcforge/storefront/internal/domain"
)

// StorageKey is where the serialized cart lives in every backend.
const StorageKey = "pcforge.cart"

// Line is one persisted guest cart entry.
type Line struct {
	ProductID       int64                  `json:"productId"`
	Product         domain.ProductSnapshot `json:"product"`
	Quantity        int                    `json:"quantity"`
	CustomBuildName string                 `json:"customBuildName,omitempty"`
}

// Backend persists raw bytes by key. Load returns nil data and a nil error
// when the key is absent.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

type Store struct {
	mu      sync.Mutex
	backend Backend
	log     *slog.Logger
}

func NewStore(backend Backend, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{backend: backend, log: log.With("component", "localcart")}
}

// Get returns the stored lines in insertion order.
func (s *Store) Get(ctx context.Context) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Add merges product into the cart. An existing line gets the clamped sum
// and a fresh product snapshot.
func (s *Store) Add(ctx context.Context, product domain.ProductSnapshot, quantity int, customBuildName string) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.load(ctx)
	found := false
	for i := range lines {
		if lines[i].ProductID != product.ID {
			continue
		}
		lines[i].Quantity = domain.ClampQuantity(lines[i].Quantity + quantity)
		lines[i].Product = product
		if customBuildName != "" {
			lines[i].CustomBuildName = customBuildName
		}
		found = true
		break
	}
	if !found {
		lines = append(lines, Line{
			ProductID:       product.ID,
			Product:         product,
			Quantity:        domain.ClampQuantity(quantity),
			CustomBuildName: customBuildName,
		})
	}

	s.save(ctx, lines)
	return lines
}

// UpdateQuantity sets a line's quantity, clamped. Unknown products are a no-op.
func (s *Store) UpdateQuantity(ctx context.Context, productID int64, quantity int) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.load(ctx)
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = domain.ClampQuantity(quantity)
			s.save(ctx, lines)
			break
		}
	}
	return lines
}

func (s *Store) Remove(ctx context.Context, productID int64) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.load(ctx)
	for i := range lines {
		if lines[i].ProductID == productID {
			lines = append(lines[:i], lines[i+1:]...)
			s.save(ctx, lines)
			break
		}
	}
	return lines
}

func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, StorageKey); err != nil {
		s.log.WarnContext(ctx, "failed to clear local cart", "error", err)
	}
}

// View renders the stored lines the same way server carts are rendered.
func (s *Store) View(ctx context.Context) domain.CartView {
	return ToView(s.Get(ctx))
}

func ToView(lines []Line) domain.CartView {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.CartLine{
			ProductID:       l.ProductID,
			Product:         l.Product,
			Quantity:        l.Quantity,
			CustomBuildName: l.CustomBuildName,
		})
	}
	return domain.NewCartView(out)
}

func (s *Store) load(ctx context.Context) []Line {
	data, err := s.backend.Load(ctx, StorageKey)
	if err != nil {
		s.log.WarnContext(ctx, "local cart storage unavailable, using empty cart", "error", err)
		return []Line{}
	}
	if len(data) == 0 {
		return []Line{}
	}

	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		s.log.WarnContext(ctx, "local cart data is corrupt, using empty cart", "error", err)
		return []Line{}
	}
	if lines == nil {
		lines = []Line{}
	}
	return lines
}

func (s *Store) save(ctx context.Context, lines []Line) {
	data, err := json.Marshal(lines)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to encode local cart", "error", err)
		return
	}
	if err := s.backend.Save(ctx, StorageKey, data); err != nil {
		s.log.WarnContext(ctx, "failed to persist local cart", "error", err)
	}
}
