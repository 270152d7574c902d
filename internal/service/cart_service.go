package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pcforge/storefront/internal/cache"
	"github.com/pcforge/storefront/internal/cartrepo"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/reconcile"
	"github.com/pcforge/storefront/internal/repository"
	"golang.org/x/sync/singleflight"
)

// ProductReader resolves catalog products for carts, checkout and builds.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error)
}

type CartService struct {
	repo     cartrepo.CartRepository
	cache    cache.CartCache
	products ProductReader
	log      *slog.Logger
	sfg      singleflight.Group
	// gens counts mutations per user; a cache fill that raced one is undone.
	gens sync.Map
}

func NewCartService(repo cartrepo.CartRepository, cache cache.CartCache, products ProductReader, log *slog.Logger) *CartService {
	if log == nil {
		log = slog.Default()
	}
	return &CartService{
		repo:     repo,
		cache:    cache,
		products: products,
		log:      log.With("component", "cart"),
	}
}

// GetCart reads through the cache. Concurrent misses for one user share a
// single store read. A user without a cart gets an empty one. The cache is
// filled before returning and the fill is dropped when a mutation for the
// same user landed meanwhile.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "cache get error", "user_id", userID, "error", err)
		}

		gen := s.generation(userID)
		seen := gen.Load()
		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, cartrepo.ErrCartNotFound) {
			now := time.Now().UTC()
			return &domain.Cart{UserID: userID, Items: []domain.CartItem{}, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, err
		}

		s.fillCache(userID, cart, gen, seen)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// View returns the cart with current product snapshots. Lines whose product
// no longer exists are left out.
func (s *CartService) View(ctx context.Context, userID int64) (domain.CartView, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return domain.CartView{}, err
	}
	if len(cart.Items) == 0 {
		return domain.NewCartView(nil), nil
	}

	ids := make([]int64, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("resolve cart products: %w", err)
	}

	lines := make([]domain.CartLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}
		lines = append(lines, domain.CartLine{
			ID:              item.ID,
			ProductID:       item.ProductID,
			Product:         p.Snapshot(),
			Quantity:        item.Quantity,
			CustomBuildName: item.CustomBuildName,
		})
	}
	return domain.NewCartView(lines), nil
}

// AddItems merges lines into the user's cart. Every product must exist and
// be listed.
func (s *CartService) AddItems(ctx context.Context, userID int64, lines []domain.NewLine) (domain.CartView, error) {
	if len(lines) == 0 {
		return domain.CartView{}, fieldError("items", "is required")
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.CartView{}, fmt.Errorf("resolve products: %w", err)
	}
	for i, l := range lines {
		if p, ok := products[l.ProductID]; !ok || p.Archived {
			return domain.CartView{}, fieldError(fmt.Sprintf("items[%d].id", i), "product not available")
		}
	}

	if _, err := s.repo.AddItems(ctx, userID, lines); err != nil {
		s.log.ErrorContext(ctx, "repo add items error", "user_id", userID, "error", err)
		return domain.CartView{}, err
	}
	s.invalidateCache(userID)
	return s.View(ctx, userID)
}

// MergeAvailable merges the lines whose product is still listed and skips
// the rest. It returns how many lines were merged.
func (s *CartService) MergeAvailable(ctx context.Context, userID int64, lines []domain.NewLine) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("resolve products: %w", err)
	}

	available := make([]domain.NewLine, 0, len(lines))
	for _, l := range lines {
		if p, ok := products[l.ProductID]; !ok || p.Archived {
			s.log.InfoContext(ctx, "skipping unavailable product", "user_id", userID, "product_id", l.ProductID)
			continue
		}
		available = append(available, l)
	}
	if len(available) == 0 {
		return 0, nil
	}

	if _, err := s.repo.AddItems(ctx, userID, available); err != nil {
		s.log.ErrorContext(ctx, "repo add items error", "user_id", userID, "error", err)
		return 0, err
	}
	s.invalidateCache(userID)
	return len(available), nil
}

// UpdateQuantity changes one line. Lines of other users are forbidden.
func (s *CartService) UpdateQuantity(ctx context.Context, userID int64, lineID string, quantity int) (domain.CartView, error) {
	if err := s.checkOwner(ctx, userID, lineID); err != nil {
		return domain.CartView{}, err
	}
	if err := s.repo.UpdateLineQuantity(ctx, userID, lineID, domain.ClampQuantity(quantity)); err != nil {
		return domain.CartView{}, err
	}
	s.invalidateCache(userID)
	return s.View(ctx, userID)
}

func (s *CartService) RemoveLine(ctx context.Context, userID int64, lineID string) (domain.CartView, error) {
	if err := s.checkOwner(ctx, userID, lineID); err != nil {
		return domain.CartView{}, err
	}
	if err := s.repo.RemoveLine(ctx, userID, lineID); err != nil {
		return domain.CartView{}, err
	}
	s.invalidateCache(userID)
	return s.View(ctx, userID)
}

// Clear empties the user's cart. Clearing a missing cart is not an error.
func (s *CartService) Clear(ctx context.Context, userID int64) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, cartrepo.ErrCartNotFound) {
		return err
	}
	s.invalidateCache(userID)
	return nil
}

// RemoveOrdered drops the lines of the given products that were added no
// later than before. Lines added after the order was placed are kept.
func (s *CartService) RemoveOrdered(ctx context.Context, userID int64, productIDs []int64, before time.Time) (int, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, cartrepo.ErrCartNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	ordered := make(map[int64]struct{}, len(productIDs))
	for _, id := range productIDs {
		ordered[id] = struct{}{}
	}

	removed := 0
	for _, item := range cart.Items {
		if _, ok := ordered[item.ProductID]; !ok || item.AddedAt.After(before) {
			continue
		}
		err := s.repo.RemoveLine(ctx, userID, item.ID)
		if err != nil && !errors.Is(err, cartrepo.ErrItemNotFound) {
			return removed, fmt.Errorf("remove line %s: %w", item.ID, err)
		}
		removed++
	}
	if removed > 0 {
		s.invalidateCache(userID)
	}
	return removed, nil
}

func (s *CartService) checkOwner(ctx context.Context, userID int64, lineID string) error {
	if lineID == "" {
		return fieldError("cartItemId", "is required")
	}
	owner, err := s.repo.OwnerOfLine(ctx, lineID)
	if err != nil {
		return err
	}
	if owner != userID {
		s.log.WarnContext(ctx, "cart line ownership mismatch", "user_id", userID, "line_id", lineID)
		return ErrForbidden
	}
	return nil
}

func (s *CartService) generation(userID int64) *atomic.Uint64 {
	v, _ := s.gens.LoadOrStore(userID, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func (s *CartService) fillCache(userID int64, cart *domain.Cart, gen *atomic.Uint64, seen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, userID, cart); err != nil {
		s.log.Warn("cache set error", "user_id", userID, "error", err)
		return
	}
	if gen.Load() != seen {
		s.deleteCached(ctx, userID)
	}
}

func (s *CartService) invalidateCache(userID int64) {
	s.generation(userID).Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.deleteCached(ctx, userID)
}

func (s *CartService) deleteCached(ctx context.Context, userID int64) {
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cache invalidate error", "user_id", userID, "error", err)
	}
}

// ForUser binds the cart of userID to the reconciliation contract.
func (s *CartService) ForUser(userID int64) reconcile.ServerCart {
	return userCart{svc: s, userID: userID}
}

type userCart struct {
	svc    *CartService
	userID int64
}

func (u userCart) FetchCart(ctx context.Context) (domain.CartView, error) {
	return u.svc.View(ctx, u.userID)
}

func (u userCart) AddLines(ctx context.Context, lines []domain.NewLine) error {
	_, err := u.svc.MergeAvailable(ctx, u.userID, lines)
	return err
}

var _ ProductReader = (*repository.Repository)(nil)
