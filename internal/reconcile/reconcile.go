// Package reconcile merges a guest cart into the server cart the first time
// the visitor is seen with a session.
package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/localcart"
)

// ErrNoSession is returned by a ServerCart when the caller is not logged in.
var ErrNoSession = errors.New("no session")

// ServerCart is the authoritative cart of the current user.
type ServerCart interface {
	FetchCart(ctx context.Context) (domain.CartView, error)
	AddLines(ctx context.Context, lines []domain.NewLine) error
}

// PushedQuantity is the quantity every migrated guest line gets on the
// server, whatever the guest had selected.
const PushedQuantity = 1

type Service struct {
	local  *localcart.Store
	server ServerCart
	log    *slog.Logger
}

func NewService(local *localcart.Store, server ServerCart, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{local: local, server: server, log: log.With("component", "reconcile")}
}

// Fetch returns the cart the visitor should see.
//
// Without a session the guest cart is returned untouched. With a session the
// guest lines whose product is not already on the server are pushed with
// PushedQuantity and the guest cart is cleared before the push. When the
// batch is rejected the lines are retried one by one, so only the lines the
// server refuses are dropped. Server failures other than a missing session
// fall back to the guest cart.
func (s *Service) Fetch(ctx context.Context) domain.CartView {
	view, err := s.server.FetchCart(ctx)
	if errors.Is(err, ErrNoSession) {
		return s.local.View(ctx)
	}
	if err != nil {
		s.log.WarnContext(ctx, "server cart unavailable, showing local cart", "error", err)
		return s.local.View(ctx)
	}

	pending := Diff(s.local.Get(ctx), view)
	s.local.Clear(ctx)
	if len(pending) == 0 {
		return view
	}

	pushed := s.push(ctx, pending)
	if pushed == 0 {
		return view
	}
	s.log.InfoContext(ctx, "merged guest cart into server cart", "lines", pushed)

	merged, err := s.server.FetchCart(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "failed to refetch merged cart", "error", err)
		return view
	}
	return merged
}

func (s *Service) push(ctx context.Context, lines []domain.NewLine) int {
	err := s.server.AddLines(ctx, lines)
	if err == nil {
		return len(lines)
	}
	if len(lines) == 1 || errors.Is(err, ErrNoSession) || ctx.Err() != nil {
		s.log.WarnContext(ctx, "dropping guest cart lines after failed push",
			"lines", len(lines), "error", err)
		return 0
	}

	pushed := 0
	for _, l := range lines {
		if err := s.server.AddLines(ctx, []domain.NewLine{l}); err != nil {
			s.log.WarnContext(ctx, "dropping guest cart line after failed push",
				"product_id", l.ProductID, "error", err)
			if errors.Is(err, ErrNoSession) || ctx.Err() != nil {
				break
			}
			continue
		}
		pushed++
	}
	return pushed
}

// Diff returns the guest lines whose product is absent from the server view,
// as server lines of PushedQuantity.
func Diff(local []localcart.Line, server domain.CartView) []domain.NewLine {
	present := make(map[int64]struct{}, len(server.Lines))
	for _, l := range server.Lines {
		present[l.ProductID] = struct{}{}
	}

	var out []domain.NewLine
	for _, l := range local {
		if _, ok := present[l.ProductID]; ok {
			continue
		}
		present[l.ProductID] = struct{}{}
		out = append(out, domain.NewLine{
			ProductID:       l.ProductID,
			Quantity:        PushedQuantity,
			CustomBuildName: l.CustomBuildName,
		})
	}
	return out
}
