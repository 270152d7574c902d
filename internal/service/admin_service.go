package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/repository"
)

type StatusUpdate struct {
	Status domain.OrderStatus `json:"status" validate:"required"`
}

// AdminService backs the back-office order views.
type AdminService struct {
	orders repository.OrderRepository
	log    *slog.Logger
}

func NewAdminService(orders repository.OrderRepository, log *slog.Logger) *AdminService {
	if log == nil {
		log = slog.Default()
	}
	return &AdminService{orders: orders, log: log.With("component", "admin")}
}

func (s *AdminService) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fieldError("status", "unknown order status")
	}
	return s.orders.ListOrders(ctx, filter)
}

func (s *AdminService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orders.GetOrderByID(ctx, id)
}

func (s *AdminService) UpdateOrderStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate) (*domain.Order, error) {
	if err := validateStruct(upd); err != nil {
		return nil, err
	}
	if !upd.Status.Valid() {
		return nil, fieldError("status", "unknown order status")
	}

	order, err := s.orders.UpdateOrderStatus(ctx, id, upd.Status)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "order status changed", "order_id", id, "status", upd.Status)
	return order, nil
}

func (s *AdminService) Stats(ctx context.Context) (*domain.OrderStats, error) {
	return s.orders.OrderStats(ctx)
}
