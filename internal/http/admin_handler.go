package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/service"
)

type AdminService interface {
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, upd service.StatusUpdate) (*domain.Order, error)
	Stats(ctx context.Context) (*domain.OrderStats, error)
}

type AdminHandler struct {
	admin   AdminService
	timeout time.Duration
}

func NewAdminHandler(admin AdminService, timeout time.Duration) *AdminHandler {
	return &AdminHandler{admin: admin, timeout: timeout}
}

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	orders, err := h.admin.ListOrders(ctx, domain.OrderFilter{
		Status: domain.OrderStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := h.admin.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var upd service.StatusUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}
	order, err := h.admin.UpdateOrderStatus(ctx, id, upd)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.admin.Stats(ctx)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
