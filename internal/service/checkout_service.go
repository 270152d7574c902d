package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/payment"
	"github.com/pcforge/storefront/internal/repository"
)

// CartClearer empties a user's server cart after an order is placed.
type CartClearer interface {
	Clear(ctx context.Context, userID int64) error
}

type CheckoutItem struct {
	ProductID       int64  `json:"id" validate:"gt=0"`
	Quantity        int    `json:"quantity"`
	CustomBuildName string `json:"customBuildName,omitempty" validate:"max=120"`
}

type CheckoutRequest struct {
	Items           []CheckoutItem         `json:"items" validate:"dive"`
	ShippingDetails domain.ShippingAddress `json:"shippingDetails"`
	PaymentMethod   domain.PaymentMethod   `json:"paymentMethod" validate:"required,oneof=cod online"`
	IdempotencyKey  string                 `json:"idempotencyKey,omitempty" validate:"max=128"`
}

// RazorpayHandle is what a client needs to open the hosted payment page.
type RazorpayHandle struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

type OrderPayload struct {
	*domain.Order
	Razorpay *RazorpayHandle `json:"razorpay,omitempty"`
}

type CheckoutResult struct {
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	Order         OrderPayload         `json:"order"`
}

type PaymentCallback struct {
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

type CheckoutConfig struct {
	Currency      string
	GatewayKeyID  string
	PaymentExpiry time.Duration
}

type CheckoutService struct {
	orders   repository.OrderRepository
	products ProductReader
	carts    CartClearer
	gateway  payment.Gateway
	verifier *payment.Verifier
	cfg      CheckoutConfig
	log      *slog.Logger
	now      func() time.Time
}

func NewCheckoutService(
	orders repository.OrderRepository,
	products ProductReader,
	carts CartClearer,
	gateway payment.Gateway,
	verifier *payment.Verifier,
	cfg CheckoutConfig,
	log *slog.Logger,
) *CheckoutService {
	if log == nil {
		log = slog.Default()
	}
	return &CheckoutService{
		orders:   orders,
		products: products,
		carts:    carts,
		gateway:  gateway,
		verifier: verifier,
		cfg:      cfg,
		log:      log.With("component", "checkout"),
		now:      time.Now,
	}
}

// PlaceOrder creates an order priced from the catalog. Everything the client
// sends except product ids and quantities is ignored for pricing.
//
// A repeated idempotency key returns the order created by the first request.
func (s *CheckoutService) PlaceOrder(ctx context.Context, userID int64, req CheckoutRequest) (*CheckoutResult, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.orders.GetOrderByIdempotencyKey(ctx, userID, req.IdempotencyKey)
		if err == nil {
			s.log.InfoContext(ctx, "idempotent checkout replay", "order_id", existing.ID)
			return s.resume(ctx, existing)
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, err
		}
	}

	items, err := s.priceItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          userID,
		PaymentMethod:   req.PaymentMethod,
		Currency:        s.cfg.Currency,
		ShippingAddress: req.ShippingDetails,
		Items:           items,
		IdempotencyKey:  req.IdempotencyKey,
	}
	order.PriceItems()

	if req.PaymentMethod == domain.PaymentMethodCOD {
		order.Status = domain.OrderStatusConfirmed
		order.PaymentStatus = domain.PaymentStatusCOD
	} else {
		order.Status = domain.OrderStatusPending
		order.PaymentStatus = domain.PaymentStatusPending
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			existing, getErr := s.orders.GetOrderByIdempotencyKey(ctx, userID, req.IdempotencyKey)
			if getErr != nil {
				return nil, getErr
			}
			return s.resume(ctx, existing)
		}
		s.log.ErrorContext(ctx, "failed to create order", "user_id", userID, "error", err)
		return nil, err
	}
	s.log.InfoContext(ctx, "order created",
		"order_id", order.ID, "user_id", userID, "method", order.PaymentMethod, "amount", order.FinalAmount.String())

	if order.PaymentMethod == domain.PaymentMethodCOD {
		s.clearCart(ctx, userID)
		return &CheckoutResult{PaymentMethod: order.PaymentMethod, Order: OrderPayload{Order: order}}, nil
	}
	return s.openPayment(ctx, order)
}

func (s *CheckoutService) validateRequest(req CheckoutRequest) error {
	if len(req.Items) == 0 {
		return &ValidationError{Fields: map[string]string{"items": ErrEmptyCart.Error()}}
	}
	if err := validateStruct(req); err != nil {
		return err
	}
	return nil
}

// priceItems snapshots the current effective price of every item. Items of
// the same product are kept as separate lines.
func (s *CheckoutService) priceItems(ctx context.Context, req []CheckoutItem) ([]domain.OrderItem, error) {
	ids := make([]int64, 0, len(req))
	for _, it := range req {
		ids = append(ids, it.ProductID)
	}
	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}

	fields := map[string]string{}
	items := make([]domain.OrderItem, 0, len(req))
	for i, it := range req {
		p, ok := products[it.ProductID]
		if !ok || p.Archived {
			fields[fmt.Sprintf("items[%d].id", i)] = "product not available"
			continue
		}
		items = append(items, domain.OrderItem{
			ProductID:       p.ID,
			ProductName:     p.Name,
			Quantity:        domain.ClampQuantity(it.Quantity),
			RegularPrice:    p.RegularPrice,
			UnitPrice:       p.EffectivePrice(),
			CustomBuildName: it.CustomBuildName,
		})
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return items, nil
}

// openPayment creates the gateway transaction for a pending online order.
// On failure the order stays PENDING without an external id and the cart is
// kept, so the client can retry.
func (s *CheckoutService) openPayment(ctx context.Context, order *domain.Order) (*CheckoutResult, error) {
	tx, err := s.gateway.CreateOrder(ctx, order.ID.String(), order.FinalAmount, order.Currency)
	if err != nil {
		s.log.ErrorContext(ctx, "payment gateway create order failed", "order_id", order.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	if err := s.orders.SetExternalPaymentOrder(ctx, order.ID, tx.OrderID); err != nil {
		s.log.ErrorContext(ctx, "failed to record payment order", "order_id", order.ID, "external_id", tx.OrderID, "error", err)
		return nil, err
	}
	order.ExternalPaymentOrderID = &tx.OrderID

	s.clearCart(ctx, order.UserID)
	return &CheckoutResult{
		PaymentMethod: order.PaymentMethod,
		Order: OrderPayload{
			Order: order,
			Razorpay: &RazorpayHandle{
				OrderID:  tx.OrderID,
				Amount:   tx.Amount,
				Currency: tx.Currency,
				KeyID:    s.cfg.GatewayKeyID,
			},
		},
	}, nil
}

// resume rebuilds the checkout response for an order that already exists.
func (s *CheckoutService) resume(ctx context.Context, order *domain.Order) (*CheckoutResult, error) {
	result := &CheckoutResult{PaymentMethod: order.PaymentMethod, Order: OrderPayload{Order: order}}
	if order.PaymentMethod != domain.PaymentMethodOnline || order.PaymentStatus != domain.PaymentStatusPending {
		return result, nil
	}
	if order.ExternalPaymentOrderID == nil {
		return s.openPayment(ctx, order)
	}
	result.Order.Razorpay = &RazorpayHandle{
		OrderID:  *order.ExternalPaymentOrderID,
		Amount:   payment.ToMinorUnits(order.FinalAmount),
		Currency: order.Currency,
		KeyID:    s.cfg.GatewayKeyID,
	}
	return result, nil
}

func (s *CheckoutService) clearCart(ctx context.Context, userID int64) {
	if err := s.carts.Clear(ctx, userID); err != nil {
		s.log.ErrorContext(ctx, "failed to clear cart after order", "user_id", userID, "error", err)
	}
}

// VerifyPayment finalizes an online order from a signed gateway callback.
// A bad signature or unknown order changes nothing.
func (s *CheckoutService) VerifyPayment(ctx context.Context, userID int64, cb PaymentCallback) (*domain.Order, error) {
	if err := validateStruct(cb); err != nil {
		return nil, err
	}

	if !s.verifier.Verify(cb.OrderID, cb.PaymentID, cb.Signature) {
		s.log.WarnContext(ctx, "payment signature mismatch", "external_id", cb.OrderID, "user_id", userID)
		return nil, ErrSignatureMismatch
	}

	order, err := s.orders.GetOrderByExternalID(ctx, cb.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.log.WarnContext(ctx, "payment callback for unknown order", "external_id", cb.OrderID)
		}
		return nil, err
	}
	if order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return order, nil
	}
	if !awaitingPayment(order) {
		return nil, s.closedOrderPaid(ctx, order, cb.PaymentID)
	}

	paid, err := s.orders.MarkOrderPaid(ctx, order.ID, cb.PaymentID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if paid.PaymentStatus != domain.PaymentStatusPaid {
		// expired or cancelled between the read and the update
		return nil, s.closedOrderPaid(ctx, paid, cb.PaymentID)
	}
	s.log.InfoContext(ctx, "order paid", "order_id", paid.ID, "payment_id", cb.PaymentID)
	return paid, nil
}

func awaitingPayment(o *domain.Order) bool {
	return o.Status == domain.OrderStatusPending && o.PaymentStatus == domain.PaymentStatusPending
}

// closedOrderPaid records a captured payment for an order that can no
// longer be fulfilled. The payment needs a refund.
func (s *CheckoutService) closedOrderPaid(ctx context.Context, o *domain.Order, paymentID string) error {
	s.log.ErrorContext(ctx, "payment received for closed order, refund required",
		"order_id", o.ID,
		"status", o.Status,
		"payment_status", o.PaymentStatus,
		"payment_id", paymentID,
	)
	return ErrOrderClosed
}

func (s *CheckoutService) ListOrders(ctx context.Context, userID int64) ([]*domain.Order, error) {
	return s.orders.ListOrdersByUserID(ctx, userID)
}

// GetOrder hides orders of other users behind ErrOrderNotFound.
func (s *CheckoutService) GetOrder(ctx context.Context, userID int64, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

// ExpireAbandoned cancels online orders left unpaid for longer than the
// payment expiry.
func (s *CheckoutService) ExpireAbandoned(ctx context.Context) (int, error) {
	ids, err := s.orders.ExpireAbandonedOrders(ctx, s.now().Add(-s.cfg.PaymentExpiry))
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.log.InfoContext(ctx, "expired unpaid order", "order_id", id)
	}
	return len(ids), nil
}
