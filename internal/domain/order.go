package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
	PaymentStatusCOD     PaymentStatus = "COD"
)

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodOnline
}

// ShippingAddress is copied into the order at creation time.
type ShippingAddress struct {
	FullName     string `json:"fullName" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"required,phone_in"`
	Email        string `json:"email" validate:"required,email"`
	AddressLine1 string `json:"addressLine1" validate:"required,max=200"`
	AddressLine2 string `json:"addressLine2,omitempty" validate:"max=200"`
	City         string `json:"city" validate:"required,max=80"`
	State        string `json:"state" validate:"required,max=80"`
	Pincode      string `json:"pincode" validate:"required,pincode"`
}

// OrderItem is an immutable price snapshot of one purchased product.
type OrderItem struct {
	ProductID       int64           `json:"productId"`
	ProductName     string          `json:"productName"`
	Quantity        int             `json:"quantity"`
	RegularPrice    decimal.Decimal `json:"regularPrice"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	CustomBuildName string          `json:"customBuildName,omitempty"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID                     uuid.UUID       `json:"id"`
	UserID                 int64           `json:"userId"`
	Status                 OrderStatus     `json:"status"`
	PaymentStatus          PaymentStatus   `json:"paymentStatus"`
	PaymentMethod          PaymentMethod   `json:"paymentMethod"`
	TotalAmount            decimal.Decimal `json:"totalAmount"`
	DiscountAmount         decimal.Decimal `json:"discountAmount"`
	FinalAmount            decimal.Decimal `json:"finalAmount"`
	Currency               string          `json:"currency"`
	ShippingAddress        ShippingAddress `json:"shippingAddress"`
	Items                  []OrderItem     `json:"items"`
	IdempotencyKey         string          `json:"-"`
	ExternalPaymentOrderID *string         `json:"externalPaymentOrderId,omitempty"`
	ExternalPaymentID      *string         `json:"externalPaymentId,omitempty"`
	PaidAt                 *time.Time      `json:"paidAt,omitempty"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// PriceItems fills the amount fields from the item snapshots.
// FinalAmount is always the sum of UnitPrice*Quantity.
func (o *Order) PriceItems() {
	total := decimal.Zero
	final := decimal.Zero
	for _, item := range o.Items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		total = total.Add(item.RegularPrice.Mul(qty))
		final = final.Add(item.Subtotal())
	}
	o.TotalAmount = total
	o.FinalAmount = final
	o.DiscountAmount = total.Sub(final)
}

type OrderFilter struct {
	Status OrderStatus
	Limit  int
	Offset int
}

type OrderStats struct {
	ByStatus map[OrderStatus]int `json:"byStatus"`
	Revenue  decimal.Decimal     `json:"revenue"`
	Total    int                 `json:"total"`
}
