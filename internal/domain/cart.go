package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinLineQuantity = 1
	MaxLineQuantity = 8
)

// ClampQuantity forces q into the allowed per-line range.
func ClampQuantity(q int) int {
	if q < MinLineQuantity {
		return MinLineQuantity
	}
	if q > MaxLineQuantity {
		return MaxLineQuantity
	}
	return q
}

// Cart is the server-side cart document of one user.
type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    int64      `bson:"user_id" json:"userId"`
	Items     []CartItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updatedAt"`
}

type CartItem struct {
	ID              string    `bson:"id" json:"id"`
	ProductID       int64     `bson:"product_id" json:"productId"`
	Quantity        int       `bson:"quantity" json:"quantity"`
	CustomBuildName string    `bson:"custom_build_name,omitempty" json:"customBuildName,omitempty"`
	AddedAt         time.Time `bson:"added_at" json:"addedAt"`
}

// ProductIDs returns the set of products present in the cart.
func (c *Cart) ProductIDs() map[int64]struct{} {
	ids := make(map[int64]struct{}, len(c.Items))
	for _, item := range c.Items {
		ids[item.ProductID] = struct{}{}
	}
	return ids
}

// CartLine is the view model of one cart entry with its product snapshot.
// For guest carts ID is empty and the line is keyed by ProductID.
type CartLine struct {
	ID              string          `json:"id,omitempty"`
	ProductID       int64           `json:"productId"`
	Product         ProductSnapshot `json:"product"`
	Quantity        int             `json:"quantity"`
	CustomBuildName string          `json:"customBuildName,omitempty"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.EffectivePrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// NewLine is a request to put a product into a server cart.
type NewLine struct {
	ProductID       int64  `json:"id"`
	Quantity        int    `json:"quantity"`
	CustomBuildName string `json:"customBuildName,omitempty"`
}

// CartView is what the cart endpoints return.
type CartView struct {
	Lines    []CartLine      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Count    int             `json:"count"`
}

func NewCartView(lines []CartLine) CartView {
	if lines == nil {
		lines = []CartLine{}
	}
	v := CartView{Lines: lines, Subtotal: decimal.Zero}
	for _, l := range lines {
		v.Subtotal = v.Subtotal.Add(l.Subtotal())
		v.Count += l.Quantity
	}
	return v
}
