// Package payment opens hosted payment transactions and checks the signed
// callbacks that confirm them.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Transaction is the gateway-side order a client pays against.
type Transaction struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, receipt string, amount decimal.Decimal, currency string) (*Transaction, error)
}

// ToMinorUnits converts an amount to paise (or cents), rounding half away
// from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FakeGateway issues sequential order ids without any network call.
type FakeGateway struct {
	seq atomic.Int64
	// Err, when set, is returned by every CreateOrder call.
	Err error
}

func (f *FakeGateway) CreateOrder(ctx context.Context, _ string, amount decimal.Decimal, currency string) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	n := f.seq.Add(1)
	return &Transaction{
		OrderID:  fmt.Sprintf("order_fake_%06d", n),
		Amount:   ToMinorUnits(amount),
		Currency: currency,
	}, nil
}
