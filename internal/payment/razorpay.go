package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// orderCreator is the part of the Razorpay SDK the gateway calls.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type RazorpayGateway struct {
	orders  orderCreator
	breaker *gobreaker.CircuitBreaker[*Transaction]
	log     *slog.Logger
}

func NewRazorpayGateway(keyID, keySecret string, log *slog.Logger) *RazorpayGateway {
	client := razorpay.NewClient(keyID, keySecret)
	return newRazorpayGateway(client.Order, log)
}

func newRazorpayGateway(orders orderCreator, log *slog.Logger) *RazorpayGateway {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "razorpay")

	settings := gobreaker.Settings{
		Name:        "razorpay-orders",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &RazorpayGateway{
		orders:  orders,
		breaker: gobreaker.NewCircuitBreaker[*Transaction](settings),
		log:     log,
	}
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, receipt string, amount decimal.Decimal, currency string) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := g.breaker.Execute(func() (*Transaction, error) {
		body, err := g.orders.Create(map[string]interface{}{
			"amount":   ToMinorUnits(amount),
			"currency": currency,
			"receipt":  receipt,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("razorpay create order: %w", err)
		}
		return parseOrder(body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if err != nil {
		g.log.ErrorContext(ctx, "failed to create payment order", "receipt", receipt, "error", err)
		return nil, err
	}
	return tx, nil
}

func parseOrder(body map[string]interface{}) (*Transaction, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, errors.New("razorpay response has no order id")
	}
	currency, _ := body["currency"].(string)

	var amount int64
	switch v := body["amount"].(type) {
	case float64:
		amount = int64(v)
	case int64:
		amount = v
	case int:
		amount = int64(v)
	}
	return &Transaction{OrderID: id, Amount: amount, Currency: currency}, nil
}
