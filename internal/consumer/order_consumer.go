// Package consumer reacts to order events read back from Kafka.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pcforge/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
)

// CartPurger removes purchased lines from a user's server cart.
type CartPurger interface {
	RemoveOrdered(ctx context.Context, userID int64, productIDs []int64, before time.Time) (int, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// orderCreated is the subset of the order.created payload this consumer needs.
type orderCreated struct {
	OrderID    string             `json:"order_id"`
	UserID     int64              `json:"user_id"`
	Items      []domain.OrderItem `json:"items"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// OrderConsumer finishes the cart cleanup that checkout does inline, for
// the cases where the inline clear failed.
type OrderConsumer struct {
	reader messageReader
	carts  CartPurger
	log    *slog.Logger
}

func NewOrderConsumer(carts CartPurger, brokers []string, topic, groupID string, log *slog.Logger) *OrderConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return newOrderConsumer(reader, carts, log)
}

func newOrderConsumer(reader messageReader, carts CartPurger, log *slog.Logger) *OrderConsumer {
	if log == nil {
		log = slog.Default()
	}
	return &OrderConsumer{reader: reader, carts: carts, log: log.With("component", "order-consumer")}
}

// Run blocks until ctx is cancelled.
func (c *OrderConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			c.log.WarnContext(ctx, "error reading message", "error", err)
			continue
		}
		if err := c.handleMessage(ctx, m); err != nil {
			c.log.ErrorContext(ctx, "failed to handle order event",
				"offset", m.Offset, "key", string(m.Key), "error", err)
		}
	}
}

func (c *OrderConsumer) Close() error {
	return c.reader.Close()
}

func (c *OrderConsumer) handleMessage(ctx context.Context, m kafka.Message) error {
	if eventType(m) != domain.EventOrderCreated {
		return nil
	}

	var event orderCreated
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return fmt.Errorf("error parsing message: %w", err)
	}
	if event.UserID == 0 || len(event.Items) == 0 {
		return fmt.Errorf("order %q: missing user or items", event.OrderID)
	}

	productIDs := make([]int64, 0, len(event.Items))
	for _, item := range event.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	before := event.OccurredAt
	if before.IsZero() {
		before = m.Time
	}

	removed, err := c.carts.RemoveOrdered(ctx, event.UserID, productIDs, before)
	if err != nil {
		return fmt.Errorf("order %s: %w", event.OrderID, err)
	}
	if removed > 0 {
		c.log.InfoContext(ctx, "removed ordered lines left in cart",
			"order_id", event.OrderID, "user_id", event.UserID, "lines", removed)
	}
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
